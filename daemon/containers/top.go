package containers

import (
	"context"
	"fmt"

	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/network/agentrpc"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/internal/errdefs"
)

// topPort is the fixed vsock port the in-VM init process listens on for
// the ProcessList RPC backing the "top" endpoint.
const topPort = 9003

// ProcessEntry is one row of a ProcessList result.
type ProcessEntry struct {
	PID     string `json:"pid"`
	User    string `json:"user"`
	Command string `json:"command"`
}

// processListResult is the agentrpc result shape the in-VM init process
// returns for the "ProcessList" method.
type processListResult struct {
	Processes []ProcessEntry `json:"processes"`
}

// Top lists the processes running inside a container's VM. This is a thin
// pass-through to the in-VM init process over the same vsock control
// channel exec sessions use (a separate fixed port), not something the
// host can observe directly in the VM-per-container model.
func (m *Manager) Top(ctx context.Context, id string) ([]ProcessEntry, error) {
	c, ok := m.Get(id)
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status != container.StatusRunning {
		return nil, errdefs.Conflict(fmt.Errorf("container %s is not running", id))
	}

	h, ok := m.registry.Handle(id)
	if !ok {
		return nil, errdefs.Conflict(fmt.Errorf("container %s is not running", id))
	}

	conn, err := m.adapter.DialVsock(ctx, h, topPort)
	if err != nil {
		return nil, runtime.AsDomainError(err)
	}
	defer conn.Close()

	client := agentrpc.NewClient(conn)
	var result processListResult
	if err := client.Call(ctx, "ProcessList", nil, &result); err != nil {
		return nil, errdefs.System(fmt.Errorf("top: %w", err))
	}
	return result.Processes, nil
}
