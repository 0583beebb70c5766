package containers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/internal/errdefs"
)

// WaitResult is POST /containers/{id}/wait's response payload.
type WaitResult struct {
	StatusCode int
	Error      string
}

// Wait blocks until the container next exits, or ctx is cancelled. If it
// has already exited, it returns immediately with the recorded exit code
// instead of blocking.
func (m *Manager) Wait(ctx context.Context, id string) (WaitResult, error) {
	c, ok := m.Get(id)
	if !ok {
		return WaitResult{}, errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	if c.State.Status == container.StatusExited || c.State.Status == container.StatusDead {
		return WaitResult{StatusCode: c.State.ExitCode, Error: c.State.Error}, nil
	}

	sub := m.events.Subscribe(ctx, time.Time{}, time.Time{}, events.Filters{
		Type:      []string{events.TypeContainer},
		Action:    []string{"die"},
		Container: []string{c.ID},
	})
	select {
	case <-ctx.Done():
		return WaitResult{}, ctx.Err()
	case msg, ok := <-sub:
		if !ok {
			return WaitResult{}, ctx.Err()
		}
		code, _ := strconv.Atoi(msg.Actor.Attributes["exitCode"])
		return WaitResult{StatusCode: code}, nil
	}
}
