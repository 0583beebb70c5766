package containers

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/runtime"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/google/uuid"
)

// execPort is the fixed vsock port the in-VM init process listens on for
// exec sessions.
const execPort = 9002

// execRecord is the in-memory exec session record; removed with its
// container.
type execRecord struct {
	ID          string
	ContainerID string
	Cmd         []string
	Env         []string
	Tty         bool
	Running     bool
	ExitCode    *int
}

// execHeader is the single control line sent before stdio begins streaming.
type execHeader struct {
	Cmd []string `json:"cmd"`
	Env []string `json:"env,omitempty"`
	Tty bool     `json:"tty,omitempty"`
}

// Frame types for the vsock exec stream, an internal extension of Docker's
// stream header framing (stream-type, 0,0,0, big-endian length) that adds a
// type-2 "exit" frame the in-VM init process sends once, carrying a 4-byte
// big-endian exit code as its payload, to terminate the session. Only
// stdout/stderr frames (types 0/1) are re-multiplexed onto the public
// Engine API stream, re-framed with Docker's stream bytes (1 = stdout,
// 2 = stderr), or as raw payload for a TTY session; exit frames are
// consumed internally.
const (
	frameStdout = 0
	frameStderr = 1
	frameExit   = 2
)

// ExecCreate registers an exec session linked to a running container.
func (m *Manager) ExecCreate(ctx context.Context, containerID string, req apitypes.ExecCreateRequest) (string, error) {
	c, ok := m.Get(containerID)
	if !ok {
		return "", errdefs.NotFound(fmt.Errorf("no such container: %s", containerID))
	}
	if c.State.Status != container.StatusRunning {
		return "", errdefs.Conflict(fmt.Errorf("container %s is not running", containerID))
	}

	id := uuid.New().String()
	rec := &execRecord{ID: id, ContainerID: containerID, Cmd: req.Cmd, Env: req.Env, Tty: req.Tty}

	m.execMu.Lock()
	m.execs[id] = rec
	m.execMu.Unlock()
	return id, nil
}

// ExecStart opens the exec session's stdio over vsock, relaying stdin/stdout
// from the provided streams (whichever the caller attached) until the
// exec'd process exits, recording its exit code. Docker's 8-byte stream
// framing is applied to stdout/stderr when the exec session is not a TTY.
func (m *Manager) ExecStart(ctx context.Context, execID string, stdin io.Reader, stdout io.Writer) error {
	m.execMu.Lock()
	rec, ok := m.execs[execID]
	m.execMu.Unlock()
	if !ok {
		return errdefs.NotFound(fmt.Errorf("no such exec: %s", execID))
	}

	h, ok := m.registry.Handle(rec.ContainerID)
	if !ok {
		return errdefs.Conflict(fmt.Errorf("container %s is not running", rec.ContainerID))
	}

	conn, err := m.adapter.DialVsock(ctx, h, execPort)
	if err != nil {
		return runtime.AsDomainError(err)
	}
	defer conn.Close()

	header, err := json.Marshal(execHeader{Cmd: rec.Cmd, Env: rec.Env, Tty: rec.Tty})
	if err != nil {
		return errdefs.System(err)
	}
	if _, err := conn.Write(append(header, '\n')); err != nil {
		return errdefs.System(fmt.Errorf("exec: write header: %w", err))
	}

	m.execMu.Lock()
	rec.Running = true
	m.execMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if stdin != nil {
			_, _ = io.Copy(conn, stdin)
		}
	}()
	go func() {
		errCh <- streamExecOutput(conn, stdout, rec)
	}()

	select {
	case err := <-errCh:
		m.execMu.Lock()
		rec.Running = false
		m.execMu.Unlock()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// streamExecOutput reads framed stdout/stderr/exit frames until the exit
// frame arrives or the stream closes, recording the exit code.
func streamExecOutput(conn io.Reader, stdout io.Writer, rec *execRecord) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return errdefs.System(fmt.Errorf("exec: read frame header: %w", err))
		}
		frameType := header[0]
		length := binary.BigEndian.Uint32(header[4:8])
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(conn, payload); err != nil {
				return errdefs.System(fmt.Errorf("exec: read frame payload: %w", err))
			}
		}

		switch frameType {
		case frameExit:
			var code int
			if length >= 4 {
				code = int(int32(binary.BigEndian.Uint32(payload[:4])))
			}
			rec.ExitCode = &code
			return nil
		case frameStdout, frameStderr:
			if stdout != nil {
				if !rec.Tty {
					out := make([]byte, 8)
					out[0] = 1
					if frameType == frameStderr {
						out[0] = 2
					}
					copy(out[4:], header[4:8])
					if _, err := stdout.Write(out); err != nil {
						return err
					}
				}
				if _, err := stdout.Write(payload); err != nil {
					return err
				}
			}
		}
	}
}

// ExecInspect reports an exec session's current state.
func (m *Manager) ExecInspect(execID string) (apitypes.ExecInspect, error) {
	m.execMu.Lock()
	rec, ok := m.execs[execID]
	m.execMu.Unlock()
	if !ok {
		return apitypes.ExecInspect{}, errdefs.NotFound(fmt.Errorf("no such exec: %s", execID))
	}
	out := apitypes.ExecInspect{
		ID:          rec.ID,
		Running:     rec.Running,
		ExitCode:    rec.ExitCode,
		ContainerID: rec.ContainerID,
		ProcessConfig: apitypes.ExecProcessConfig{
			Tty:       rec.Tty,
			Arguments: rec.Cmd,
		},
	}
	if len(rec.Cmd) > 0 {
		out.ProcessConfig.Entrypoint = rec.Cmd[0]
		if len(rec.Cmd) > 1 {
			out.ProcessConfig.Arguments = rec.Cmd[1:]
		} else {
			out.ProcessConfig.Arguments = nil
		}
	}
	return out, nil
}

// removeExecsFor drops all exec records for containerID, called from Remove.
func (m *Manager) removeExecsFor(containerID string) {
	m.execMu.Lock()
	defer m.execMu.Unlock()
	for id, rec := range m.execs {
		if rec.ContainerID == containerID {
			delete(m.execs, id)
		}
	}
}
