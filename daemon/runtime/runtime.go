// Package runtime is the façade over the external VM runtime framework.
// The core only ever calls through the Adapter interface; what actually
// boots a Linux VM and exposes a vsock channel to its in-VM init process
// lives outside this module.
package runtime

import (
	"context"
	"io"
	"sync"

	"github.com/arca-project/arca/internal/errdefs"
)

// ErrorKind classifies a Runtime Adapter failure.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindPermanent
	KindNotFound
)

// Error wraps an adapter failure with its classification. AsDomainError
// maps a transient failure to Unavailable; no caller in this module
// retries it.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// AsDomainError maps a Runtime Adapter error onto the daemon's error taxonomy.
func AsDomainError(err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if as, ok := err.(*Error); ok {
		re = as
	} else {
		return errdefs.System(err)
	}
	switch re.Kind {
	case KindNotFound:
		return errdefs.NotFound(re.Err)
	case KindTransient:
		return errdefs.Unavailable(re.Err)
	default:
		return errdefs.System(re.Err)
	}
}

// Spec describes everything needed to create a VM for one container.
type Spec struct {
	ImageRef   string
	Command    []string
	Env        []string
	Mounts     []Mount
	WorkingDir string
	TTY        bool
	OpenStdin  bool
	Memory     int64
	NanoCPUs   int64
	KernelPath string
}

// Mount is one host-path -> guest-path bind.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// WaitResult is the outcome of a VM's process exiting.
type WaitResult struct {
	ExitCode int
	Signaled bool
	OOM      bool
}

// Handle is an opaque reference to a running or stopped VM. The concrete
// value is supplied by the external runtime framework; the core treats it
// as opaque and persists only its string ID (HandleID), the Docker-ID
// <-> runtime-ID bijection the adapter maintains.
type Handle interface {
	HandleID() string
}

// Stdio is the set of attached stdio streams for a VM.
type Stdio struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Adapter is the thin façade over the external VM runtime. All methods
// may return a *Error so callers can branch on ErrorKind.
type Adapter interface {
	CreateVM(ctx context.Context, dockerID string, spec Spec) (Handle, error)
	Start(ctx context.Context, h Handle) error
	Stop(ctx context.Context, h Handle, gracefulTimeout int) error
	Kill(ctx context.Context, h Handle, signal string) error
	Wait(ctx context.Context, h Handle) (WaitResult, error)
	DialVsock(ctx context.Context, h Handle, port uint32) (io.ReadWriteCloser, error)
	AttachStdio(ctx context.Context, h Handle) (*Stdio, error)

	// Rebind recovers a Handle for a previously-created VM after a daemon
	// restart, by its persisted HandleID. Returns a KindNotFound *Error if
	// the VM is no longer known to the runtime framework; crash recovery
	// relies on this to detect orphaned containers.
	Rebind(ctx context.Context, handleID string) (Handle, error)
}

// Registry maintains the Docker-ID <-> runtime-handle-ID bijection the
// adapter owns. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byDocker  map[string]Handle
	byHandle  map[string]string // handleID -> dockerID
}

// NewRegistry creates an empty bijection registry.
func NewRegistry() *Registry {
	return &Registry{byDocker: map[string]Handle{}, byHandle: map[string]string{}}
}

// Bind records that dockerID is backed by h.
func (r *Registry) Bind(dockerID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDocker[dockerID] = h
	r.byHandle[h.HandleID()] = dockerID
}

// Unbind removes dockerID's handle, if any.
func (r *Registry) Unbind(dockerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byDocker[dockerID]; ok {
		delete(r.byHandle, h.HandleID())
	}
	delete(r.byDocker, dockerID)
}

// Handle returns the bound Handle for dockerID, if any.
func (r *Registry) Handle(dockerID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byDocker[dockerID]
	return h, ok
}

// DockerID returns the dockerID bound to handleID, if any.
func (r *Registry) DockerID(handleID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handleID]
	return id, ok
}
