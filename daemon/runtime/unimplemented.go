package runtime

import (
	"context"
	"errors"
	"io"
)

// errNoAdapter is returned by every UnimplementedAdapter method. The
// virtualization layer itself is outside this module's scope; this stub
// exists only so the Daemon Core can start up and bind its socket without
// a real VM runtime plugged in yet, failing clearly on the first call that
// actually needs one instead of a nil-pointer panic.
var errNoAdapter = errors.New("runtime: no adapter configured")

// UnimplementedAdapter is the zero-value default Adapter: every method
// fails with KindPermanent. A real deployment supplies its own Adapter
// wired to the external VM runtime framework.
type UnimplementedAdapter struct{}

func (UnimplementedAdapter) CreateVM(ctx context.Context, dockerID string, spec Spec) (Handle, error) {
	return nil, &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) Start(ctx context.Context, h Handle) error {
	return &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) Stop(ctx context.Context, h Handle, gracefulTimeout int) error {
	return &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) Kill(ctx context.Context, h Handle, signal string) error {
	return &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) Wait(ctx context.Context, h Handle) (WaitResult, error) {
	return WaitResult{}, &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) DialVsock(ctx context.Context, h Handle, port uint32) (io.ReadWriteCloser, error) {
	return nil, &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) AttachStdio(ctx context.Context, h Handle) (*Stdio, error) {
	return nil, &Error{Kind: KindPermanent, Err: errNoAdapter}
}

func (UnimplementedAdapter) Rebind(ctx context.Context, handleID string) (Handle, error) {
	return nil, &Error{Kind: KindPermanent, Err: errNoAdapter}
}
