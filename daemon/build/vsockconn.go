package build

import (
	"io"
	"net"
	"time"
)

// vsockConn adapts a vsock io.ReadWriteCloser (runtime.Adapter.DialVsock's
// return type) to net.Conn, which buildkit's grpc-based client requires
// its dialer to return. vsock streams have no addresses or I/O deadlines
// of their own, so those methods are no-ops.
type vsockConn struct {
	io.ReadWriteCloser
}

func (vsockConn) LocalAddr() net.Addr               { return vsockAddr{} }
func (vsockConn) RemoteAddr() net.Addr              { return vsockAddr{} }
func (vsockConn) SetDeadline(time.Time) error      { return nil }
func (vsockConn) SetReadDeadline(time.Time) error  { return nil }
func (vsockConn) SetWriteDeadline(time.Time) error { return nil }

type vsockAddr struct{}

func (vsockAddr) Network() string { return "vsock" }
func (vsockAddr) String() string  { return "vsock" }
