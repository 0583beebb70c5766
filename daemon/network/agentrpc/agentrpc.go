// Package agentrpc defines the wire protocol and client for the internal
// control RPCs: the network agent (bridge lifecycle), and the DNS push RPC
// to each container's embedded resolver. Both are carried over a vsock
// byte stream opened through the Runtime Adapter; since there is no
// protobuf toolchain available to this module, the wire format is
// newline-delimited JSON with a {method, params} envelope and a
// {ok, error, result} response, mirroring the length/record-delimited
// framing used for other streams rather than inventing a byte-level
// format of its own.
package agentrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// DefaultTimeout is the default deadline for control-plane RPCs.
const DefaultTimeout = 10 * time.Second

// request/response envelope.
type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Client issues RPCs over a single vsock stream. Not safe for concurrent
// use by multiple goroutines; callers serialize calls (the Network
// Controller does this, since IPAM mutations are serialized per network
// and DNS pushes are serialized per container).
type Client struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader
}

// NewClient wraps an already-dialed vsock stream.
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn)}
}

// Close closes the underlying stream.
func (c *Client) Close() error { return c.conn.Close() }

// Call issues method with params marshaled to JSON, decoding the result into
// out (which may be nil if no result is expected). When ctx has a deadline
// and the stream supports SetDeadline, that deadline is applied to the
// stream; cancelling ctx does not interrupt a blocked write or read.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	var raw json.RawMessage
	var err error
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("agentrpc: marshal params: %w", err)
		}
	}

	line, err := json.Marshal(request{Method: method, Params: raw})
	if err != nil {
		return fmt.Errorf("agentrpc: marshal request: %w", err)
	}
	line = append(line, '\n')

	if dl, ok := ctx.Deadline(); ok {
		type deadliner interface{ SetDeadline(time.Time) error }
		if d, ok := c.conn.(deadliner); ok {
			_ = d.SetDeadline(dl)
		}
	}

	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("agentrpc: write %s: %w", method, err)
	}

	respLine, err := c.r.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("agentrpc: read %s response: %w", method, err)
	}

	var resp response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("agentrpc: decode %s response: %w", method, err)
	}
	if !resp.OK {
		return fmt.Errorf("agentrpc: %s: %s", method, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("agentrpc: decode %s result: %w", method, err)
		}
	}
	return nil
}

// WriteResponse is a small server-side helper used by test doubles / future
// in-process agent stand-ins to emit a well-formed response line.
func WriteResponse(w io.Writer, result interface{}, callErr error) error {
	resp := response{OK: callErr == nil}
	if callErr != nil {
		resp.Error = callErr.Error()
	} else if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resp.Result = b
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
