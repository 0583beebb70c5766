package server

import (
	"fmt"
	"net/http"
	"strings"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/api/server/httputils"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	multierror "github.com/hashicorp/go-multierror"
)

// causer is implemented by internal/errdefs's error kinds: it marks a pure
// HTTP-classification wrapper whose own text adds nothing over its cause.
type causer interface {
	Cause() error
}

// pageNotFoundError is returned by the router for any path that doesn't
// match a registered route.
type pageNotFoundError struct{}

func (pageNotFoundError) Error() string  { return "page not found" }
func (pageNotFoundError) NotFound()      {}

// handleError is the single place an APIFunc's returned error becomes an
// HTTP response: status code from internal/errdefs.HTTPStatusCode, body
// from marshalErrorResponse.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	statusCode := errdefs.HTTPStatusCode(err)
	resp := marshalErrorResponse(err)
	log.G(r.Context()).WithError(err).WithField("status", statusCode).Error("handler returned error")
	_ = httputils.WriteJSON(w, statusCode, resp)
}

// marshalErrorResponse flattens an arbitrary error value — possibly an
// errdefs classification wrapper, an errors.Join/hashicorp multierror tree,
// or a multi-%w fmt.Errorf — into the wire error shape.
func marshalErrorResponse(err error) *apitypes.ErrorResponse {
	if err == nil {
		return nil
	}
	if c, ok := err.(causer); ok {
		return marshalErrorResponse(c.Cause())
	}
	if me, ok := err.(*multierror.Error); ok {
		return &apitypes.ErrorResponse{
			Message: formatErrors(me.Errors),
			Errors:  marshalChildren(me.Errors),
		}
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		children := u.Unwrap()
		msg := err.Error()
		if isPlainJoin(err, children) {
			msg = formatErrors(children)
		}
		return &apitypes.ErrorResponse{Message: msg, Errors: marshalChildren(children)}
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		resp := &apitypes.ErrorResponse{Message: err.Error()}
		if child := u.Unwrap(); child != nil {
			resp.Errors = []*apitypes.ErrorResponse{marshalErrorResponse(child)}
		}
		return resp
	}
	return &apitypes.ErrorResponse{Message: err.Error()}
}

func marshalChildren(errs []error) []*apitypes.ErrorResponse {
	out := make([]*apitypes.ErrorResponse, len(errs))
	for i, e := range errs {
		out[i] = marshalErrorResponse(e)
	}
	return out
}

// messageFor is formatErrors's single-error counterpart: the text a child
// contributes to its parent's synthesized message, recursing through
// nested join/multierror trees the same way marshalErrorResponse does.
func messageFor(err error) string {
	if c, ok := err.(causer); ok {
		return messageFor(c.Cause())
	}
	if me, ok := err.(*multierror.Error); ok {
		return formatErrors(me.Errors)
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		children := u.Unwrap()
		if isPlainJoin(err, children) {
			return formatErrors(children)
		}
	}
	return err.Error()
}

// formatErrors renders errs the way hashicorp/go-multierror's default
// ListFormatFunc does, recursing into nested join/multierror children so
// their headers nest correctly instead of spilling in unindented.
func formatErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = messageFor(e)
	}
	if len(msgs) == 1 {
		return fmt.Sprintf("1 error occurred:\n\t* %s", indent(msgs[0]))
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = "* " + indent(m)
	}
	return fmt.Sprintf("%d errors occurred:\n\t%s", len(msgs), strings.Join(lines, "\n\t"))
}

func indent(s string) string { return strings.ReplaceAll(s, "\n", "\n\t") }

// isPlainJoin reports whether err is an errors.Join-style container: its
// Error() is exactly its immediate children's Error() strings joined by
// "\n", with no format string of its own (unlike a multi-%w fmt.Errorf,
// whose Error() embeds the children in surrounding prose).
func isPlainJoin(err error, children []error) bool {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.Error()
	}
	return err.Error() == strings.Join(parts, "\n")
}
