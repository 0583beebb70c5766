// Package errdefs defines the error taxonomy every Arca component maps its
// failures onto before they cross a component boundary. Each kind is a
// wrapped-cause type, not a sentinel value, so callers keep the original
// error for logging while still being able to ask "is this a NotFound?" via
// errors.Is/As.
package errdefs

import "errors"

// causer is implemented by every error kind below so existing moby-style
// callers that type-assert for Cause() keep working.
type causer interface {
	Cause() error
}

type errNotFound struct{ error }

func (e errNotFound) Cause() error { return e.error }
func (e errNotFound) Unwrap() error { return e.error }
func (e errNotFound) NotFound()     {}

type errInvalidParameter struct{ error }

func (e errInvalidParameter) Cause() error        { return e.error }
func (e errInvalidParameter) Unwrap() error        { return e.error }
func (e errInvalidParameter) InvalidParameter()    {}

type errConflict struct{ error }

func (e errConflict) Cause() error  { return e.error }
func (e errConflict) Unwrap() error { return e.error }
func (e errConflict) Conflict()     {}

type errUnauthorized struct{ error }

func (e errUnauthorized) Cause() error  { return e.error }
func (e errUnauthorized) Unwrap() error { return e.error }
func (e errUnauthorized) Unauthorized() {}

type errUnavailable struct{ error }

func (e errUnavailable) Cause() error  { return e.error }
func (e errUnavailable) Unwrap() error { return e.error }
func (e errUnavailable) Unavailable()  {}

type errForbidden struct{ error }

func (e errForbidden) Cause() error  { return e.error }
func (e errForbidden) Unwrap() error { return e.error }
func (e errForbidden) Forbidden()    {}

type errNotModified struct{ error }

func (e errNotModified) Cause() error  { return e.error }
func (e errNotModified) Unwrap() error { return e.error }
func (e errNotModified) NotModified()  {}

type errNotImplemented struct{ error }

func (e errNotImplemented) Cause() error      { return e.error }
func (e errNotImplemented) Unwrap() error     { return e.error }
func (e errNotImplemented) NotImplemented()   {}

type errSystem struct{ error }

func (e errSystem) Cause() error  { return e.error }
func (e errSystem) Unwrap() error { return e.error }
func (e errSystem) System()       {}

type errDeadline struct{ error }

func (e errDeadline) Cause() error          { return e.error }
func (e errDeadline) Unwrap() error         { return e.error }
func (e errDeadline) DeadlineExceeded()     {}

type errCancelled struct{ error }

func (e errCancelled) Cause() error  { return e.error }
func (e errCancelled) Unwrap() error { return e.error }
func (e errCancelled) Cancelled()    {}

// NotFound wraps err to indicate the requested id/name/resource is unknown.
func NotFound(err error) error {
	if err == nil {
		return nil
	}
	return errNotFound{err}
}

// InvalidParameter wraps err to indicate a malformed request.
func InvalidParameter(err error) error {
	if err == nil {
		return nil
	}
	return errInvalidParameter{err}
}

// Conflict wraps err to indicate the requested state transition isn't permitted.
func Conflict(err error) error {
	if err == nil {
		return nil
	}
	return errConflict{err}
}

// Unauthorized wraps err to indicate missing or invalid credentials (registry auth).
func Unauthorized(err error) error {
	if err == nil {
		return nil
	}
	return errUnauthorized{err}
}

// Unavailable wraps err to indicate a dependency is temporarily down.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return errUnavailable{err}
}

// Forbidden wraps err to indicate the operation is not permitted.
func Forbidden(err error) error {
	if err == nil {
		return nil
	}
	return errForbidden{err}
}

// NotModified wraps err to indicate the request was already satisfied (e.g. a
// start on an already-running container).
func NotModified(err error) error {
	if err == nil {
		return nil
	}
	return errNotModified{err}
}

// NotImplemented wraps err to indicate the route/feature isn't implemented.
func NotImplemented(err error) error {
	if err == nil {
		return nil
	}
	return errNotImplemented{err}
}

// System wraps err to indicate an internal/storage/runtime failure the
// caller can't do anything about. Covers storage errors, network errors,
// and permanent runtime errors.
func System(err error) error {
	if err == nil {
		return nil
	}
	return errSystem{err}
}

// DeadlineExceeded wraps err to indicate an operation's deadline expired.
func DeadlineExceeded(err error) error {
	if err == nil {
		return nil
	}
	return errDeadline{err}
}

// Cancelled wraps err to indicate the caller cancelled the operation.
func Cancelled(err error) error {
	if err == nil {
		return nil
	}
	return errCancelled{err}
}

// interfaces used by the Is* helpers. An error need not use the concrete
// types above to be recognized — any error implementing these marker
// interfaces is recognized, matching moby's errdefs design.
type (
	hasNotFound         interface{ NotFound() }
	hasInvalidParameter interface{ InvalidParameter() }
	hasConflict         interface{ Conflict() }
	hasUnauthorized     interface{ Unauthorized() }
	hasUnavailable      interface{ Unavailable() }
	hasForbidden        interface{ Forbidden() }
	hasNotModified      interface{ NotModified() }
	hasNotImplemented   interface{ NotImplemented() }
	hasSystem           interface{ System() }
	hasDeadline         interface{ DeadlineExceeded() }
	hasCancelled        interface{ Cancelled() }
)

func as[T any](err error) bool {
	if err == nil {
		return false
	}
	var target T
	return errors.As(err, &target)
}

func IsNotFound(err error) bool         { return as[hasNotFound](err) }
func IsInvalidParameter(err error) bool { return as[hasInvalidParameter](err) }
func IsConflict(err error) bool         { return as[hasConflict](err) }
func IsUnauthorized(err error) bool     { return as[hasUnauthorized](err) }
func IsUnavailable(err error) bool      { return as[hasUnavailable](err) }
func IsForbidden(err error) bool        { return as[hasForbidden](err) }
func IsNotModified(err error) bool      { return as[hasNotModified](err) }
func IsNotImplemented(err error) bool   { return as[hasNotImplemented](err) }
func IsSystem(err error) bool           { return as[hasSystem](err) }
func IsDeadlineExceeded(err error) bool { return as[hasDeadline](err) }
func IsCancelled(err error) bool        { return as[hasCancelled](err) }
