package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
)

var errTest = errors.New("this is a test")

func TestNotFound(t *testing.T) {
	assert.Check(t, !IsNotFound(errTest))
	e := NotFound(errTest)
	assert.Check(t, IsNotFound(e))
	assert.Check(t, errors.Is(e, errTest))

	wrapped := fmt.Errorf("foo: %w", e)
	assert.Check(t, IsNotFound(wrapped))
	assert.Equal(t, HTTPStatusCode(e), http.StatusNotFound)
}

func TestConflict(t *testing.T) {
	e := Conflict(errTest)
	assert.Check(t, IsConflict(e))
	assert.Check(t, !IsNotFound(e))
	assert.Equal(t, HTTPStatusCode(e), http.StatusConflict)
}

func TestEachKindIsDistinct(t *testing.T) {
	kinds := []struct {
		name   string
		wrap   func(error) error
		is     func(error) bool
		status int
	}{
		{"NotFound", NotFound, IsNotFound, http.StatusNotFound},
		{"InvalidParameter", InvalidParameter, IsInvalidParameter, http.StatusBadRequest},
		{"Conflict", Conflict, IsConflict, http.StatusConflict},
		{"Unauthorized", Unauthorized, IsUnauthorized, http.StatusUnauthorized},
		{"Unavailable", Unavailable, IsUnavailable, http.StatusServiceUnavailable},
		{"Forbidden", Forbidden, IsForbidden, http.StatusForbidden},
		{"NotModified", NotModified, IsNotModified, http.StatusNotModified},
		{"NotImplemented", NotImplemented, IsNotImplemented, http.StatusNotImplemented},
		{"System", System, IsSystem, http.StatusInternalServerError},
		{"DeadlineExceeded", DeadlineExceeded, IsDeadlineExceeded, http.StatusRequestTimeout},
		{"Cancelled", Cancelled, IsCancelled, 499},
	}

	for _, k := range kinds {
		t.Run(k.name, func(t *testing.T) {
			e := k.wrap(errTest)
			assert.Check(t, k.is(e))
			assert.Equal(t, HTTPStatusCode(e), k.status)
			for _, other := range kinds {
				if other.name == k.name {
					continue
				}
				assert.Check(t, !other.is(e), "expected %s not to match %s", k.name, other.name)
			}
		})
	}
}

func TestNilWrapReturnsNil(t *testing.T) {
	assert.Check(t, NotFound(nil) == nil)
	assert.Check(t, Conflict(nil) == nil)
}
