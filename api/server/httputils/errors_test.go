package httputils

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/arca-project/arca/internal/errdefs"
	"gotest.tools/v3/assert"
)

func TestMatchesContentType(t *testing.T) {
	assert.NilError(t, matchesContentType("application/json", "application/json"))
	assert.NilError(t, matchesContentType("application/json; charset=utf-8", "application/json"))

	err := matchesContentType("dockerapplication/json", "application/json")
	assert.Error(t, err, "unsupported Content-Type header (dockerapplication/json): must be 'application/json'")

	err = matchesContentType("foo;;;bar", "application/json")
	assert.ErrorContains(t, err, "malformed Content-Type header (foo;;;bar)")
}

func TestFromStatusCode(t *testing.T) {
	testErr := fmt.Errorf("some error occurred")

	testCases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, errdefs.IsNotFound},
		{http.StatusBadRequest, errdefs.IsInvalidParameter},
		{http.StatusConflict, errdefs.IsConflict},
		{http.StatusUnauthorized, errdefs.IsUnauthorized},
		{http.StatusServiceUnavailable, errdefs.IsUnavailable},
		{http.StatusForbidden, errdefs.IsForbidden},
		{http.StatusNotModified, errdefs.IsNotModified},
		{http.StatusNotImplemented, errdefs.IsNotImplemented},
		{http.StatusRequestTimeout, errdefs.IsDeadlineExceeded},
		{499, errdefs.IsCancelled},
		{http.StatusInternalServerError, errdefs.IsSystem},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			err := FromStatusCode(testErr, tc.status)
			assert.Check(t, tc.check(err), "unexpected error-type %T", err)
		})
	}
}
