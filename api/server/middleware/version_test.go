package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/arca-project/arca/api/server/httputils"
	"gotest.tools/v3/assert"
)

func TestVersionMiddleware(t *testing.T) {
	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		assert.Assert(t, httputils.VersionFromContext(ctx) != "")
		return nil
	}

	m := NewVersionMiddleware("1.51", "1.24")
	h := m.WrapHandler(handler)

	req, _ := http.NewRequest("GET", "/containers/json", nil)
	resp := httptest.NewRecorder()
	assert.NilError(t, h(context.Background(), resp, req, map[string]string{}))
}

func TestVersionMiddlewareVersionTooOld(t *testing.T) {
	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		return nil
	}

	m := NewVersionMiddleware("1.51", "1.24")
	h := m.WrapHandler(handler)

	req, _ := http.NewRequest("GET", "/containers/json", nil)
	resp := httptest.NewRecorder()

	err := h(context.Background(), resp, req, map[string]string{"version": "1.1"})
	assert.ErrorContains(t, err, "client version 1.1 is too old. Minimum supported API version is 1.24")
}

func TestVersionMiddlewareVersionTooNew(t *testing.T) {
	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		return nil
	}

	m := NewVersionMiddleware("1.51", "1.24")
	h := m.WrapHandler(handler)

	req, _ := http.NewRequest("GET", "/containers/json", nil)
	resp := httptest.NewRecorder()

	err := h(context.Background(), resp, req, map[string]string{"version": "9999.9999"})
	assert.ErrorContains(t, err, "client version 9999.9999 is too new. Maximum supported API version is 1.51")
}

func TestVersionMiddlewareWithErrorsReturnsHeaders(t *testing.T) {
	handler := func(ctx context.Context, w http.ResponseWriter, r *http.Request, vars map[string]string) error {
		return nil
	}

	m := NewVersionMiddleware("1.51", "1.24")
	h := m.WrapHandler(handler)

	req, _ := http.NewRequest("GET", "/containers/json", nil)
	resp := httptest.NewRecorder()

	err := h(context.Background(), resp, req, map[string]string{"version": "1.1"})
	assert.Assert(t, err != nil)

	hdr := resp.Result().Header
	assert.Assert(t, hdr.Get("Server") != "")
	assert.Equal(t, hdr.Get("API-Version"), "1.51")
	assert.Equal(t, hdr.Get("OSType"), runtime.GOOS)
}
