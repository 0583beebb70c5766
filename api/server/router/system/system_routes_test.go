package system

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/container"
	"github.com/arca-project/arca/daemon/events"
	"gotest.tools/v3/assert"
)

type fakeContainerLister struct{ containers []*container.Container }

func (f fakeContainerLister) List() []*container.Container { return f.containers }

func testInfo() VersionInfo {
	return VersionInfo{Version: "1.0.0-test", APIVersion: "1.51", MinAPIVersion: "1.24", Os: "linux", Arch: "amd64"}
}

func serveOne(t *testing.T, r *Router, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	var handler func(context.Context, http.ResponseWriter, *http.Request, map[string]string) error
	for _, rt := range r.Routes() {
		if rt.Method == method && rt.Path == path {
			handler = rt.Handler
			break
		}
	}
	assert.Assert(t, handler != nil)
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	assert.NilError(t, handler(context.Background(), rec, req, map[string]string{}))
	return rec
}

func TestPingReturnsOKWithHeaders(t *testing.T) {
	r := NewRouter(fakeContainerLister{}, nil, events.New(), testInfo(), "daemon-1")
	rec := serveOne(t, r, "GET", "/_ping")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Body.String(), "OK")
	assert.Equal(t, rec.Header().Get("API-Version"), "1.51")
}

func TestVersionReturnsConfiguredInfo(t *testing.T) {
	r := NewRouter(fakeContainerLister{}, nil, events.New(), testInfo(), "daemon-1")
	rec := serveOne(t, r, "GET", "/version")
	var v apitypes.VersionResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, v.APIVersion, "1.51")
	assert.Equal(t, v.MinAPIVersion, "1.24")
}

func TestInfoCountsContainersByStatus(t *testing.T) {
	cs := []*container.Container{
		{ID: "a", State: container.State{Status: container.StatusRunning}},
		{ID: "b", State: container.State{Status: container.StatusPaused}},
		{ID: "c", State: container.State{Status: container.StatusExited}},
	}
	r := NewRouter(fakeContainerLister{containers: cs}, nil, events.New(), testInfo(), "daemon-1")
	rec := serveOne(t, r, "GET", "/info")
	var info apitypes.InfoResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, info.Containers, 3)
	assert.Equal(t, info.ContainersRunning, 1)
	assert.Equal(t, info.ContainersPaused, 1)
	assert.Equal(t, info.ContainersStopped, 1)
	assert.Equal(t, info.ID, "daemon-1")
}
