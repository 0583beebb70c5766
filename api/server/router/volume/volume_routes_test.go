package volume

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/daemon/volume"
	"gotest.tools/v3/assert"
)

// fakeBlockProvisioner mirrors daemon/volume/volume_test.go's test double.
type fakeBlockProvisioner struct{}

func (f *fakeBlockProvisioner) Provision(ctx context.Context, name string) (string, error) {
	return "/dev/fake" + name, nil
}
func (f *fakeBlockProvisioner) Deprovision(ctx context.Context, name, mountpoint string) error {
	return nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })

	files := volume.NewFilesDriver(t.TempDir())
	block := volume.NewBlockDriver(&fakeBlockProvisioner{})
	return NewRouter(volume.NewManager(s, events.New(), files, block))
}

func serveOne(t *testing.T, r *Router, method, path string, vars map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var handler func(context.Context, http.ResponseWriter, *http.Request, map[string]string) error
	for _, rt := range r.Routes() {
		if rt.Method == method && rt.Path == path {
			handler = rt.Handler
			break
		}
	}
	assert.Assert(t, handler != nil)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	if vars == nil {
		vars = map[string]string{}
	}
	if err := handler(context.Background(), rec, req, vars); err != nil {
		rec.Code = http.StatusInternalServerError
		_ = json.NewEncoder(rec.Body).Encode(map[string]string{"message": err.Error()})
	}
	return rec
}

func TestCreateThenListThenInspect(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(apitypes.VolumeCreateRequest{Name: "data", Driver: "files"})
	rec := serveOne(t, r, "POST", "/volumes/create", nil, body)
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created apitypes.Volume
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, created.Name, "data")

	rec = serveOne(t, r, "GET", "/volumes", nil, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var list apitypes.VolumeListResponse
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, len(list.Volumes), 1)

	rec = serveOne(t, r, "GET", "/volumes/{name}", map[string]string{"name": "data"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestInspectUnknownVolumeIsNotFound(t *testing.T) {
	r := newTestRouter(t)
	rec := serveOne(t, r, "GET", "/volumes/{name}", map[string]string{"name": "nope"}, nil)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	assert.Assert(t, bytes.Contains(rec.Body.Bytes(), []byte("no such volume")))
}

func TestRemoveThenPrune(t *testing.T) {
	r := newTestRouter(t)
	body, _ := json.Marshal(apitypes.VolumeCreateRequest{Name: "data", Driver: "files"})
	rec := serveOne(t, r, "POST", "/volumes/create", nil, body)
	assert.Equal(t, rec.Code, http.StatusCreated)

	rec = serveOne(t, r, "DELETE", "/volumes/{name}", map[string]string{"name": "data"}, nil)
	assert.Equal(t, rec.Code, http.StatusNoContent)

	body, _ = json.Marshal(apitypes.VolumeCreateRequest{Name: "idle", Driver: "files"})
	rec = serveOne(t, r, "POST", "/volumes/create", nil, body)
	assert.Equal(t, rec.Code, http.StatusCreated)

	rec = serveOne(t, r, "POST", "/volumes/prune", nil, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var report map[string]interface{}
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	deleted, ok := report["VolumesDeleted"].([]interface{})
	assert.Assert(t, ok)
	assert.Equal(t, len(deleted), 1)
}
