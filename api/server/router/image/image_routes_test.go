package image

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/image"
	"github.com/arca-project/arca/daemon/store"
	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"
)

// fakePuller is a deterministic Puller test double mirroring the one in
// daemon/image/store_test.go: Resolve returns a fixed descriptor, Pull
// replays a canned event sequence synchronously.
type fakePuller struct{}

func (f *fakePuller) Resolve(ctx context.Context, ref string, auth *apitypes.AuthConfig) (image.Descriptor, error) {
	return image.Descriptor{
		ManifestDigest: digest.FromString("manifest"),
		Layers:         []digest.Digest{digest.FromString("layer0")},
		Architecture:   "amd64",
		OS:             "linux",
		Created:        time.Now(),
		Size:           1024,
	}, nil
}

func (f *fakePuller) Pull(ctx context.Context, ref string, auth *apitypes.AuthConfig, ch chan<- image.ProgressEvent) error {
	ch <- image.ProgressEvent{Kind: image.EventContainerSetupStart, Item: 0}
	ch <- image.ProgressEvent{Kind: image.EventAddSize, Bytes: 1024, Item: 0}
	ch <- image.ProgressEvent{Kind: image.EventContainerSetupComplete, Item: 0}
	return nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewRouter(image.New(s, &fakePuller{}, events.New()))
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

func pull(t *testing.T, r *Router, ref string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/images/create?fromImage="+ref, nil)
	rec := httptest.NewRecorder()
	for _, rt := range r.Routes() {
		if rt.Method == "POST" && rt.Path == "/images/create" {
			assert.NilError(t, rt.Handler(context.Background(), rec, req, map[string]string{}))
		}
	}
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestPullThenListThenInspect(t *testing.T) {
	r := newTestRouter(t)
	pull(t, r, "library/alpine:latest")

	rec := serveOne(t, r, "GET", "/images/json", nil, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var list []apitypes.ImageSummary
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, len(list), 1)

	rec = serveOne(t, r, "GET", "/images/{name:.*}/json", map[string]string{"name": "docker.io/library/alpine:latest"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	var inspect apitypes.ImageInspect
	assert.NilError(t, json.Unmarshal(rec.Body.Bytes(), &inspect))
	assert.Equal(t, inspect.RepoTags[0], "docker.io/library/alpine:latest")
}

func TestInspectUnknownImageIsNotFound(t *testing.T) {
	r := newTestRouter(t)
	rec := serveOne(t, r, "GET", "/images/{name:.*}/json", map[string]string{"name": "nope:latest"}, nil)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
	assert.Assert(t, bytes.Contains(rec.Body.Bytes(), []byte("no such image")))
}

func TestTagThenRemove(t *testing.T) {
	r := newTestRouter(t)
	pull(t, r, "alpine:latest")

	req := httptest.NewRequest("POST", "/images/alpine:latest/tag?repo=myrepo/alpine&tag=v1", nil)
	var rec *httptest.ResponseRecorder
	for _, rt := range r.Routes() {
		if rt.Method == "POST" && rt.Path == "/images/{name:.*}/tag" {
			rec = httptest.NewRecorder()
			assert.NilError(t, rt.Handler(context.Background(), rec, req, map[string]string{"name": "alpine:latest"}))
		}
	}
	assert.Equal(t, rec.Code, http.StatusCreated)

	rec = serveOne(t, r, "DELETE", "/images/{name:.*}", map[string]string{"name": "myrepo/alpine:v1"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = serveOne(t, r, "GET", "/images/{name:.*}/json", map[string]string{"name": "myrepo/alpine:v1"}, nil)
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
}

func TestPrunesUntaggedImages(t *testing.T) {
	r := newTestRouter(t)
	pull(t, r, "alpine:latest")

	req := httptest.NewRequest("POST", "/images/alpine:latest/tag?repo=myrepo/alpine&tag=v1", nil)
	var tagRec *httptest.ResponseRecorder
	for _, rt := range r.Routes() {
		if rt.Method == "POST" && rt.Path == "/images/{name:.*}/tag" {
			tagRec = httptest.NewRecorder()
			assert.NilError(t, rt.Handler(context.Background(), tagRec, req, map[string]string{"name": "alpine:latest"}))
		}
	}
	assert.Equal(t, tagRec.Code, http.StatusCreated)

	rec := serveOne(t, r, "DELETE", "/images/{name:.*}", map[string]string{"name": "docker.io/library/alpine:latest"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
	rec = serveOne(t, r, "DELETE", "/images/{name:.*}", map[string]string{"name": "myrepo/alpine:v1"}, nil)
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = serveOne(t, r, "POST", "/images/prune", nil, nil)
	assert.Equal(t, rec.Code, http.StatusOK)
}

func TestDecodeRegistryAuthReturnsNilOnGarbage(t *testing.T) {
	assert.Assert(t, decodeRegistryAuth("") == nil)
	assert.Assert(t, decodeRegistryAuth("not-base64!!") == nil)
}
