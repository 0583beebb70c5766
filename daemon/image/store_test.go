package image

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/store"
	digest "github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"
)

// fakePuller is a deterministic Puller test double: Resolve returns a
// fixed 3-item Descriptor (manifest + 2 layers), Pull replays a canned
// event sequence synchronously.
type fakePuller struct {
	desc   Descriptor
	events []ProgressEvent
	err    error
}

func (f *fakePuller) Resolve(ctx context.Context, ref string, auth *apitypes.AuthConfig) (Descriptor, error) {
	return f.desc, nil
}

func (f *fakePuller) Pull(ctx context.Context, ref string, auth *apitypes.AuthConfig, events chan<- ProgressEvent) error {
	for _, ev := range f.events {
		events <- ev
	}
	return f.err
}

func newTestStore(t *testing.T, puller Puller) *Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, puller, events.New())
}

func threeItemPuller() *fakePuller {
	manifest := digest.FromString("manifest")
	layer0 := digest.FromString("layer0")
	layer1 := digest.FromString("layer1")
	return &fakePuller{
		desc: Descriptor{
			ManifestDigest: manifest,
			Layers:         []digest.Digest{layer0, layer1},
			Architecture:   "amd64",
			OS:             "linux",
			Created:        time.Now(),
			Size:           2048,
		},
		events: []ProgressEvent{
			{Kind: EventContainerSetupStart, Item: 0},
			{Kind: EventAddTotalSize, Bytes: 100, Item: 0},
			{Kind: EventAddSize, Bytes: 100, Item: 0},
			{Kind: EventContainerSetupComplete, Item: 0},
			{Kind: EventContainerSetupStart, Item: 1},
			{Kind: EventAddSize, Bytes: 1024, Item: 1},
			{Kind: EventContainerSetupComplete, Item: 1},
			{Kind: EventContainerSetupStart, Item: 2},
			{Kind: EventAddSize, Bytes: 512, Item: 2},
			{Kind: EventContainerSetupComplete, Item: 2},
		},
	}
}

func TestPullAddsImageTaggedAndIndexed(t *testing.T) {
	st := newTestStore(t, threeItemPuller())

	var lines []apitypes.JSONProgress
	img, err := st.Pull(context.Background(), "library/alpine:latest", nil, func(p apitypes.JSONProgress) {
		lines = append(lines, p)
	})
	assert.NilError(t, err)
	assert.Equal(t, img.RepoTags[0], "docker.io/library/alpine:latest")
	assert.Assert(t, len(lines) > 0)

	got, err := st.Inspect("docker.io/library/alpine:latest")
	assert.NilError(t, err)
	assert.Equal(t, got.ID, img.ID)
}

func TestPullCollapsesThirdItemOntoBulkLine(t *testing.T) {
	st := newTestStore(t, threeItemPuller())
	var ids []string
	_, err := st.Pull(context.Background(), "alpine:latest", nil, func(p apitypes.JSONProgress) {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	})
	assert.NilError(t, err)

	bulk := shortDigest(digest.FromString("layer1"))
	found := false
	for _, id := range ids {
		if id == bulk {
			found = true
		}
	}
	assert.Check(t, found, "item 2 must report on the bulk line keyed by the second layer")
}

func TestTagAndRemove(t *testing.T) {
	st := newTestStore(t, threeItemPuller())
	_, err := st.Pull(context.Background(), "alpine:latest", nil, nil)
	assert.NilError(t, err)

	err = st.Tag("alpine:latest", "myrepo/alpine:v1")
	assert.NilError(t, err)

	img, err := st.Inspect("myrepo/alpine:v1")
	assert.NilError(t, err)
	assert.Assert(t, len(img.RepoTags) == 2)

	assert.NilError(t, st.Remove("myrepo/alpine:v1", false))
	_, err = st.Inspect("myrepo/alpine:v1")
	assert.ErrorContains(t, err, "no such image")

	// last tag removed with force drops the record entirely
	assert.NilError(t, st.Remove("docker.io/library/alpine:latest", true))
	all := st.List()
	assert.Equal(t, len(all), 0)
}

func TestInspectUnknownReturnsNotFound(t *testing.T) {
	st := newTestStore(t, threeItemPuller())
	_, err := st.Inspect("nope:latest")
	assert.ErrorContains(t, err, "no such image")
}

func TestPullPropagatesPullerError(t *testing.T) {
	p := threeItemPuller()
	p.err = &PullError{Kind: PullErrNotFound, Err: assertError{"missing manifest"}}
	st := newTestStore(t, p)

	_, err := st.Pull(context.Background(), "alpine:latest", nil, nil)
	assert.ErrorContains(t, err, "missing manifest")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
