package image

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/events"
	"github.com/arca-project/arca/daemon/store"
	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	"github.com/distribution/reference"
	digest "github.com/opencontainers/go-digest"
)

// Store is the Image Store: an in-memory index of Image records, mirrored
// to the State Store's BucketImages, plus a tag table mapping repo:tag
// strings onto digests. Reads never touch bbolt; every mutation writes
// through before updating the in-memory index, the same shape
// daemon/containers.Manager uses for its own index.
type Store struct {
	backing *store.Store
	puller  Puller
	bus     *events.Bus

	mu     sync.RWMutex
	images map[digest.Digest]*Image
	tags   map[string]digest.Digest
}

// New creates an Image Store backed by s, pulling through puller.
func New(s *store.Store, puller Puller, bus *events.Bus) *Store {
	return &Store{
		backing: s,
		puller:  puller,
		bus:     bus,
		images:  map[digest.Digest]*Image{},
		tags:    map[string]digest.Digest{},
	}
}

// Load restores the index from the State Store at boot.
func (st *Store) Load(ctx context.Context) error {
	var records [][]byte
	err := st.backing.View(func(tx *store.Txn) error {
		return tx.Scan(store.BucketImages, "", func(key string, value []byte) bool {
			cp := make([]byte, len(value))
			copy(cp, value)
			records = append(records, cp)
			return true
		})
	})
	if err != nil {
		return store.Wrap(err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, data := range records {
		var img Image
		if err := json.Unmarshal(data, &img); err != nil {
			log.G(ctx).WithError(err).Warn("image store: skipping unreadable record")
			continue
		}
		st.images[img.ID] = &img
		for _, t := range img.RepoTags {
			st.tags[t] = img.ID
		}
	}
	return nil
}

func normalizeRef(ref string) (reference.Named, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return nil, errdefs.InvalidParameter(fmt.Errorf("image: invalid reference %q: %w", ref, err))
	}
	return reference.TagNameOnly(named), nil
}

// List returns every image in the index.
func (st *Store) List() []*Image {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Image, 0, len(st.images))
	for _, img := range st.images {
		out = append(out, img)
	}
	return out
}

// Inspect resolves ref (tag or digest, full or short) to its Image record.
func (st *Store) Inspect(ref string) (*Image, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if id, ok := st.tags[ref]; ok {
		return st.images[id], nil
	}
	if named, err := normalizeRef(ref); err == nil {
		if id, ok := st.tags[named.String()]; ok {
			return st.images[id], nil
		}
	}
	if img, ok := st.images[digest.Digest(ref)]; ok {
		return img, nil
	}
	// short ID / digest prefix match
	var match *Image
	for id, img := range st.images {
		if len(ref) >= 6 && len(id.Encoded()) >= len(ref) && id.Encoded()[:len(ref)] == ref {
			if match != nil {
				return nil, errdefs.InvalidParameter(fmt.Errorf("image: ambiguous reference %q", ref))
			}
			match = img
		}
	}
	if match == nil {
		return nil, errdefs.NotFound(fmt.Errorf("image: no such image %q", ref))
	}
	return match, nil
}

// Pull fetches ref via the Puller, streaming throttled progress lines to
// onProgress, and adds the resulting image to the index tagged as ref.
func (st *Store) Pull(ctx context.Context, ref string, auth *apitypes.AuthConfig, onProgress func(apitypes.JSONProgress)) (*Image, error) {
	named, err := normalizeRef(ref)
	if err != nil {
		return nil, err
	}

	desc, err := st.puller.Resolve(ctx, named.String(), auth)
	if err != nil {
		return nil, classifyPullError(err)
	}

	progressCh := make(chan ProgressEvent, 64)
	agg := newAggregator(desc, func(p apitypes.JSONProgress) {
		if onProgress != nil {
			onProgress(p)
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.run(runCtx, progressCh)
	}()

	pullErr := st.puller.Pull(ctx, named.String(), auth, progressCh)
	close(progressCh)
	wg.Wait()

	if pullErr != nil {
		if onProgress != nil {
			onProgress(apitypes.JSONProgress{Error: pullErr.Error()})
		}
		return nil, classifyPullError(pullErr)
	}

	img := &Image{
		ID:           desc.ManifestDigest,
		RepoDigests:  []string{named.Name() + "@" + desc.ManifestDigest.String()},
		RepoTags:     []string{named.String()},
		Size:         desc.Size,
		Created:      desc.Created,
		Architecture: desc.Architecture,
		OS:           desc.OS,
		Layers:       desc.Layers,
		Config:       desc.Config,
	}

	if err := st.persist(img); err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.images[img.ID] = img
	st.tags[named.String()] = img.ID
	st.mu.Unlock()

	if onProgress != nil {
		onProgress(apitypes.JSONProgress{Status: "Status: Downloaded newer image for " + named.String()})
	}
	st.bus.Log(events.TypeImage, "pull", st.actor(img))
	return img, nil
}

func classifyPullError(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*PullError); ok {
		switch de.Kind {
		case PullErrNotFound:
			return errdefs.NotFound(de.Err)
		case PullErrAuthRequired:
			return errdefs.Unauthorized(de.Err)
		case PullErrCorrupt:
			return errdefs.System(de.Err)
		default:
			return errdefs.Unavailable(de.Err)
		}
	}
	return errdefs.Unavailable(err)
}

// Tag creates (or overwrites) dstRef pointing at src's resolved image.
func (st *Store) Tag(src, dstRef string) error {
	img, err := st.Inspect(src)
	if err != nil {
		return err
	}
	named, err := normalizeRef(dstRef)
	if err != nil {
		return err
	}

	st.mu.Lock()
	img.RepoTags = appendUnique(img.RepoTags, named.String())
	st.tags[named.String()] = img.ID
	st.mu.Unlock()

	return st.persist(img)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Remove drops ref from the index. If ref was the
// image's last tag (or force is set) the Image record itself is deleted;
// otherwise only the tag is untagged.
func (st *Store) Remove(ref string, force bool) error {
	img, err := st.Inspect(ref)
	if err != nil {
		return err
	}

	named, err := normalizeRef(ref)
	tagStr := ref
	if err == nil {
		tagStr = named.String()
	}

	st.mu.Lock()
	remaining := make([]string, 0, len(img.RepoTags))
	for _, t := range img.RepoTags {
		if t != tagStr {
			remaining = append(remaining, t)
		}
	}
	img.RepoTags = remaining
	delete(st.tags, tagStr)
	deleteRecord := len(remaining) == 0 || force
	if deleteRecord {
		delete(st.images, img.ID)
		for t, id := range st.tags {
			if id == img.ID {
				delete(st.tags, t)
			}
		}
	}
	st.mu.Unlock()

	if deleteRecord {
		if err := store.Wrap(st.backing.Update(func(tx *store.Txn) error {
			return tx.Delete(store.BucketImages, img.ID.String())
		})); err != nil {
			return err
		}
		st.bus.Log(events.TypeImage, "delete", st.actor(img))
		return nil
	}
	return st.persist(img)
}

func (st *Store) persist(img *Image) error {
	data, err := json.Marshal(img)
	if err != nil {
		return errdefs.System(fmt.Errorf("image: marshal %s: %w", img.ID, err))
	}
	return store.Wrap(st.backing.Update(func(tx *store.Txn) error {
		return tx.Put(store.BucketImages, img.ID.String(), data)
	}))
}

func (st *Store) actor(img *Image) apitypes.EventActor {
	attrs := map[string]string{}
	if len(img.RepoTags) > 0 {
		attrs["name"] = img.RepoTags[0]
	}
	return apitypes.EventActor{ID: img.ID.String(), Attributes: attrs}
}

// Summary converts an Image into its GET /images/json wire shape.
func Summary(img *Image) apitypes.ImageSummary {
	return apitypes.ImageSummary{
		ID:          img.ID.String(),
		RepoTags:    img.RepoTags,
		RepoDigests: img.RepoDigests,
		Created:     img.Created.Unix(),
		Size:        img.Size,
	}
}

// InspectResponse converts an Image into its GET /images/{name}/json wire shape.
func InspectResponse(img *Image) apitypes.ImageInspect {
	layers := make([]string, len(img.Layers))
	for i, l := range img.Layers {
		layers[i] = l.String()
	}
	return apitypes.ImageInspect{
		ID:           img.ID.String(),
		RepoTags:     img.RepoTags,
		RepoDigests:  img.RepoDigests,
		Created:      img.Created.Format(time.RFC3339Nano),
		Size:         img.Size,
		Architecture: img.Architecture,
		Os:           img.OS,
		RootFS:       apitypes.RootFS{Type: "layers", Layers: layers},
	}
}
