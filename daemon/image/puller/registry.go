// Package puller implements daemon/image.Puller against real container
// registries using google/go-containerregistry, a distribution-protocol
// client, rather than hand-rolling the registry HTTP/2.2 dance ourselves.
package puller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/arca-project/arca/daemon/image"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	digest "github.com/opencontainers/go-digest"
)

// Registry is an image.Puller backed by a live registry client.
type Registry struct{}

// New creates a registry-backed Puller.
func New() *Registry { return &Registry{} }

func authenticator(auth *apitypes.AuthConfig) authn.Authenticator {
	if auth == nil || (auth.Username == "" && auth.IdentityToken == "") {
		return authn.Anonymous
	}
	if auth.IdentityToken != "" {
		return &authn.Bearer{Token: auth.IdentityToken}
	}
	return &authn.Basic{Username: auth.Username, Password: auth.Password}
}

func (r *Registry) resolveImage(ctx context.Context, ref string, auth *apitypes.AuthConfig) (name.Reference, v1.Image, error) {
	nref, err := name.ParseReference(ref)
	if err != nil {
		return nil, nil, &image.PullError{Kind: image.PullErrRegistry, Err: fmt.Errorf("puller: parse %q: %w", ref, err)}
	}
	img, err := remote.Image(nref, remote.WithContext(ctx), remote.WithAuth(authenticator(auth)))
	if err != nil {
		return nref, nil, classifyRemoteError(err)
	}
	return nref, img, nil
}

// Resolve fetches the manifest and config (no layer bytes) so the Image
// Store knows every item's digest before Pull reports any progress.
func (r *Registry) Resolve(ctx context.Context, ref string, auth *apitypes.AuthConfig) (image.Descriptor, error) {
	_, img, err := r.resolveImage(ctx, ref, auth)
	if err != nil {
		return image.Descriptor{}, err
	}

	manifestDigest, err := img.Digest()
	if err != nil {
		return image.Descriptor{}, &image.PullError{Kind: image.PullErrCorrupt, Err: err}
	}
	manifest, err := img.Manifest()
	if err != nil {
		return image.Descriptor{}, &image.PullError{Kind: image.PullErrCorrupt, Err: err}
	}
	layers, err := img.Layers()
	if err != nil {
		return image.Descriptor{}, &image.PullError{Kind: image.PullErrCorrupt, Err: err}
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return image.Descriptor{}, &image.PullError{Kind: image.PullErrCorrupt, Err: err}
	}

	var size int64
	layerDigests := make([]digest.Digest, len(layers))
	for i, l := range layers {
		d, err := l.Digest()
		if err != nil {
			return image.Descriptor{}, &image.PullError{Kind: image.PullErrCorrupt, Err: err}
		}
		layerDigests[i] = digest.Digest(d.String())
		if sz, err := l.Size(); err == nil {
			size += sz
		}
	}

	return image.Descriptor{
		Ref:            ref,
		ManifestDigest: digest.Digest(manifestDigest.String()),
		ConfigDigest:   digest.Digest(manifest.Config.Digest.String()),
		Layers:         layerDigests,
		Architecture:   cfg.Architecture,
		OS:             cfg.OS,
		Created:        cfg.Created.Time,
		Size:           size,
		Config: image.ImageConfig{
			Cmd:        cfg.Config.Cmd,
			Entrypoint: cfg.Config.Entrypoint,
			Env:        cfg.Config.Env,
			WorkingDir: cfg.Config.WorkingDir,
			User:       cfg.Config.User,
		},
	}, nil
}

// Pull streams the raw manifest and every compressed layer blob, discarding
// the bytes (this module never stores raw layer content itself — the Runtime
// Adapter's VM boots from the image reference directly) while
// emitting ProgressEvents as each item is opened, copied, and closed. Item
// 0 is the manifest, items 1..N are the ordered layers; the config blob is
// not streamed here (Resolve reads it).
func (r *Registry) Pull(ctx context.Context, ref string, auth *apitypes.AuthConfig, events chan<- image.ProgressEvent) error {
	_, img, err := r.resolveImage(ctx, ref, auth)
	if err != nil {
		return err
	}
	layers, err := img.Layers()
	if err != nil {
		return &image.PullError{Kind: image.PullErrCorrupt, Err: err}
	}

	events <- image.ProgressEvent{Kind: image.EventAddTotalItems, Items: int64(len(layers) + 1)}

	if err := pullItem(ctx, events, 0, func() (io.ReadCloser, int64, error) {
		raw, err := img.RawManifest()
		if err != nil {
			return nil, 0, err
		}
		return io.NopCloser(bytes.NewReader(raw)), int64(len(raw)), nil
	}); err != nil {
		return err
	}

	for i, l := range layers {
		layer := l
		idx := i + 1
		if err := pullItem(ctx, events, idx, func() (io.ReadCloser, int64, error) {
			rc, err := layer.Compressed()
			if err != nil {
				return nil, 0, err
			}
			size, _ := layer.Size()
			return rc, size, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func pullItem(ctx context.Context, events chan<- image.ProgressEvent, item int, open func() (io.ReadCloser, int64, error)) error {
	events <- image.ProgressEvent{Kind: image.EventContainerSetupStart, Item: item}

	rc, size, err := open()
	if err != nil {
		return &image.PullError{Kind: image.PullErrRegistry, Err: err}
	}
	defer rc.Close()

	if size > 0 {
		events <- image.ProgressEvent{Kind: image.EventAddTotalSize, Bytes: size, Item: item}
	}

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return &image.PullError{Kind: image.PullErrRegistry, Err: ctx.Err()}
		default:
		}
		n, rerr := rc.Read(buf)
		if n > 0 {
			events <- image.ProgressEvent{Kind: image.EventAddSize, Bytes: int64(n), Item: item}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return &image.PullError{Kind: image.PullErrRegistry, Err: rerr}
		}
	}

	events <- image.ProgressEvent{Kind: image.EventAddItems, Items: 1, Item: item}
	events <- image.ProgressEvent{Kind: image.EventContainerSetupComplete, Item: item}
	return nil
}

func classifyRemoteError(err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		switch terr.StatusCode {
		case 404:
			return &image.PullError{Kind: image.PullErrNotFound, Err: err}
		case 401, 403:
			return &image.PullError{Kind: image.PullErrAuthRequired, Err: err}
		}
	}
	return &image.PullError{Kind: image.PullErrRegistry, Err: err}
}
