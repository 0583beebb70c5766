// Package image implements the Image Store: the local OCI image index plus
// pull-progress aggregation on top of an injected Puller. The actual
// registry byte-pulling lives behind that interface (see
// daemon/image/puller), the same split moby draws between daemon/images
// (index, tagging, GC bookkeeping) and the content-addressed blob store
// underneath it.
package image

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Image is one entry of the local image index.
type Image struct {
	ID           digest.Digest `json:"id"`
	RepoTags     []string      `json:"repoTags"`
	RepoDigests  []string      `json:"repoDigests"`
	Size         int64         `json:"size"`
	Created      time.Time     `json:"created"`
	Architecture string        `json:"architecture"`
	OS           string        `json:"os"`
	Layers       []digest.Digest `json:"layers"`
	Config       ImageConfig   `json:"config"`
}

// ImageConfig is the subset of the OCI image config the core needs to seed
// a Runtime Adapter Spec when no per-container override is given.
type ImageConfig struct {
	Cmd        []string `json:"cmd,omitempty"`
	Entrypoint []string `json:"entrypoint,omitempty"`
	Env        []string `json:"env,omitempty"`
	WorkingDir string   `json:"workingDir,omitempty"`
	User       string   `json:"user,omitempty"`
}

// Descriptor is what Puller.Resolve returns: the full list of
// content-addressed items (manifest, config, layers) a pull will touch,
// known before any blob bytes move. The Image Store uses it both to build
// the final Image record and to key progress lines (the first two items
// reuse the manifest and first-layer digests).
type Descriptor struct {
	Ref            string
	ManifestDigest digest.Digest
	ConfigDigest   digest.Digest
	Layers         []digest.Digest
	Architecture   string
	OS             string
	Created        time.Time
	Config         ImageConfig
	Size           int64
}
