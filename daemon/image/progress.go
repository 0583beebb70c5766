package image

import (
	"context"
	"fmt"
	"sync"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	units "github.com/docker/go-units"
	digest "github.com/opencontainers/go-digest"
)

// EventKind is one of the typed progress events a Puller emits. The Puller
// has no notion of "lines" or wire format; it only reports deltas against
// an item it previously announced via ContainerSetupStart.
type EventKind int

const (
	EventAddTotalSize EventKind = iota
	EventAddTotalItems
	EventAddSize
	EventAddItems
	EventContainerSetupStart
	EventContainerSetupComplete
)

// ProgressEvent is one message on the channel a Puller writes to during
// Pull. Bytes/Items carry the delta for the Add* kinds; Item carries the
// 0-based item index for the ContainerSetupStart/Complete kinds.
type ProgressEvent struct {
	Kind  EventKind
	Bytes int64
	Items int64
	Item  int
}

// PullErrorKind classifies a Puller failure.
type PullErrorKind int

const (
	PullErrRegistry PullErrorKind = iota
	PullErrNotFound
	PullErrAuthRequired
	PullErrCorrupt
)

// PullError wraps a Puller failure with its classification.
type PullError struct {
	Kind PullErrorKind
	Err  error
}

func (e *PullError) Error() string { return e.Err.Error() }
func (e *PullError) Unwrap() error { return e.Err }

// Puller is the injected registry-pull primitive. Resolve
// fetches the manifest/config without pulling layer blobs, so the Image
// Store knows the full item list (and their digests) before any progress
// event arrives. Pull then streams everything, reporting progress on
// events.
type Puller interface {
	Resolve(ctx context.Context, ref string, auth *apitypes.AuthConfig) (Descriptor, error)
	Pull(ctx context.Context, ref string, auth *apitypes.AuthConfig, events chan<- ProgressEvent) error
}

// progressLine is the accumulated state of one rendered output line.
type progressLine struct {
	id      string
	status  string
	current int64
	total   int64
	done    bool
}

// aggregator converts the Puller's typed events into Docker-shaped
// JSONProgress lines on a throttled timer, flushing at most every ~100ms
// or on completion. Item 0 is keyed by the manifest digest,
// item 1 by the first layer's digest; every item from 2 on collapses onto
// a single "bulk layers" line keyed by the second layer's digest, matching
// long-standing client rendering instead of fabricating one line per blob
// the Puller never separately reports on.
type aggregator struct {
	desc     Descriptor
	onLine   func(apitypes.JSONProgress)
	interval time.Duration

	mu       sync.Mutex
	order    []string
	lines    map[string]*progressLine
	active   int // item index most recently opened via ContainerSetupStart
	dirty    bool
}

func newAggregator(desc Descriptor, onLine func(apitypes.JSONProgress)) *aggregator {
	return &aggregator{
		desc:     desc,
		onLine:   onLine,
		interval: 100 * time.Millisecond,
		lines:    map[string]*progressLine{},
		active:   -1,
	}
}

// keyFor maps an item index onto its rendered line key and initial status.
func (a *aggregator) keyFor(item int) (key, status string) {
	switch {
	case item == 0:
		return shortDigest(a.desc.ManifestDigest), "Pulling from registry"
	case item == 1:
		if len(a.desc.Layers) > 0 {
			return shortDigest(a.desc.Layers[0]), "Pulling fs layer"
		}
		return fmt.Sprintf("item-%d", item), "Pulling fs layer"
	default:
		if len(a.desc.Layers) > 1 {
			return shortDigest(a.desc.Layers[1]), "Pulling bulk layers"
		}
		return "bulk", "Pulling bulk layers"
	}
}

func shortDigest(d digest.Digest) string {
	enc := d.Encoded()
	if len(enc) <= 12 {
		return enc
	}
	return enc[:12]
}

func (a *aggregator) apply(ev ProgressEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Kind {
	case EventContainerSetupStart:
		a.active = ev.Item
		key, status := a.keyFor(ev.Item)
		if _, ok := a.lines[key]; !ok {
			a.lines[key] = &progressLine{id: key, status: status}
			a.order = append(a.order, key)
		}
		a.dirty = true
	case EventContainerSetupComplete:
		if a.active >= 0 {
			key, _ := a.keyFor(a.active)
			if l, ok := a.lines[key]; ok {
				l.done = true
				l.status = "Download complete"
			}
		}
		a.dirty = true
	case EventAddSize:
		if a.active >= 0 {
			key, _ := a.keyFor(a.active)
			if l, ok := a.lines[key]; ok {
				l.current += ev.Bytes
				l.status = "Downloading"
			}
		}
		a.dirty = true
	case EventAddTotalSize:
		if a.active >= 0 {
			key, _ := a.keyFor(a.active)
			if l, ok := a.lines[key]; ok {
				l.total += ev.Bytes
			}
		}
		a.dirty = true
	case EventAddItems, EventAddTotalItems:
		// Item counters drive overall completion tracking upstream
		// (Store.Pull's result wait), not individual lines.
	}
}

// snapshot renders the current state of every line, in first-seen order.
func (a *aggregator) snapshot() []apitypes.JSONProgress {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.dirty {
		return nil
	}
	a.dirty = false

	out := make([]apitypes.JSONProgress, 0, len(a.order))
	for _, key := range a.order {
		l := a.lines[key]
		out = append(out, apitypes.JSONProgress{
			ID:     l.id,
			Status: l.status,
			Progress: progressBar(l.current, l.total),
			ProgressDetail: &apitypes.ProgressDetail{Current: l.current, Total: l.total},
		})
	}
	return out
}

func progressBar(current, total int64) string {
	if total <= 0 {
		return units.HumanSize(float64(current))
	}
	return fmt.Sprintf("%s/%s", units.HumanSize(float64(current)), units.HumanSize(float64(total)))
}

// run drains events, flushing rendered lines to onLine at most every
// interval, plus a final flush once events closes.
func (a *aggregator) run(ctx context.Context, events <-chan ProgressEvent) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				a.flush()
				return
			}
			a.apply(ev)
		case <-ticker.C:
			a.flush()
		case <-ctx.Done():
			a.flush()
			return
		}
	}
}

func (a *aggregator) flush() {
	if a.onLine == nil {
		return
	}
	for _, line := range a.snapshot() {
		a.onLine(line)
	}
}
