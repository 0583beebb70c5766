// Package events implements the Event Bus: an in-process pub/sub of
// lifecycle events with bounded history and filtered subscriptions. The
// broadcast primitive is github.com/moby/pubsub; this package adds the
// bounded ring buffer and Docker's filter grammar on top, the same
// division of labor moby's own daemon/events package uses.
package events

import (
	"context"
	"sync"
	"time"

	apitypes "github.com/arca-project/arca/api/types"
	"github.com/moby/pubsub"
)

// HistoryLimit is the bounded ring size.
const HistoryLimit = 1000

// Event types, mirroring the Event record's "type" enum.
const (
	TypeContainer = "container"
	TypeImage     = "image"
	TypeNetwork   = "network"
	TypeVolume    = "volume"
)

// Bus is the Event Bus. Zero value is not usable; use New.
type Bus struct {
	pub *pubsub.Publisher

	mu     sync.Mutex
	events []apitypes.EventMessage
}

// New creates an empty Event Bus.
func New() *Bus {
	return &Bus{
		pub: pubsub.NewPublisher(100*time.Millisecond, 1024),
	}
}

// Log appends an event to history and broadcasts it to live subscribers.
// Called by the Container Manager, Image Store, and Network Controller on
// every lifecycle transition.
func (b *Bus) Log(kind, action string, actor apitypes.EventActor) {
	now := time.Now()
	msg := apitypes.EventMessage{
		Type:     kind,
		Action:   action,
		Actor:    actor,
		Time:     now.Unix(),
		TimeNano: now.UnixNano(),
	}

	b.mu.Lock()
	b.events = append(b.events, msg)
	if len(b.events) > HistoryLimit {
		b.events = b.events[len(b.events)-HistoryLimit:]
	}
	b.mu.Unlock()

	b.pub.Publish(msg)
}

// Filters is Docker's event filter grammar: type, event (action), container,
// image, network, volume, label. Each key maps to a set of acceptable
// values; a key with no values imposes no constraint. All present keys must
// match (AND across keys, OR within a key's values).
type Filters struct {
	Type      []string
	Action    []string
	Container []string
	Image     []string
	Network   []string
	Volume    []string
	Label     []string // "key" or "key=value"
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (f Filters) matchLabels(attrs map[string]string) bool {
	if len(f.Label) == 0 {
		return true
	}
	for _, want := range f.Label {
		key, val, hasVal := splitLabelFilter(want)
		got, ok := attrs[key]
		if !ok {
			return false
		}
		if hasVal && got != val {
			return false
		}
	}
	return true
}

func splitLabelFilter(s string) (key, val string, hasVal bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// Match reports whether msg satisfies all set filter dimensions.
func (f Filters) Match(msg apitypes.EventMessage) bool {
	if !contains(f.Type, msg.Type) {
		return false
	}
	if !contains(f.Action, msg.Action) {
		return false
	}
	if !contains(f.Container, msg.Actor.ID) && msg.Type == TypeContainer {
		return false
	}
	if !contains(f.Image, msg.Actor.ID) && msg.Type == TypeImage {
		return false
	}
	if !contains(f.Network, msg.Actor.ID) && msg.Type == TypeNetwork {
		return false
	}
	if !contains(f.Volume, msg.Actor.ID) && msg.Type == TypeVolume {
		return false
	}
	return f.matchLabels(msg.Actor.Attributes)
}

// Subscribe returns a channel of events matching filters. If since is
// non-zero, matching history is replayed first (in emission order), then
// live events are delivered until until passes (zero means no end) or ctx
// is cancelled. The channel is closed when delivery stops.
func (b *Bus) Subscribe(ctx context.Context, since, until time.Time, filters Filters) <-chan apitypes.EventMessage {
	out := make(chan apitypes.EventMessage, 16)

	sub := b.pub.SubscribeTopic(func(v interface{}) bool {
		msg, ok := v.(apitypes.EventMessage)
		if !ok {
			return false
		}
		return filters.Match(msg)
	})

	var backlog []apitypes.EventMessage
	if !since.IsZero() {
		b.mu.Lock()
		for _, e := range b.events {
			if time.Unix(0, e.TimeNano).Before(since) {
				continue
			}
			if filters.Match(e) {
				backlog = append(backlog, e)
			}
		}
		b.mu.Unlock()
	}

	go func() {
		defer close(out)
		defer b.pub.Evict(sub)

		for _, e := range backlog {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}

		var untilCh <-chan time.Time
		if !until.IsZero() {
			d := time.Until(until)
			if d <= 0 {
				return
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			untilCh = timer.C
		}

		for {
			select {
			case v, ok := <-sub:
				if !ok {
					return
				}
				msg, ok := v.(apitypes.EventMessage)
				if !ok {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-untilCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// SubscribersCount reports the number of live subscriptions, for tests/diagnostics.
func (b *Bus) SubscribersCount() int { return b.pub.Len() }
