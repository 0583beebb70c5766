package build

import (
	"sync"

	buildkit "github.com/moby/buildkit/client"
)

// job tracks one in-flight (or finished) solve, backing the
// "status(ref) → stream<progress>" operation. solve() publishes into it
// from the background goroutine driving the real RPC; Status()
// subscribers each get their own replay-then-live channel, the same shape
// daemon/events.Bus gives its subscribers.
type job struct {
	ref string

	mu          sync.Mutex
	history     []*buildkit.SolveStatus
	subscribers []chan *buildkit.SolveStatus
	done        bool
	err         error
}

func newJob(ref string) *job {
	return &job{ref: ref}
}

// publish appends a status update and forwards it to every live
// subscriber. A subscriber whose buffer is full drops the update rather
// than blocking the solve — it already has the replay history to catch up
// from on a fresh subscribe.
func (j *job) publish(s *buildkit.SolveStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.history = append(j.history, s)
	for _, ch := range j.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// finish marks the job done and closes every subscriber channel.
func (j *job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = true
	j.err = err
	for _, ch := range j.subscribers {
		close(ch)
	}
	j.subscribers = nil
}

// subscribe returns a channel that first replays every status recorded so
// far, then receives live updates until the job finishes.
func (j *job) subscribe() <-chan *buildkit.SolveStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan *buildkit.SolveStatus, len(j.history)+16)
	for _, s := range j.history {
		ch <- s
	}
	if j.done {
		close(ch)
		return ch
	}
	j.subscribers = append(j.subscribers, ch)
	return ch
}
