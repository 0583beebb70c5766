package containers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arca-project/arca/internal/errdefs"
	"github.com/containerd/log"
	"github.com/moby/pubsub"
)

// logHistoryLimit bounds per-container captured log lines in memory,
// mirroring the Event Bus's bounded-ring approach since no separate
// log-persistence component exists.
const logHistoryLimit = 1000

// LogLine is one captured, already-demultiplexed line of container output.
type LogLine struct {
	Stream string // "stdout" | "stderr"
	Data   []byte
	Time   time.Time
}

// containerLog is the per-container bounded log ring plus live broadcast.
type containerLog struct {
	pub *pubsub.Publisher

	mu    sync.Mutex
	lines []LogLine
}

func newContainerLog() *containerLog {
	return &containerLog{pub: pubsub.NewPublisher(100*time.Millisecond, 256)}
}

func (cl *containerLog) append(line LogLine) {
	cl.mu.Lock()
	cl.lines = append(cl.lines, line)
	if len(cl.lines) > logHistoryLimit {
		cl.lines = cl.lines[len(cl.lines)-logHistoryLimit:]
	}
	cl.mu.Unlock()
	cl.pub.Publish(line)
}

func (cl *containerLog) tail(n int, since time.Time) []LogLine {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	var filtered []LogLine
	for _, l := range cl.lines {
		if !since.IsZero() && l.Time.Before(since) {
			continue
		}
		filtered = append(filtered, l)
	}
	if n > 0 && len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	return filtered
}

func (m *Manager) logRing(id string) *containerLog {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	cl, ok := m.logs[id]
	if !ok {
		cl = newContainerLog()
		m.logs[id] = cl
	}
	return cl
}

// captureOutput feeds every line read from one of a freshly-started VM's
// stdio streams into the container's log ring, tagged with stream.
// startInternal runs it in two goroutines per Start, one for stdout and
// one for stderr.
func (m *Manager) captureOutput(ctx context.Context, id string, stdio interface {
	io.Reader
}, stream string) {
	ring := m.logRing(id)
	scanner := bufio.NewScanner(stdio)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		ring.append(LogLine{Stream: stream, Data: line, Time: time.Now()})
	}
	if err := scanner.Err(); err != nil {
		log.G(ctx).WithError(err).WithField("container", id).Debug("log capture ended")
	}
}

// Logs returns a channel of historical (optionally tailed/since-filtered)
// then, if follow, live log lines for id.
func (m *Manager) Logs(ctx context.Context, id string, follow bool, tail int, since time.Time) (<-chan LogLine, error) {
	if _, ok := m.Get(id); !ok {
		return nil, errdefs.NotFound(fmt.Errorf("no such container: %s", id))
	}
	ring := m.logRing(id)
	out := make(chan LogLine, 64)

	backlog := ring.tail(tail, since)

	var sub chan interface{}
	if follow {
		sub = ring.pub.SubscribeTopic(func(v interface{}) bool { _, ok := v.(LogLine); return ok })
	}

	go func() {
		defer close(out)
		for _, l := range backlog {
			select {
			case out <- l:
			case <-ctx.Done():
				return
			}
		}
		if !follow {
			return
		}
		defer ring.pub.Evict(sub)
		for {
			select {
			case v, ok := <-sub:
				if !ok {
					return
				}
				if l, ok := v.(LogLine); ok {
					select {
					case out <- l:
					case <-ctx.Done():
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// WriteFramed writes a LogLine to w using Docker's stream header framing
// (stream-type, 0,0,0, big-endian length) when tty is false; raw bytes
// otherwise.
func WriteFramed(w io.Writer, l LogLine, tty bool, timestamps bool) error {
	payload := l.Data
	if timestamps {
		payload = append([]byte(l.Time.Format(time.RFC3339Nano)+" "), payload...)
	}
	payload = append(payload, '\n')

	if tty {
		_, err := w.Write(payload)
		return err
	}

	streamType := byte(1)
	if l.Stream == "stderr" {
		streamType = 2
	}
	header := [8]byte{streamType, 0, 0, 0}
	header[4] = byte(len(payload) >> 24)
	header[5] = byte(len(payload) >> 16)
	header[6] = byte(len(payload) >> 8)
	header[7] = byte(len(payload))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
