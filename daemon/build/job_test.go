package build

import (
	"testing"

	buildkit "github.com/moby/buildkit/client"
	"gotest.tools/v3/assert"
)

func TestJobSubscribeReplaysHistoryThenLive(t *testing.T) {
	j := newJob("ref-1")
	j.publish(&buildkit.SolveStatus{})

	ch := j.subscribe()

	first := <-ch
	assert.Assert(t, first != nil)

	second := &buildkit.SolveStatus{}
	j.publish(second)
	got := <-ch
	assert.Equal(t, got, second)
}

func TestJobFinishClosesSubscribers(t *testing.T) {
	j := newJob("ref-2")
	ch := j.subscribe()

	j.finish(nil)

	_, ok := <-ch
	assert.Assert(t, !ok, "channel should be closed after finish")
}

func TestJobSubscribeAfterFinishReplaysThenCloses(t *testing.T) {
	j := newJob("ref-3")
	j.publish(&buildkit.SolveStatus{})
	j.finish(nil)

	ch := j.subscribe()
	_, ok := <-ch
	assert.Assert(t, ok, "history item should still be delivered")

	_, ok = <-ch
	assert.Assert(t, !ok, "channel should be closed once history is drained")
}
