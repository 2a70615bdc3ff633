package follow

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/promptdeck/promptdeck/pkg/state"
)

type countingSink struct {
	count atomic.Int32
}

func (s *countingSink) Broadcast([]byte) int {
	s.count.Add(1)
	return 0
}

func newLoop(t *testing.T, enabled bool) (*Loop, *countingSink) {
	t.Helper()
	store := state.NewStore()
	sink := &countingSink{}
	b := state.NewBroadcaster(store, sink, 10*time.Millisecond, zap.NewNop())
	l := NewLoop(b, 20*time.Millisecond, enabled, zap.NewNop())
	t.Cleanup(l.Stop)
	return l, sink
}

func TestLoop_BroadcastsWhilePlaying(t *testing.T) {
	l, sink := newLoop(t, true)

	l.SetPlaying(true)
	assert.True(t, l.Running())

	assert.Eventually(t, func() bool {
		return sink.count.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestLoop_StopsWhenPlaybackStops(t *testing.T) {
	l, sink := newLoop(t, true)

	l.SetPlaying(true)
	assert.Eventually(t, func() bool { return sink.count.Load() >= 1 }, time.Second, 5*time.Millisecond)

	l.SetPlaying(false)
	assert.False(t, l.Running())

	settled := sink.count.Load()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, sink.count.Load(), settled+1, "at most one in-flight tick after stop")
}

func TestLoop_DisabledNeverStarts(t *testing.T) {
	l, sink := newLoop(t, false)

	l.SetPlaying(true)
	assert.False(t, l.Running())

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, sink.count.Load())
}

func TestLoop_EnableDuringPlayback(t *testing.T) {
	l, sink := newLoop(t, false)

	l.SetPlaying(true)
	assert.False(t, l.Running())

	l.SetEnabled(true)
	assert.True(t, l.Running())
	assert.Eventually(t, func() bool { return sink.count.Load() >= 1 }, time.Second, 5*time.Millisecond)

	l.SetEnabled(false)
	assert.False(t, l.Running())
}

func TestLoop_RedundantTransitions(t *testing.T) {
	l, _ := newLoop(t, true)

	l.SetPlaying(true)
	l.SetPlaying(true)
	assert.True(t, l.Running())

	l.SetPlaying(false)
	l.SetPlaying(false)
	assert.False(t, l.Running())
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	l, _ := newLoop(t, true)

	l.SetPlaying(true)
	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
}
