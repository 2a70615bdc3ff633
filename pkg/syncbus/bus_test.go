package syncbus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/promptdeck/promptdeck/pkg/state"
)

const settle = 30 * time.Millisecond

func twoWindows(t *testing.T) (*Bus, *state.Store, *state.Store) {
	t.Helper()
	bus := NewBus("test-sync")
	storeA := state.NewStore()
	storeB := state.NewStore()
	Attach(bus, storeA, settle, zap.NewNop())
	Attach(bus, storeB, settle, zap.NewNop())
	return bus, storeA, storeB
}

func TestWindow_PatchPropagates(t *testing.T) {
	_, storeA, storeB := twoWindows(t)

	storeA.SetSpeed(5)

	assert.Equal(t, 5.0, storeB.Snapshot().Speed, "window B applies A's patch")
}

// Window A's patch, once applied by window B, must not cause B to
// re-broadcast that same patch back: one originating change, one
// delivery, no ping-pong.
func TestWindow_NoEcho(t *testing.T) {
	_, storeA, storeB := twoWindows(t)

	var changesOnA atomic.Int32
	storeA.OnChange(func(state.Patch) { changesOnA.Add(1) })

	storeA.SetSpeed(5)

	assert.Equal(t, int32(1), changesOnA.Load(), "A sees only its own change")
	assert.Equal(t, 5.0, storeA.Snapshot().Speed)
	assert.Equal(t, 5.0, storeB.Snapshot().Speed)

	// Even after the settle window the echo never arrives.
	time.Sleep(3 * settle)
	assert.Equal(t, int32(1), changesOnA.Load())
}

func TestWindow_BothDirectionsAfterSettle(t *testing.T) {
	_, storeA, storeB := twoWindows(t)

	storeA.SetSpeed(5)
	time.Sleep(2 * settle)

	// Once B's receiving flag has settled, B's own changes flow back.
	storeB.SetFontSize(64)
	assert.Equal(t, 64, storeA.Snapshot().FontSize)
	assert.Equal(t, 5.0, storeA.Snapshot().Speed)
}

func TestWindow_SuppressionDuringSettle(t *testing.T) {
	_, storeA, storeB := twoWindows(t)

	storeA.SetSpeed(5)

	// B is still inside its settle window: local changes there are not
	// published. Last-applied-wins per field; this drift is accepted.
	storeB.SetFontSize(64)
	assert.Equal(t, 32, storeA.Snapshot().FontSize)
}

func TestWindow_ThreeWindows(t *testing.T) {
	bus := NewBus("test-sync")
	stores := []*state.Store{state.NewStore(), state.NewStore(), state.NewStore()}
	for _, s := range stores {
		Attach(bus, s, settle, zap.NewNop())
	}

	stores[0].TogglePlay()

	for i, s := range stores {
		assert.True(t, s.Snapshot().Playing, "window %d", i)
	}
}

func TestWindow_Detach(t *testing.T) {
	bus := NewBus("test-sync")
	storeA := state.NewStore()
	storeB := state.NewStore()
	Attach(bus, storeA, settle, zap.NewNop())
	winB := Attach(bus, storeB, settle, zap.NewNop())

	winB.Detach()

	storeA.SetSpeed(5)
	assert.Equal(t, 2.0, storeB.Snapshot().Speed, "detached window no longer receives patches")

	storeB.SetSpeed(9)
	assert.Equal(t, 5.0, storeA.Snapshot().Speed, "detached window no longer publishes")
}
