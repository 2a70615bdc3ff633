package state

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/promptdeck/promptdeck/pkg/protocol"
	"go.uber.org/zap"
)

// Sink receives a serialized state frame and returns how many clients it
// reached. The connection registry is the production sink.
type Sink interface {
	Broadcast(data []byte) int
}

// Broadcaster serializes the current snapshot into a state frame and
// pushes it to the sink. BroadcastSoon debounces: any number of
// mutations inside the debounce window produce exactly one frame, built
// from the state as it stands when the window closes.
type Broadcaster struct {
	store    *Store
	sink     Sink
	debounce time.Duration

	mut     sync.Mutex
	pending *time.Timer
	stopped bool

	onSent func(clients int)

	log *zap.Logger
}

func NewBroadcaster(store *Store, sink Sink, debounce time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &Broadcaster{
		store:    store,
		sink:     sink,
		debounce: debounce,
		log:      logger.With(zap.String("component", "StateBroadcaster")),
	}
}

// OnSent registers a callback invoked after each broadcast with the
// number of clients reached. Used for metrics.
func (b *Broadcaster) OnSent(fn func(clients int)) {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.onSent = fn
}

// Snapshot returns the current state snapshot.
func (b *Broadcaster) Snapshot() Snapshot {
	return b.store.Snapshot()
}

// Frame serializes the current snapshot into a wire state frame.
func (b *Broadcaster) Frame() ([]byte, error) {
	return json.Marshal(protocol.StateFrame{
		Type: protocol.TypeState,
		Data: b.store.Snapshot(),
	})
}

// BroadcastNow serializes once and fans out immediately.
func (b *Broadcaster) BroadcastNow() {
	data, err := b.Frame()
	if err != nil {
		b.log.Error("Failed to serialize state snapshot", zap.Error(err))
		return
	}

	clients := b.sink.Broadcast(data)

	b.mut.Lock()
	onSent := b.onSent
	b.mut.Unlock()
	if onSent != nil {
		onSent(clients)
	}
}

// BroadcastSoon schedules a broadcast after the debounce interval.
// Calls while one is already scheduled coalesce into it, so a rapid
// slider drag produces a single frame reflecting the final value.
func (b *Broadcaster) BroadcastSoon() {
	b.mut.Lock()
	if b.stopped || b.pending != nil {
		b.mut.Unlock()
		return
	}
	b.pending = time.AfterFunc(b.debounce, func() {
		b.mut.Lock()
		b.pending = nil
		stopped := b.stopped
		b.mut.Unlock()
		if stopped {
			return
		}
		b.BroadcastNow()
	})
	b.mut.Unlock()
}

// Stop cancels any pending debounced broadcast. Further BroadcastSoon
// calls are ignored.
func (b *Broadcaster) Stop() {
	b.mut.Lock()
	defer b.mut.Unlock()
	b.stopped = true
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
}
