// Package syncbus reconciles state between sibling windows of the same
// teleprompter instance running in one process: a primary window and any
// detached popouts. Windows publish partial patches of changed fields to
// a shared bus; a window currently applying a received patch suppresses
// its own re-broadcast so two windows never enter an echo ping-pong.
package syncbus

import (
	"sync"
	"time"

	"github.com/promptdeck/promptdeck/pkg/protocol"
	"github.com/promptdeck/promptdeck/pkg/state"
	"go.uber.org/zap"
)

// Bus is the shared in-process broadcast channel, keyed by name.
type Bus struct {
	name string

	mut_windows sync.RWMutex
	windows     []*Window
}

func NewBus(name string) *Bus {
	return &Bus{name: name}
}

// Name returns the channel name the bus is keyed by.
func (b *Bus) Name() string {
	return b.name
}

func (b *Bus) attach(w *Window) {
	b.mut_windows.Lock()
	defer b.mut_windows.Unlock()
	b.windows = append(b.windows, w)
}

func (b *Bus) detach(w *Window) {
	b.mut_windows.Lock()
	defer b.mut_windows.Unlock()
	for i, win := range b.windows {
		if win == w {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

// publish delivers a state-update frame to every window except the
// sender. Delivery is synchronous; last-applied-wins per field, with no
// total order across windows.
func (b *Bus) publish(from *Window, frame protocol.UpdateFrame) {
	b.mut_windows.RLock()
	targets := make([]*Window, 0, len(b.windows))
	for _, w := range b.windows {
		if w != from {
			targets = append(targets, w)
		}
	}
	b.mut_windows.RUnlock()

	for _, w := range targets {
		w.deliver(frame)
	}
}

// Window is one attachment point: a window's local store wired to the
// bus. Local store changes are published as patches; received patches
// are applied with echo suppression.
type Window struct {
	bus    *Bus
	store  *state.Store
	settle time.Duration

	mut       sync.Mutex
	receiving bool
	settleT   *time.Timer
	detached  bool

	log *zap.Logger
}

// Attach wires a window's store to the bus and returns the window.
// settle is how long after applying a received patch the window keeps
// suppressing its own outgoing broadcasts, letting the applied change
// settle without echoing back.
func Attach(bus *Bus, store *state.Store, settle time.Duration, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	w := &Window{
		bus:    bus,
		store:  store,
		settle: settle,
		log:    logger.With(zap.String("component", "SyncWindow"), zap.String("channel", bus.Name())),
	}

	store.OnChange(w.onLocalChange)
	bus.attach(w)
	return w
}

// Detach removes the window from the bus and cancels any pending settle
// timer. The store's listener stays registered but becomes a no-op.
func (w *Window) Detach() {
	w.mut.Lock()
	w.detached = true
	if w.settleT != nil {
		w.settleT.Stop()
		w.settleT = nil
	}
	w.receiving = false
	w.mut.Unlock()

	w.bus.detach(w)
}

// onLocalChange publishes the patch of changed fields, unless the change
// came from applying a received patch.
func (w *Window) onLocalChange(patch state.Patch) {
	w.mut.Lock()
	suppressed := w.receiving || w.detached
	w.mut.Unlock()

	if suppressed {
		return
	}

	w.bus.publish(w, protocol.UpdateFrame{
		Type: protocol.TypeStateUpdate,
		Data: patch,
	})
}

// deliver applies a received patch to the local store under the
// receiving flag, then clears the flag after the settle delay.
func (w *Window) deliver(frame protocol.UpdateFrame) {
	if frame.Type != protocol.TypeStateUpdate {
		w.log.Debug("Ignoring unknown bus frame type", zap.String("type", frame.Type))
		return
	}

	w.mut.Lock()
	if w.detached {
		w.mut.Unlock()
		return
	}
	w.receiving = true
	if w.settleT != nil {
		w.settleT.Stop()
	}
	w.settleT = time.AfterFunc(w.settle, func() {
		w.mut.Lock()
		w.receiving = false
		w.settleT = nil
		w.mut.Unlock()
	})
	w.mut.Unlock()

	w.store.ApplyPatch(state.Patch(frame.Data))
}
