// Package follow implements leader/follower position broadcasting:
// while playback is active, a timed loop pushes scroll-position
// snapshots to all wire-connected clients so passive follower displays
// track the leader in near-real-time, without broadcasting on every
// scroll tick.
package follow

import (
	"sync"
	"time"

	"github.com/promptdeck/promptdeck/pkg/state"
	"go.uber.org/zap"
)

// Loop is the {idle} <-> {broadcasting} state machine. It enters
// broadcasting when playback starts while the feature is enabled, and
// returns to idle when playback stops or the feature is disabled.
// Re-entering broadcasting always starts a fresh interval timer.
type Loop struct {
	broadcaster *state.Broadcaster
	interval    time.Duration

	mut     sync.Mutex
	enabled bool
	playing bool
	stop    chan struct{}

	log *zap.Logger
}

func NewLoop(broadcaster *state.Broadcaster, interval time.Duration, enabled bool, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &Loop{
		broadcaster: broadcaster,
		interval:    interval,
		enabled:     enabled,
		log:         logger.With(zap.String("component", "FollowLoop")),
	}
}

// SetEnabled turns the feature on or off. Disabling while broadcasting
// stops the loop; enabling while playback is active starts it.
func (l *Loop) SetEnabled(enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.enabled = enabled
	l.reconcileLocked()
}

// SetPlaying informs the loop of a playback state change.
func (l *Loop) SetPlaying(playing bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.playing = playing
	l.reconcileLocked()
}

// Running reports whether the interval loop is currently broadcasting.
func (l *Loop) Running() bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.stop != nil
}

// Stop forces the loop back to idle regardless of playback state. Must
// be called on shutdown so no ticker outlives its owning session.
func (l *Loop) Stop() {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.playing = false
	l.reconcileLocked()
}

func (l *Loop) reconcileLocked() {
	shouldRun := l.enabled && l.playing

	if shouldRun && l.stop == nil {
		stop := make(chan struct{})
		l.stop = stop
		l.log.Debug("Entering broadcasting state", zap.Duration("interval", l.interval))
		go l.run(stop)
		return
	}

	if !shouldRun && l.stop != nil {
		close(l.stop)
		l.stop = nil
		l.log.Debug("Returning to idle state")
	}
}

// run ticks until stopped. Broadcasting to zero connected clients is a
// harmless no-op at the registry, not a special case here.
func (l *Loop) run(stop chan struct{}) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.broadcaster.BroadcastNow()
		}
	}
}
