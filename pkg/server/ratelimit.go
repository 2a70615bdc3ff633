package server

import (
	"sync"
	"time"
)

// RateWindow enforces a per-connection maximum message rate over a
// sliding time window. Exceeding the limit drops the triggering message
// only; the connection itself stays open.
type RateWindow struct {
	limit  int
	window time.Duration

	mut        sync.Mutex
	timestamps []time.Time
}

func NewRateWindow(limit int, window time.Duration) *RateWindow {
	return &RateWindow{
		limit:      limit,
		window:     window,
		timestamps: make([]time.Time, 0, limit),
	}
}

// Admit records a message at time now and reports whether it is within
// the rate limit. Stale timestamps are evicted on every call so the
// window never grows beyond the limit, and a burst straddling the window
// boundary is not double-counted: a timestamp exactly one full window
// old no longer counts against the new message.
func (w *RateWindow) Admit(now time.Time) bool {
	w.mut.Lock()
	defer w.mut.Unlock()

	cutoff := now.Add(-w.window)
	keep := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.timestamps = keep

	if len(w.timestamps) >= w.limit {
		return false
	}

	w.timestamps = append(w.timestamps, now)
	return true
}
