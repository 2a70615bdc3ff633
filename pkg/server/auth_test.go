package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type timeoutRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *timeoutRecorder) record(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *timeoutRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func TestAuthGate_DisabledWithoutSecret(t *testing.T) {
	rec := &timeoutRecorder{}
	g := NewAuthGate("", 10*time.Millisecond, rec.record, zap.NewNop())

	assert.False(t, g.Enabled())

	g.Watch("conn-1")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.get())
}

func TestAuthGate_TimeoutFiresAtDeadline(t *testing.T) {
	rec := &timeoutRecorder{}
	g := NewAuthGate("hunter2", 60*time.Millisecond, rec.record, zap.NewNop())

	g.Watch("conn-1")

	// Never before the deadline.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.get())

	// Never indefinitely after it either.
	assert.Eventually(t, func() bool {
		ids := rec.get()
		return len(ids) == 1 && ids[0] == "conn-1"
	}, time.Second, 5*time.Millisecond)
}

func TestAuthGate_SettleCancelsTimer(t *testing.T) {
	rec := &timeoutRecorder{}
	g := NewAuthGate("hunter2", 30*time.Millisecond, rec.record, zap.NewNop())

	g.Watch("conn-1")
	g.Settle("conn-1")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.get(), "a settled connection must never be timed out")
}

func TestAuthGate_Check(t *testing.T) {
	g := NewAuthGate("hunter2", time.Second, func(string) {}, zap.NewNop())

	assert.True(t, g.Check("hunter2"))
	assert.False(t, g.Check("hunter3"))
	assert.False(t, g.Check(""))
	assert.False(t, g.Check("hunter2 "))
}

func TestAuthGate_RewatchResetsTimer(t *testing.T) {
	rec := &timeoutRecorder{}
	g := NewAuthGate("hunter2", 50*time.Millisecond, rec.record, zap.NewNop())

	g.Watch("conn-1")
	time.Sleep(30 * time.Millisecond)
	g.Watch("conn-1")
	time.Sleep(30 * time.Millisecond)

	// The original deadline has passed but the rewatch pushed it out.
	assert.Empty(t, rec.get())

	g.Settle("conn-1")
}
