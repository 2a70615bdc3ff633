package server

import (
	"crypto/subtle"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuthGate implements the optional shared-secret handshake. While a
// secret is configured, each new connection gets a bounded grace period
// to present it; the timer is cancelled on success or disconnect, and on
// expiry the connection is closed through the onTimeout callback. With
// no secret configured the gate is disabled and every connection is
// implicitly authenticated.
type AuthGate struct {
	secret    string
	grace     time.Duration
	onTimeout func(connId string)

	mut    sync.Mutex
	timers map[string]*time.Timer

	log *zap.Logger
}

func NewAuthGate(secret string, grace time.Duration, onTimeout func(connId string), logger *zap.Logger) *AuthGate {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	return &AuthGate{
		secret:    secret,
		grace:     grace,
		onTimeout: onTimeout,
		timers:    make(map[string]*time.Timer),
		log:       logger.With(zap.String("component", "AuthGate")),
	}
}

// Enabled reports whether a handshake is required at all.
func (g *AuthGate) Enabled() bool {
	return g.secret != ""
}

// Watch starts the grace timer for a new connection. No-op when the
// gate is disabled.
func (g *AuthGate) Watch(connId string) {
	if !g.Enabled() {
		return
	}

	g.mut.Lock()
	defer g.mut.Unlock()

	if timer, has := g.timers[connId]; has {
		timer.Stop()
	}

	g.timers[connId] = time.AfterFunc(g.grace, func() {
		g.mut.Lock()
		delete(g.timers, connId)
		g.mut.Unlock()

		g.log.Warn("Auth grace period expired", zap.String("connId", connId))
		g.onTimeout(connId)
	})
}

// Settle cancels the grace timer for a connection, either because the
// handshake succeeded or because the connection went away. Must be
// called on every connection teardown so no stale timer fires against a
// torn-down target.
func (g *AuthGate) Settle(connId string) {
	g.mut.Lock()
	defer g.mut.Unlock()

	if timer, has := g.timers[connId]; has {
		timer.Stop()
		delete(g.timers, connId)
	}
}

// Check compares a presented secret in constant time. The expected
// secret is never part of any error path.
func (g *AuthGate) Check(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(g.secret), []byte(presented)) == 1
}
