// Package server hosts the control WebSocket endpoint and the operator
// HTTP surface. Inbound frames flow rate limiter -> validator -> auth
// check -> router; state flows back out through the connection registry.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/promptdeck/promptdeck/internal"
	"github.com/promptdeck/promptdeck/pkg/command"
	"github.com/promptdeck/promptdeck/pkg/config"
	"github.com/promptdeck/promptdeck/pkg/metrics"
	"github.com/promptdeck/promptdeck/pkg/protocol"
	"github.com/promptdeck/promptdeck/pkg/state"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Frame-drop reasons used in metrics.
const (
	dropMalformed       = "malformed"
	dropRateLimited     = "rate_limited"
	dropInvalid         = "invalid"
	dropUnauthenticated = "unauthenticated"
)

// Params collects everything a control server needs.
type Params struct {
	Server    config.ServerConfig
	HTTP      config.HTTPConfig
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig

	Registry    *internal.Registry
	Router      *command.Router
	Broadcaster *state.Broadcaster
	Store       *state.Store
	Metrics     metrics.Collector

	Logger *zap.Logger
}

// Server is the control-plane WebSocket server plus operator endpoints.
type Server struct {
	params   Params
	upgrader *websocket.Upgrader
	authGate *AuthGate

	mut_ipLimiters sync.Mutex
	ipLimiters     map[string]*rate.Limiter

	log *zap.Logger
}

func CreateServer(params Params) (*Server, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.Metrics == nil {
		params.Metrics = metrics.NopCollector{}
	}
	if params.HTTP == (config.HTTPConfig{}) {
		params.HTTP = config.Default().HTTP
	}

	s := &Server{
		params: params,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The control port is loopback-bound by policy, and external
			// controllers (Stream Deck plugins, scripts) send no Origin
			// header at all.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ipLimiters: make(map[string]*rate.Limiter),
		log:        logger.With(zap.String("handler", "ControlServer")),
	}

	s.authGate = NewAuthGate(params.Auth.Secret, params.Auth.GracePeriod, s.onAuthTimeout, logger)

	// get-state replies directly to the requesting connection; it is a
	// transport concern, so the binding lives here rather than in the
	// default handler set.
	params.Router.Register(protocol.CmdGetState, func(cmd command.Command) error {
		frame, err := params.Broadcaster.Frame()
		if err != nil {
			return err
		}
		return params.Registry.Send(cmd.ConnID, frame)
	})

	return s, nil
}

// Routes returns the HTTP routing table: the WebSocket endpoint plus the
// operator/status surface.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(s.params.Server.Path, s.onWsRequest)
	r.HandleFunc("/healthz", s.onHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.onStatus).Methods(http.MethodGet)
	r.Handle("/metrics", s.params.Metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Start binds the listen address and serves until ctx is cancelled. A
// bind failure (port already in use) is surfaced once as a returned
// error with an operator-visible log line; there is no silent retry
// loop to mask a persistent conflict.
func (s *Server) Start(ctx context.Context) error {
	addr := s.params.Server.Address

	if !config.IsLoopback(addr) {
		s.log.Warn("Control server is binding to a non-loopback address; anyone who can reach it can drive the teleprompter", zap.String("address", addr))
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("Failed to bind control server address", zap.String("address", addr), zap.Error(err))
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	httpServer := s.httpServer()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()

		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), s.params.HTTP.ShutdownTimeout)
		defer shutdownRelease()
		s.log.Info("Attempting to trigger shutdown of control server")

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Failed to gracefully shut down control server", zap.Error(err))
			return
		}
		s.log.Info("Successfully shut down control server")
	}()

	s.log.Sugar().Infof("Starting control server at %s", addr)
	serveErr := httpServer.Serve(listener)

	wg.Wait()

	if serveErr == http.ErrServerClosed {
		return nil
	}
	return serveErr
}

// Addr returns the configured listen address for status display.
func (s *Server) Addr() string {
	return s.params.Server.Address
}

// httpServer builds the serving half with the operator-configured
// timeouts applied. They govern the operator endpoints only; the
// upgrader clears the connection deadlines when it hijacks, so the
// WebSocket side runs on its own ping/pong deadlines.
func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  s.params.HTTP.ReadTimeout,
		WriteTimeout: s.params.HTTP.WriteTimeout,
	}
}

// ipLimiter returns the per-address connection-attempt limiter, creating
// it on first sight of the address.
func (s *Server) ipLimiter(remoteAddr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	s.mut_ipLimiters.Lock()
	defer s.mut_ipLimiters.Unlock()

	limiter, has := s.ipLimiters[host]
	if !has {
		limiter = rate.NewLimiter(rate.Limit(s.params.RateLimit.UpgradeRate), s.params.RateLimit.UpgradeBurst)
		s.ipLimiters[host] = limiter
	}
	return limiter
}

func (s *Server) onWsRequest(w http.ResponseWriter, r *http.Request) {
	if !s.ipLimiter(r.RemoteAddr).Allow() {
		http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
		return
	}

	connId := uuid.NewString()
	log := s.log.With(zap.String("connId", connId))
	log.Info("New control connection request", zap.String("remoteAddr", r.RemoteAddr))

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}

	wsc := newWsConn(c, s.params.Server.SendBufferSize)

	// With no secret configured every connection is implicitly
	// authenticated; that is only sane bound to loopback, which the
	// default config is.
	authenticated := !s.authGate.Enabled()

	if err := s.params.Registry.Register(connId, wsc, r.RemoteAddr, authenticated, time.Now().UnixMilli()); err != nil {
		log.Warn("Refusing control connection", zap.Error(err))
		// No write pump is running yet, so the socket is closed here.
		wsc.Close()
		c.Close()
		return
	}

	s.params.Metrics.ConnectionOpened()
	s.authGate.Watch(connId)

	go s.writePump(wsc, log)
	s.readPump(connId, wsc, log)
}

// onAuthTimeout fires when a connection's grace period expires without a
// valid handshake. The reason sent back is deliberately generic.
func (s *Server) onAuthTimeout(connId string) {
	s.params.Metrics.AuthFailure()
	s.sendError(connId, "unauthorized")
	s.params.Registry.CloseAndRemove(connId)
}

func (s *Server) sendError(connId string, reason string) {
	frame, err := json.Marshal(protocol.ErrorFrame{Type: protocol.TypeError, Error: reason})
	if err != nil {
		return
	}
	// Send failure here just means the connection is already gone.
	_ = s.params.Registry.Send(connId, frame)
}

// readPump processes inbound frames for one connection, in arrival
// order: rate limiter, then validator, then auth check, then router.
func (s *Server) readPump(connId string, wsc *wsConn, log *zap.Logger) {
	defer func() {
		s.authGate.Settle(connId)
		s.params.Registry.Unregister(connId)
		wsc.Close()
		s.params.Metrics.ConnectionClosed()
		log.Info("Control connection closed")
	}()

	rateWin := NewRateWindow(s.params.RateLimit.MaxMessages, s.params.RateLimit.Window)

	c := wsc.conn
	c.SetReadLimit(s.params.Server.MaxMessageSize)
	c.SetReadDeadline(time.Now().Add(s.params.Server.PongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(s.params.Server.PongWait))
		return nil
	})

	for {
		_, payload, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn("Unexpected close on control connection", zap.Error(err))
			}
			return
		}

		now := time.Now()
		s.params.Registry.SetRecvTimestamp(connId, now.UnixMilli())

		// Over-limit frames are dropped without a reply; error traffic
		// would only amplify the load. The connection stays open.
		if !rateWin.Admit(now) {
			s.params.Metrics.FrameDropped(dropRateLimited)
			continue
		}

		var frame protocol.CommandFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Command == "" {
			log.Debug("Dropping malformed frame", zap.Int("size", len(payload)))
			s.params.Metrics.FrameDropped(dropMalformed)
			continue
		}

		cmd, err := command.Validate(frame)
		if err != nil {
			// The reply never describes the allow-list or what exactly
			// was wrong; the full reason goes to the log only.
			log.Debug("Rejected command", zap.Error(err))
			s.params.Metrics.FrameDropped(dropInvalid)
			s.sendError(connId, protocol.ErrInvalidCommand)
			continue
		}
		cmd.ConnID = connId

		if cmd.Name == protocol.CmdAuth {
			s.handleAuth(connId, cmd, log)
			if !s.params.Registry.HasConnection(connId) {
				return
			}
			continue
		}

		if !s.params.Registry.IsAuthenticated(connId) {
			// Ignored entirely: no state change, no broadcast, no reply.
			s.params.Metrics.FrameDropped(dropUnauthenticated)
			continue
		}

		s.params.Metrics.CommandReceived(cmd.Name)
		s.params.Router.Dispatch(cmd)
	}
}

// handleAuth resolves the handshake. Failure is terminal for the
// connection: the client must reconnect to retry.
func (s *Server) handleAuth(connId string, cmd command.Command, log *zap.Logger) {
	if !s.authGate.Enabled() {
		return
	}

	if s.authGate.Check(cmd.Str) {
		s.authGate.Settle(connId)
		if err := s.params.Registry.SetAuthenticated(connId); err != nil {
			log.Warn("Authenticated a connection that is already gone", zap.Error(err))
			return
		}
		log.Info("Control connection authenticated")
		return
	}

	log.Warn("Control connection presented a wrong secret")
	s.authGate.Settle(connId)
	s.params.Metrics.AuthFailure()
	s.sendError(connId, "unauthorized")
	s.params.Registry.CloseAndRemove(connId)
}

// writePump drains the connection's send buffer and keeps the socket
// alive with pings.
func (s *Server) writePump(wsc *wsConn, log *zap.Logger) {
	ticker := time.NewTicker(s.params.Server.PingPeriod)
	defer func() {
		ticker.Stop()
		wsc.conn.Close()
	}()

	for {
		select {
		case <-wsc.done:
			// Frames enqueued before the close (the terminal error reply
			// in particular) still need to go out before the handshake.
			for drained := false; !drained; {
				select {
				case data := <-wsc.send:
					wsc.conn.SetWriteDeadline(time.Now().Add(s.params.Server.WriteWait))
					if err := wsc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					drained = true
				}
			}
			wsc.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return

		case data := <-wsc.send:
			wsc.conn.SetWriteDeadline(time.Now().Add(s.params.Server.WriteWait))
			if err := wsc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("Write failed on control connection", zap.Error(err))
				return
			}

		case <-ticker.C:
			wsc.conn.SetWriteDeadline(time.Now().Add(s.params.Server.WriteWait))
			if err := wsc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) onHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// onStatus exposes the only externally visible introspection: connection
// count, listen address, and coarse playback state.
func (s *Server) onStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"connections":  s.params.Registry.Count(),
		"address":      s.params.Server.Address,
		"playing":      s.params.Store.Playing(),
		"authRequired": s.authGate.Enabled(),
	})
}
