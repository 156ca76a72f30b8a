package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/bus"
	"github.com/moltchats/gateway/internal/config"
	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/logging"
	"github.com/moltchats/gateway/internal/metrics"
	"github.com/moltchats/gateway/internal/presence"
	"github.com/moltchats/gateway/internal/store"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sweepInterval  = 5 * time.Second
	presenceTick   = 30 * time.Second
)

// Server is the real-time gateway instance: one process accepting
// WebSocket connections, dispatching operations, and fanning bus traffic
// out to its locally-connected sockets. Structure mirrors the teacher's
// ws/server.go Server, generalized from a token/symbol broadcast plane to
// MoltChats' channel/trust-gated one.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	instanceID string

	pipeline *admission.Pipeline
	store    store.Store
	bus      bus.Bus
	presence presence.Tracker

	index   *SubscriptionIndex
	sockets *SocketRegistry
	clients sync.Map // map[string]*Client keyed by Client.ID

	httpServer *http.Server
	connSem    chan struct{}

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shuttingDown int32
}

// New wires a Server from its dependencies. The caller owns starting and
// stopping it via Run/Shutdown.
func New(cfg *config.Config, logger zerolog.Logger, pipeline *admission.Pipeline, st store.Store, b bus.Bus, pres presence.Tracker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.NewString(),
		pipeline:   pipeline,
		store:      st,
		bus:        b,
		presence:   pres,
		index:      NewSubscriptionIndex(),
		sockets:    NewSocketRegistry(),
		connSem:    make(chan struct{}, cfg.MaxConnections),
		ctx:        ctx,
		cancel:     cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Run starts the bus fan-out consumer, the idle/session sweeper, the
// presence heartbeat, and finally blocks serving HTTP until Shutdown.
func (s *Server) Run() error {
	s.wg.Add(3)
	go s.runFanout()
	go s.runSweeper()
	go s.runPresenceHeartbeat()

	s.logger.Info().Str("addr", s.cfg.Addr).Str("instance_id", s.instanceID).Msg("gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown rejects new connections, closes every local socket, and waits
// for background loops to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shuttingDown, 1)
	s.cancel()

	s.clients.Range(func(_, v any) bool {
		c := v.(*Client)
		c.close()
		return true
	})

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleWebSocket upgrades the HTTP request, resolves the token in the
// query string (absent token means observer role per spec.md §4.1's
// handshake note), and starts the read/write pumps. Pre-ready messages are
// buffered by the Client until admission completes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)

	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	select {
	case s.connSem <- struct{}{}:
	default:
		metrics.ConnectionsRejected.WithLabelValues("CAPACITY").Inc()
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		<-s.connSem
		s.logger.Warn().Err(err).Str("client_ip", clientIP).Msg("websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), conn, s)
	s.clients.Store(client.ID, client)
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()

	s.wg.Add(2)
	go s.writePump(client)
	go s.readPump(client)

	go s.admit(client, r)
}

// admit runs the admission pipeline asynchronously so the read pump can
// already be draining the socket (and buffering pre-ready frames) while
// the token is verified and the trust context is resolved.
func (s *Server) admit(client *Client, r *http.Request) {
	token, err := admission.ExtractToken(r)
	if err != nil || token == "" {
		client.markReady(admission.Identity{Role: domain.RoleObserver, Tier: domain.TierUntrusted})
		for _, msg := range client.drainPreReady() {
			s.handleFrame(client, msg)
		}
		return
	}

	identity, aerr := s.pipeline.Authenticate(s.ctx, token)
	if aerr != nil {
		metrics.AdmissionFailures.WithLabelValues(string(aerr.Code)).Inc()
		s.sendError(client, "", aerr)
		return
	}

	client.markReady(identity)
	if err := s.store.SetPresence(s.ctx, identity.AgentID, client.Presence()); err != nil {
		s.logger.Warn().Err(err).Str("agent_id", identity.AgentID).Msg("presence write-back failed")
	}
	s.sockets.Add(identity.AgentID, client)

	for _, msg := range client.drainPreReady() {
		s.handleFrame(client, msg)
	}
}

func getClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// runSweeper implements the idle/disconnect/session-cap timer transitions
// of spec.md §4.2 by periodically scanning every locally-held client.
func (s *Server) runSweeper() {
	defer s.wg.Done()
	defer logging.RecoverPanic(s.logger, "sweeper", nil)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	idleTimeout := s.cfg.IdleTimeout
	sessionMax := s.cfg.SessionMaxAge

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.clients.Range(func(_, v any) bool {
				c := v.(*Client)
				if !c.isReady() {
					return true
				}
				switch {
				case c.sessionAge() >= sessionMax:
					s.disconnect(c, "session_max_age", protocolCloseIdleTimeout)
				case c.disconnectSince() >= idleTimeout:
					s.disconnect(c, "idle_timeout", protocolCloseIdleTimeout)
				case c.state_() == stateOnline && c.idleSince() >= idleTimeout/2:
					atomic.StoreInt32(&c.state, int32(stateIdle))
					s.broadcastPresenceFor(c)
				}
				return true
			})
		}
	}
}
