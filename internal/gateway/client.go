// Package gateway hosts the WebSocket connection manager, operation
// dispatcher, presence heartbeat, and fan-out router that together make up
// the real-time core: the part of the system a connected agent actually
// talks to.
package gateway

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/domain"
)

// connState is a Client's position in the state machine from spec.md §4.2.
type connState int32

const (
	stateOpened connState = iota
	stateOnline
	stateIdle
	stateClosed
)

// Client is one authenticated WebSocket connection. Timer bookkeeping
// mirrors the teacher's Client struct (atomic counters, one send channel,
// closeOnce) but tracks the two independent timers spec.md §4.2 requires:
// lastOutboundNano (resets on outbound action only, drives the idle
// transition) and lastDisconnectNano (also reset by ping, drives the hard
// disconnect deadline).
type Client struct {
	ID       string // unique per-connection identifier, not the agent id
	AgentID  string
	Identity admission.Identity
	conn     net.Conn
	send     chan []byte
	server   *Server

	state           int32 // connState, atomic
	connectedAt     time.Time
	lastOutboundNano   int64 // atomic unix nano
	lastDisconnectNano int64 // atomic unix nano

	subscriptions *SubscriptionSet

	// readyOnce gates pre-ready buffering: messages read off the socket
	// before asynchronous admission setup completes are queued here and
	// drained in order once ready closes.
	ready     chan struct{}
	readyOnce sync.Once
	preReady  [][]byte
	preMu     sync.Mutex

	closeOnce      sync.Once
	disconnectOnce sync.Once
	closeCode      int32 // atomic; websocket close code sent when send closes
}

func newClient(id string, conn net.Conn, server *Server) *Client {
	now := time.Now()
	return &Client{
		ID:                 id,
		conn:               conn,
		server:             server,
		send:               make(chan []byte, 256),
		state:              int32(stateOpened),
		connectedAt:        now,
		lastOutboundNano:   now.UnixNano(),
		lastDisconnectNano: now.UnixNano(),
		subscriptions:      NewSubscriptionSet(),
		ready:              make(chan struct{}),
	}
}

// markReady transitions the client out of the opened state once admission
// succeeds and closes ready; the caller (Server.admit) then drains anything
// buffered while setup was in flight.
func (c *Client) markReady(identity admission.Identity) {
	c.Identity = identity
	c.AgentID = identity.AgentID
	atomic.StoreInt32(&c.state, int32(stateOnline))
	c.readyOnce.Do(func() {
		close(c.ready)
	})
}

func (c *Client) isReady() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

func (c *Client) bufferPreReady(msg []byte) {
	c.preMu.Lock()
	defer c.preMu.Unlock()
	c.preReady = append(c.preReady, msg)
}

func (c *Client) drainPreReady() [][]byte {
	c.preMu.Lock()
	defer c.preMu.Unlock()
	drained := c.preReady
	c.preReady = nil
	return drained
}

func (c *Client) state_() connState {
	return connState(atomic.LoadInt32(&c.state))
}

// recordOutbound marks an outbound action (send message, typing, subscribe,
// vouch, flag): resets both the idle and disconnect timers and, if the
// client had gone idle, brings it back online.
func (c *Client) recordOutbound() {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&c.lastOutboundNano, now)
	atomic.StoreInt64(&c.lastDisconnectNano, now)
	atomic.CompareAndSwapInt32(&c.state, int32(stateIdle), int32(stateOnline))
}

// recordPing resets only the disconnect timer, per spec.md §4.2: a ping
// alone does not prevent the idle transition.
func (c *Client) recordPing() {
	atomic.StoreInt64(&c.lastDisconnectNano, time.Now().UnixNano())
}

func (c *Client) idleSince() time.Duration {
	last := atomic.LoadInt64(&c.lastOutboundNano)
	return time.Since(time.Unix(0, last))
}

func (c *Client) disconnectSince() time.Duration {
	last := atomic.LoadInt64(&c.lastDisconnectNano)
	return time.Since(time.Unix(0, last))
}

func (c *Client) sessionAge() time.Duration {
	return time.Since(c.connectedAt)
}

// enqueue best-effort sends a frame; a full buffer means a slow client and
// the frame is dropped rather than blocking the fan-out router.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// setCloseCode records the websocket close code the write pump should send
// once the send channel drains. 1000 (normal closure) is the default if
// never set.
func (c *Client) setCloseCode(code int) {
	atomic.StoreInt32(&c.closeCode, int32(code))
}

func (c *Client) getCloseCode() int {
	code := atomic.LoadInt32(&c.closeCode)
	if code == 0 {
		return 1000
	}
	return int(code)
}

// Presence reports the domain.Presence value matching this client's
// current connection state. The store is written only when admission
// succeeds and on disconnect; the sweeper's online-to-idle transition and
// recordOutbound's return from idle to online are not written to the store.
func (c *Client) Presence() domain.Presence {
	switch c.state_() {
	case stateOnline:
		return domain.PresenceOnline
	case stateIdle:
		return domain.PresenceIdle
	default:
		return domain.PresenceOffline
	}
}
