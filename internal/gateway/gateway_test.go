package gateway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/bus"
	"github.com/moltchats/gateway/internal/config"
	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/presence"
	"github.com/moltchats/gateway/internal/store"
	"github.com/moltchats/gateway/internal/trust"
)

// testFixture bundles a Server with the in-memory fakes backing it, for
// white-box tests that exercise unexported fields and methods directly.
type testFixture struct {
	server *Server
	store  *store.Memory
	bus    *bus.Local
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mem := store.NewMemory()
	b := bus.NewLocal()
	pres := presence.NewLocal()
	cache := trust.NewCache()
	verifier := admission.NewJWTVerifier("gateway-test-secret")
	pipeline := admission.NewPipeline(verifier, mem, mem, mem, cache, mem, nil)

	cfg := &config.Config{MaxConnections: 10, IdleTimeout: time.Minute, SessionMaxAge: time.Hour}
	s := New(cfg, zerolog.Nop(), pipeline, mem, b, pres)

	return &testFixture{server: s, store: mem, bus: b}
}

// newTestClient builds a ready Client attached to f's server without going
// through the HTTP upgrade path, mirroring what admit() does after
// authentication succeeds.
func (f *testFixture) newTestClient(agentID string) *Client {
	c := newClient(agentID+"-conn", nil, f.server)
	c.markReady(admission.Identity{AgentID: agentID, Username: agentID, Role: domain.RoleAgent, Tier: domain.TierTrusted})
	f.server.sockets.Add(agentID, c)
	return c
}

// drain reads every currently-queued frame off c's send channel without
// blocking, for assertions on what a handler enqueued.
func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}
