// Command loadtest ramps up a configurable number of simulated agent
// connections against a running gateway and sustains them for a fixed
// duration, reporting connection and fan-out health every few seconds.
// It mints its own short-lived access tokens with the shared JWT secret,
// so it can run against any deployment without a seeded token store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/moltchats/gateway/internal/protocol"
)

type config struct {
	wsURL             string
	healthURL         string
	jwtSecret         string
	targetConnections int
	rampRate          int // connections per second
	sustainSeconds    int
	reportSeconds     int
	channels          []string
}

type state struct {
	activeConnections int64
	totalCreated      int64
	failedConnections int64

	messagesReceived int64
	subscribeAcked   int64
	subscribeFailed  int64

	startTime time.Time
	phase     atomic.Value // string
}

var (
	cfg *config
	st  *state
)

func main() {
	cfg = parseFlags()
	st = &state{startTime: time.Now()}
	st.phase.Store("ramping")

	log.Printf("load test: target=%d ramp=%d/s sustain=%ds url=%s", cfg.targetConnections, cfg.rampRate, cfg.sustainSeconds, cfg.wsURL)

	if err := checkHealth(); err != nil {
		log.Fatalf("gateway health check failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	go reportLoop(ctx)

	rampUp(ctx)

	if st.phase.Load() == "sustaining" {
		log.Printf("sustaining load for %ds", cfg.sustainSeconds)
		select {
		case <-time.After(time.Duration(cfg.sustainSeconds) * time.Second):
			st.phase.Store("completed")
		case <-ctx.Done():
		}
	}

	printReport()
}

func parseFlags() *config {
	c := &config{}
	flag.StringVar(&c.wsURL, "url", envOr("LOADTEST_WS_URL", "ws://localhost:8080/ws"), "gateway WebSocket URL")
	flag.StringVar(&c.healthURL, "health", envOr("LOADTEST_HEALTH_URL", "http://localhost:8080/healthz"), "gateway health URL")
	flag.StringVar(&c.jwtSecret, "secret", os.Getenv("MOLT_JWT_SECRET"), "JWT signing secret, must match the gateway's MOLT_JWT_SECRET")
	flag.IntVar(&c.targetConnections, "connections", envOrInt("LOADTEST_CONNECTIONS", 500), "target number of simulated agent connections")
	flag.IntVar(&c.rampRate, "ramp-rate", envOrInt("LOADTEST_RAMP_RATE", 50), "connections to establish per second")
	flag.IntVar(&c.sustainSeconds, "duration", envOrInt("LOADTEST_DURATION", 300), "seconds to sustain load after ramp-up")
	flag.IntVar(&c.reportSeconds, "report-interval", 10, "seconds between progress reports")
	channelsStr := flag.String("channels", envOr("LOADTEST_CHANNELS", ""), "comma-separated channel IDs to subscribe each connection to")
	flag.Parse()

	if *channelsStr != "" {
		for _, ch := range strings.Split(*channelsStr, ",") {
			c.channels = append(c.channels, strings.TrimSpace(ch))
		}
	}
	if c.jwtSecret == "" {
		log.Fatalf("missing -secret (or MOLT_JWT_SECRET)")
	}
	return c
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func checkHealth() error {
	resp, err := http.Get(cfg.healthURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func rampUp(ctx context.Context) {
	batchInterval := 100 * time.Millisecond
	batchSize := cfg.rampRate / 10
	if batchSize < 1 {
		batchSize = 1
	}

	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt64(&st.totalCreated) >= int64(cfg.targetConnections) {
				st.phase.Store("sustaining")
				log.Printf("ramp-up complete: %d active", atomic.LoadInt64(&st.activeConnections))
				return
			}

			var wg sync.WaitGroup
			for i := 0; i < batchSize && atomic.LoadInt64(&st.totalCreated) < int64(cfg.targetConnections); i++ {
				atomic.AddInt64(&st.totalCreated, 1)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := connectSimulatedAgent(ctx); err != nil {
						atomic.AddInt64(&st.failedConnections, 1)
					}
				}()
			}
			wg.Wait()
		}
	}
}

// connectSimulatedAgent dials one connection, subscribes to the configured
// channels, and runs its read/heartbeat loop until ctx is cancelled.
func connectSimulatedAgent(ctx context.Context) error {
	agentID := uuid.NewString()
	token, err := mintToken(agentID)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	u, err := url.Parse(cfg.wsURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, br, _, err := ws.DefaultDialer.Dial(ctx, u.String())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	var reader io.Reader = conn
	if br != nil && br.Buffered() > 0 {
		reader = br
	}

	atomic.AddInt64(&st.activeConnections, 1)
	go func() {
		defer func() {
			conn.Close()
			atomic.AddInt64(&st.activeConnections, -1)
		}()
		if len(cfg.channels) > 0 {
			subscribe(conn, cfg.channels)
		}
		go heartbeatLoop(ctx, conn)
		readLoop(ctx, reader)
	}()

	return nil
}

func mintToken(agentID string) (string, error) {
	claims := jwt.MapClaims{
		"tid":      uuid.NewString(),
		"agentId":  agentID,
		"username": "loadtest-" + agentID[:8],
		"role":     "agent",
		"exp":      time.Now().Add(1 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.jwtSecret))
}

func subscribe(conn io.Writer, channels []string) {
	payload, _ := json.Marshal(protocol.SubscribePayload{Channels: channels})
	frame, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpSubscribe, Payload: payload})
	wsutil.WriteClientMessage(conn, ws.OpText, frame)
}

func heartbeatLoop(ctx context.Context, conn io.Writer) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpPing})
			if err := wsutil.WriteClientMessage(conn, ws.OpText, frame); err != nil {
				return
			}
		}
	}
}

func readLoop(ctx context.Context, r io.Reader) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, op, err := wsutil.ReadServerData(r)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}

		var frame protocol.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Op {
		case protocol.OpSubscribed:
			atomic.AddInt64(&st.subscribeAcked, 1)
		case protocol.OpError:
			atomic.AddInt64(&st.subscribeFailed, 1)
		default:
			atomic.AddInt64(&st.messagesReceived, 1)
		}
	}
}

func reportLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(cfg.reportSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printReport()
		}
	}
}

func printReport() {
	elapsed := time.Since(st.startTime).Round(time.Second)
	log.Printf("[%s] phase=%s active=%d/%d created=%d failed=%d received=%d subscribed=%d sub_failed=%d",
		elapsed, st.phase.Load(),
		atomic.LoadInt64(&st.activeConnections), cfg.targetConnections,
		atomic.LoadInt64(&st.totalCreated), atomic.LoadInt64(&st.failedConnections),
		atomic.LoadInt64(&st.messagesReceived),
		atomic.LoadInt64(&st.subscribeAcked), atomic.LoadInt64(&st.subscribeFailed))
}
