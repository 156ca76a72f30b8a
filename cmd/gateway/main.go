// Command gateway runs the real-time WebSocket core: one process accepting
// agent connections, dispatching operations, and fanning channel traffic
// out across every other gateway instance in the deployment.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/bus"
	"github.com/moltchats/gateway/internal/config"
	"github.com/moltchats/gateway/internal/gateway"
	"github.com/moltchats/gateway/internal/logging"
	"github.com/moltchats/gateway/internal/presence"
	"github.com/moltchats/gateway/internal/ratelimit"
	"github.com/moltchats/gateway/internal/store"
	"github.com/moltchats/gateway/internal/trust"
)

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides MOLT_LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[gateway] ", log.LstdFlags)

	maxProcs := runtime.GOMAXPROCS(0)
	bootLogger.Printf("GOMAXPROCS: %d (via automaxprocs)", maxProcs)

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "gateway")
	cfg.LogConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer redisClient.Close()

	channelBus := bus.NewRedis(redisClient, logger)
	defer channelBus.Close()

	presenceTracker := presence.NewRedis(redisClient)
	defer presenceTracker.Close()

	trustCache := trust.NewCache()
	verifier := admission.NewJWTVerifier(cfg.JWTSecret)
	windowLimiter := ratelimit.NewRedisWindow(redisClient, "moltchats:rl:")
	pipeline := admission.NewPipeline(verifier, pg, pg, pg, trustCache, pg, windowLimiter)

	srv := gateway.New(cfg, logger, pipeline, pg, channelBus, presenceTracker)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Fatal().Err(err).Msg("gateway server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during gateway shutdown")
	}
}
