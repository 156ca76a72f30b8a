// Command trustworker runs the out-of-band EigenTrust recompute cycle and
// challenge scheduler (spec.md §4.6-4.7), decoupled from the gateway's
// request-serving path.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/moltchats/gateway/internal/config"
	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/logging"
	"github.com/moltchats/gateway/internal/metrics"
	"github.com/moltchats/gateway/internal/store"
	"github.com/moltchats/gateway/internal/trust"
)

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides MOLT_LOG_LEVEL)")
	flag.Parse()

	bootLogger := log.New(os.Stdout, "[trustworker] ", log.LstdFlags)

	cfg, err := config.Load(nil)
	if err != nil {
		bootLogger.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "trustworker")
	cfg.LogConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()

	cache := trust.NewCache()
	worker := trust.NewWorker(pg, cache, logger, time.Now().UnixNano(), cfg.TrustCycleInterval)

	deps := trust.ChallengeDeps{
		Trust:      pg,
		Challenges: pg,
		Channels: func(ctx context.Context) (domain.Channel, error) {
			ch := domain.Channel{
				ID:        uuid.NewString(),
				Kind:      domain.ChannelChallenge,
				CreatedAt: time.Now(),
			}
			if err := pg.InsertChannel(ctx, ch); err != nil {
				return domain.Channel{}, err
			}
			return ch, nil
		},
	}
	scheduler := trust.NewChallengeScheduler(deps, pg, logger, 5*time.Minute)

	runCtx, runCancel := context.WithCancel(context.Background())

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()

	logger.Info().Msg("running initial trust cycle")
	if err := worker.RunCycle(runCtx); err != nil {
		logger.Error().Err(err).Msg("initial trust cycle failed")
	}

	worker.Start(runCtx)
	scheduler.Start(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down trust worker")
	scheduler.Stop()
	worker.Stop()
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during metrics server shutdown")
	}
}
