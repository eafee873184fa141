// Command participant runs one networked participant of ROLE against a
// remote coordinator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	config "quorumgate/configs"
	"quorumgate/pkg/api"
	"quorumgate/pkg/logger"
	"quorumgate/pkg/models"
	"quorumgate/pkg/observability"
	"quorumgate/pkg/participant"
	qredis "quorumgate/pkg/transport/redis"
)

func main() {
	cfg := config.LoadConfig()

	log, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: "stdout",
		Service:    "participant",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	role, err := models.ParseRole(cfg.Role)
	if err != nil {
		log.Fatal("invalid ROLE", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	traceCfg := observability.DefaultConfig("quorumgate-participant")
	traceCfg.Enabled = cfg.TracingEnabled
	traceCfg.Endpoint = cfg.OTLPEndpoint
	tracing, err := observability.Init(ctx, traceCfg)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	var (
		transport      participant.Transport
		breakerMetrics func() map[string]interface{}
	)
	switch cfg.Transport {
	case "redis":
		client, err := qredis.Connect(qredis.DefaultConfig(cfg.RedisAddr()))
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		rc := qredis.NewClient(client, cfg.RedisInbox, log)
		transport, breakerMetrics = rc, rc.BreakerMetrics
	default:
		hc := api.NewClient(api.ClientConfig{BaseURL: cfg.CoordinatorURL, Logger: log})
		transport, breakerMetrics = hc, hc.BreakerMetrics
	}

	hostname, _ := os.Hostname()
	p := models.Participant{
		ID:   fmt.Sprintf("%s-%s-%s", role, hostname, uuid.NewString()[:8]),
		Role: role,
	}

	awayMin, awayMax, activity := cfg.Timings(string(role))
	actor := participant.NewActor(p, participant.Config{
		AwayMin:  awayMin,
		AwayMax:  awayMax,
		Activity: activity,
	}, transport, participant.Options{Logger: log})

	log.Info("participant started",
		zap.String("participant", p.ID),
		zap.String("transport", cfg.Transport))

	if err := actor.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("participant stopped with error", zap.Error(err))
	}
	log.Info("shutdown complete",
		zap.String("state", actor.State().String()),
		zap.Any("breaker", breakerMetrics()))
}
