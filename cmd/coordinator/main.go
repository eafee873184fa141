// Command coordinator runs the networked quorum coordinator. Participants
// reach it over HTTP, and over Redis when TRANSPORT=redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "quorumgate/configs"
	"quorumgate/pkg/api"
	"quorumgate/pkg/api/middleware"
	"quorumgate/pkg/coordination"
	"quorumgate/pkg/coordination/etcd"
	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/logger"
	"quorumgate/pkg/observability"
	"quorumgate/pkg/quorum"
	"quorumgate/pkg/stats"
	qredis "quorumgate/pkg/transport/redis"
)

var errLeadershipLost = errors.New("coordination session lost")

func main() {
	cfg := config.LoadConfig()

	log, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: "stdout",
		Service:    "coordinator",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()
	}()

	traceCfg := observability.DefaultConfig("quorumgate-coordinator")
	traceCfg.Enabled = cfg.TracingEnabled
	traceCfg.Endpoint = cfg.OTLPEndpoint
	traceCfg.Attributes = []attribute.KeyValue{
		attribute.Int("quorum.primary_capacity", cfg.PrimaryQuorum),
		attribute.Int("quorum.secondary_capacity", cfg.SecondaryQuorum),
		attribute.String("quorum.transport", cfg.Transport),
	}
	tracing, err := observability.Init(ctx, traceCfg)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	coord, err := newCoordination(cfg)
	if err != nil {
		log.Fatal("failed to connect to etcd", zap.Error(err))
	}
	defer coord.Close()

	hostname, _ := os.Hostname()
	election := coord.NewElection("coordinator")

	// Only the leader may own the quorums; a standby waits here.
	log.Info("campaigning for leadership", zap.String("node", hostname))
	if err := election.Campaign(ctx, hostname); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown before leadership was acquired")
			return
		}
		log.Fatal("failed to campaign", zap.Error(err))
	}
	log.Info("elected leader", zap.String("node", hostname))

	mailboxes := api.NewMailboxes()
	mux := endpoint.NewMux(mailboxes)

	epCfg := endpoint.DefaultConfig()
	epCfg.Quorum = quorum.Config{
		PrimaryCapacity:   cfg.PrimaryQuorum,
		SecondaryCapacity: cfg.SecondaryQuorum,
	}
	ep, err := endpoint.NewEndpoint(epCfg, mux, log)
	if err != nil {
		log.Fatal("failed to create endpoint", zap.Error(err))
	}

	server, err := api.NewServer(api.Config{
		Port:        cfg.APIPort,
		ServiceName: traceCfg.ServiceName,
		APIKey:      cfg.APIKey,
		RateLimit:   middleware.DefaultRateLimiterConfig(),
		Coordinator: ep,
		Mailboxes:   mailboxes,
		Logger:      log,
	})
	if err != nil {
		log.Fatal("failed to create api server", zap.Error(err))
	}

	reporter, err := stats.NewReporter(cfg.StatsSchedule, ep, log)
	if err != nil {
		log.Fatal("failed to create stats reporter", zap.Error(err))
	}
	reporter.Start()
	defer reporter.Stop()

	var listener *qredis.Listener
	if cfg.Transport == "redis" {
		client, err := qredis.Connect(qredis.DefaultConfig(cfg.RedisAddr()))
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()

		mux.Handle(qredis.ReplyPrefix(cfg.RedisInbox), qredis.NewReplier(client, qredis.DefaultReplyTTL))
		listener = qredis.NewListener(client, cfg.RedisInbox, ep, log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ep.Run(gctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-coord.Done():
			return errLeadershipLost
		}
	})
	if listener != nil {
		g.Go(func() error {
			if err := listener.Run(gctx); !errors.Is(err, endpoint.ErrStopped) {
				return err
			}
			return nil
		})
	}

	log.Info("coordinator started",
		zap.String("port", cfg.APIPort),
		zap.String("transport", cfg.Transport))

	if err := g.Wait(); err != nil {
		log.Error("coordinator stopped with error", zap.Error(err))
	}

	// Resign so a standby can take over quickly.
	resignCtx, resignCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer resignCancel()
	if err := election.Resign(resignCtx); err != nil {
		log.Warn("failed to resign leadership", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newCoordination(cfg *config.Config) (coordination.Coordinator, error) {
	if len(cfg.EtcdEndpoints) == 0 {
		return coordination.NewStandalone(), nil
	}
	return etcd.NewEtcdCoordinator(cfg.EtcdEndpoints, cfg.LeaderElectionTTL)
}
