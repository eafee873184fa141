// Command simulation runs the coordinator and a whole participant population
// in one process, sharing memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "quorumgate/configs"
	"quorumgate/pkg/coordinator"
	"quorumgate/pkg/logger"
	"quorumgate/pkg/models"
	"quorumgate/pkg/participant"
	"quorumgate/pkg/quorum"
	"quorumgate/pkg/stats"
)

func main() {
	cfg := config.LoadConfig()

	log, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: "stdout",
		Service:    "simulation",
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

	core, err := coordinator.NewCore(quorum.Config{
		PrimaryCapacity:   cfg.PrimaryQuorum,
		SecondaryCapacity: cfg.SecondaryQuorum,
	}, log)
	if err != nil {
		log.Fatal("failed to create coordinator", zap.Error(err))
	}

	population := participant.NewParticipants(participant.Population{
		Primary:   cfg.PrimaryPopulation,
		Secondary: cfg.SecondaryPopulation,
	})
	actors := make([]*participant.Actor, 0, len(population))
	for _, p := range population {
		awayMin, awayMax, activity := cfg.Timings(string(p.Role))
		actors = append(actors, participant.NewActor(p, participant.Config{
			AwayMin:  awayMin,
			AwayMax:  awayMax,
			Activity: activity,
		}, core, participant.Options{Logger: log}))
	}

	reporter, err := stats.NewReporter(cfg.StatsSchedule, stats.SourceFunc(func(context.Context) (quorum.Snapshot, error) {
		return core.Snapshot(), nil
	}), log)
	if err != nil {
		log.Fatal("failed to create stats reporter", zap.Error(err))
	}
	reporter.Start()
	defer reporter.Stop()

	log.Info("simulation starting",
		zap.Int("primary_quorum", cfg.PrimaryQuorum),
		zap.Int("secondary_quorum", cfg.SecondaryQuorum),
		zap.Int("primaries", cfg.PrimaryPopulation),
		zap.Int("secondaries", cfg.SecondaryPopulation))
	if cfg.PrimaryPopulation < cfg.PrimaryQuorum {
		log.Warn("primary population cannot fill a quorum", zap.String("role", string(models.RolePrimary)))
	}
	if cfg.SecondaryPopulation < cfg.SecondaryQuorum {
		log.Warn("secondary population cannot fill a quorum", zap.String("role", string(models.RoleSecondary)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		core.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return participant.RunFleet(gctx, actors)
	})

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case <-gctx.Done():
	}
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("simulation stopped with error", zap.Error(err))
	}
	log.Info("shutdown complete", zap.Uint64("rounds", core.Snapshot().Rounds))
}
