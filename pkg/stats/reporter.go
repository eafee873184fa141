// Package stats periodically reports quorum occupancy to the log.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"quorumgate/pkg/quorum"
)

// Source provides the occupancy snapshot to report.
type Source interface {
	Snapshot(ctx context.Context) (quorum.Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (quorum.Snapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context) (quorum.Snapshot, error) { return f(ctx) }

// Reporter logs a snapshot on a cron schedule, e.g. "@every 30s" or "*/1 * * * *".
type Reporter struct {
	cron    *cron.Cron
	source  Source
	logger  *zap.Logger
	timeout time.Duration

	mu         sync.Mutex
	lastRounds uint64
}

func NewReporter(schedule string, source Source, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Reporter{
		cron:    cron.New(cron.WithParser(parser)),
		source:  source,
		logger:  logger.Named("stats"),
		timeout: 5 * time.Second,
	}

	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.ReportOnce(ctx); err != nil {
		r.logger.Warn("stats report failed", zap.Error(err))
	}
}

// ReportOnce logs the current occupancy and the rounds run since the last report.
func (r *Reporter) ReportOnce(ctx context.Context) error {
	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	r.mu.Lock()
	delta := snap.Rounds - r.lastRounds
	r.lastRounds = snap.Rounds
	r.mu.Unlock()

	r.logger.Info("quorum occupancy",
		zap.Int("primary_waiting", snap.Primary.Waiting),
		zap.Int("primary_capacity", snap.Primary.Capacity),
		zap.Int("secondary_waiting", snap.Secondary.Waiting),
		zap.Int("secondary_capacity", snap.Secondary.Capacity),
		zap.Uint64("rounds", snap.Rounds),
		zap.Uint64("rounds_since_last", delta))
	return nil
}
