// Package endpoint is the addressable realization of the quorum coordinator.
// Messages from many senders are processed one at a time by a single goroutine,
// which is the only exclusion domain the arbiter needs.
package endpoint

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"quorumgate/pkg/metrics"
	"quorumgate/pkg/models"
	"quorumgate/pkg/quorum"
)

var (
	// ErrLateArrival is sent to a sender whose group was already full.
	ErrLateArrival = errors.New("arrived too late for the current quorum")
	// ErrUnknownTag is sent to a sender whose message carried neither ready tag.
	ErrUnknownTag = models.ErrUnknownTag
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("endpoint stopped")
)

// Message is one ready message. Sender is the opaque reply address.
type Message struct {
	Sender string
	Tag    string
}

// Replier delivers replies to sender addresses. Implementations must not block
// on an address whose sender has gone away.
type Replier interface {
	Reply(ctx context.Context, addr string, status models.Status) error
	Reject(ctx context.Context, addr string, err error) error
}

// Config tunes the endpoint loop.
type Config struct {
	Quorum quorum.Config
	// QueueSize bounds submitted but unprocessed operations.
	QueueSize int
	// MaxBatch is how many messages may be processed while a wake is pending
	// before arbitration is forced. While a complete quorum waits for its
	// round, further arrivals of that role are rejected as late rather than
	// queued for the next quorum; a larger batch widens that window. 1
	// arbitrates right after the completing message.
	MaxBatch int
}

func DefaultConfig() Config {
	return Config{
		Quorum:    quorum.DefaultConfig(),
		QueueSize: 1024,
		MaxBatch:  16,
	}
}

type op func(ctx context.Context)

type Endpoint struct {
	cfg     Config
	arbiter *quorum.Arbiter[string]
	replier Replier
	ops     chan op
	stopped chan struct{}
	tracer  trace.Tracer
	logger  *zap.Logger

	// Owned by the Run goroutine. wakes counts quorums completed since the
	// last arbitration; each one is served by its own round.
	wakes int
	batch int
}

func NewEndpoint(cfg Config, replier Replier, logger *zap.Logger) (*Endpoint, error) {
	if replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultConfig().MaxBatch
	}

	e := &Endpoint{
		cfg:     cfg,
		replier: replier,
		ops:     make(chan op, cfg.QueueSize),
		stopped: make(chan struct{}),
		tracer:  otel.Tracer("quorumgate/endpoint"),
		logger:  logger.Named("endpoint"),
	}

	arbiter, err := quorum.NewArbiter[string](cfg.Quorum, quorum.ReleaserFunc[string](e.release), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create arbiter: %w", err)
	}
	e.arbiter = arbiter
	return e, nil
}

// Submit queues msg for processing. It returns once the message is queued,
// not once it is answered; the answer goes to msg.Sender through the Replier.
func (e *Endpoint) Submit(ctx context.Context, msg Message) error {
	return e.enqueue(ctx, func(ctx context.Context) { e.handle(ctx, msg) })
}

func (e *Endpoint) enqueue(ctx context.Context, o op) error {
	select {
	case <-e.stopped:
		return ErrStopped
	default:
	}
	select {
	case e.ops <- o:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes operations until ctx is cancelled. Arbitration runs once the
// queue is momentarily empty, or after MaxBatch messages, so quorums that
// fill in the same burst are arbitrated together under the priority rule.
func (e *Endpoint) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.logger.Info("endpoint started",
		zap.Int("primary_quorum", e.cfg.Quorum.PrimaryCapacity),
		zap.Int("secondary_quorum", e.cfg.Quorum.SecondaryCapacity))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("endpoint shutting down")
			return nil
		case o := <-e.ops:
			o(ctx)
			if e.wakes > 0 {
				e.batch++
				if len(e.ops) == 0 || e.batch >= e.cfg.MaxBatch {
					e.settle(ctx)
				}
			}
		}
	}
}

func (e *Endpoint) handle(ctx context.Context, msg Message) {
	role, err := models.ParseTag(msg.Tag)
	if err != nil {
		metrics.ProtocolViolations.Inc()
		e.logger.Warn("discarding message with unknown tag",
			zap.String("sender", msg.Sender),
			zap.String("tag", msg.Tag))
		if rerr := e.replier.Reject(ctx, msg.Sender, ErrUnknownTag); rerr != nil {
			e.logger.Debug("failed to notify sender", zap.String("sender", msg.Sender), zap.Error(rerr))
		}
		return
	}

	result, reached := e.arbiter.Join(role, msg.Sender)
	if result == quorum.Rejected {
		if rerr := e.replier.Reject(ctx, msg.Sender, ErrLateArrival); rerr != nil {
			metrics.ReplyFailures.WithLabelValues(string(role)).Inc()
			e.logger.Warn("failed to reject late arrival", zap.String("sender", msg.Sender), zap.Error(rerr))
		}
		return
	}
	if reached {
		e.wakes++
	}
}

// settle runs one arbitration round per pending wake. Rounds apply the
// priority rule afresh, so a complete primary quorum goes first however the
// wakes were ordered.
func (e *Endpoint) settle(ctx context.Context) {
	for ; e.wakes > 0; e.wakes-- {
		e.arbiter.Arbitrate(ctx)
	}
	e.batch = 0
}

// release runs on the Run goroutine. A failed reply is logged and counted and
// the remaining members are still answered.
func (e *Endpoint) release(ctx context.Context, role models.Role, members []string) {
	ctx, span := e.tracer.Start(ctx, "endpoint.release",
		trace.WithAttributes(
			attribute.String("quorum.role", string(role)),
			attribute.Int("quorum.members", len(members))))
	defer span.End()

	status := role.ReleasedStatus()
	failed := 0
	for _, addr := range members {
		if err := e.replier.Reply(ctx, addr, status); err != nil {
			failed++
			metrics.ReplyFailures.WithLabelValues(string(role)).Inc()
			e.logger.Warn("reply not delivered",
				zap.String("role", string(role)),
				zap.String("sender", addr),
				zap.Error(err))
		}
	}
	if failed > 0 {
		span.SetAttributes(attribute.Int("quorum.reply_failures", failed))
		span.SetStatus(codes.Error, "some replies were not delivered")
	}
}

// Snapshot returns both groups' occupancy as seen by the Run goroutine.
func (e *Endpoint) Snapshot(ctx context.Context) (quorum.Snapshot, error) {
	res := make(chan quorum.Snapshot, 1)
	if err := e.enqueue(ctx, func(context.Context) { res <- e.arbiter.Snapshot() }); err != nil {
		return quorum.Snapshot{}, err
	}
	select {
	case s := <-res:
		return s, nil
	case <-e.stopped:
		return quorum.Snapshot{}, ErrStopped
	case <-ctx.Done():
		return quorum.Snapshot{}, ctx.Err()
	}
}

// Drain force-releases role's group and returns the addresses that were answered.
func (e *Endpoint) Drain(ctx context.Context, role models.Role) ([]string, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	res := make(chan []string, 1)
	if err := e.enqueue(ctx, func(ctx context.Context) { res <- e.arbiter.Drain(ctx, role) }); err != nil {
		return nil, err
	}
	select {
	case members := <-res:
		return members, nil
	case <-e.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
