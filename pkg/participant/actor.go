// Package participant runs the actors that cycle between an away phase and a
// blocking wait for their quorum to be released.
package participant

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quorumgate/pkg/metrics"
	"quorumgate/pkg/models"
)

// State is the actor's position in its cycle.
type State int32

const (
	StateAway State = iota
	StateRequesting
	StateWaiting
	StateReleased
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAway:
		return "away"
	case StateRequesting:
		return "requesting"
	case StateWaiting:
		return "waiting"
	case StateReleased:
		return "released"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Joiner is implemented by transports that can report acceptance before
// blocking (the in-process coordinator). Networked transports only implement
// Transport, and their single blocking call covers both requesting and waiting.
type Joiner interface {
	Join(ctx context.Context, p models.Participant) (wait func(context.Context) error, accepted bool)
}

// Config sets the away-phase range and the post-release activity duration.
type Config struct {
	AwayMin  time.Duration
	AwayMax  time.Duration
	Activity time.Duration
}

// DefaultConfig returns the simulation timings: primaries stay away longer and
// spend time delivering after release; secondaries come back often.
func DefaultConfig(role models.Role) Config {
	if role == models.RolePrimary {
		return Config{AwayMin: 8 * time.Second, AwayMax: 10 * time.Second, Activity: 2 * time.Second}
	}
	return Config{AwayMin: 1 * time.Second, AwayMax: 5 * time.Second}
}

// Options carries optional collaborators; zero values get sensible defaults.
type Options struct {
	Clock    clockwork.Clock
	Activity Activity
	Rand     *rand.Rand
	Logger   *zap.Logger
	// OnState is called on every transition, from the actor's goroutine.
	OnState func(models.Participant, State)
}

// Actor is one participant loop. It holds no state that survives a cycle.
type Actor struct {
	participant models.Participant
	cfg         Config
	transport   Transport
	activity    Activity
	clock       clockwork.Clock
	rng         *rand.Rand
	logger      *zap.Logger
	onState     func(models.Participant, State)
	state       atomic.Int32
}

// NewActor builds an actor for p that talks to the coordinator through transport.
func NewActor(p models.Participant, cfg Config, transport Transport, opts Options) *Actor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Activity == nil {
		opts.Activity = NewTimedActivity(cfg.Activity, opts.Clock)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Actor{
		participant: p,
		cfg:         cfg,
		transport:   transport,
		activity:    opts.Activity,
		clock:       opts.Clock,
		rng:         opts.Rand,
		logger: opts.Logger.Named("participant").With(
			zap.String("participant", p.ID),
			zap.String("role", string(p.Role))),
		onState: opts.OnState,
	}
}

func (a *Actor) Participant() models.Participant { return a.participant }

// State returns the current state; safe to call from any goroutine.
func (a *Actor) State() State { return State(a.state.Load()) }

// Run cycles until ctx is cancelled. Transport errors do not stop the actor;
// it goes back to its away phase and tries again.
func (a *Actor) Run(ctx context.Context) error {
	for {
		if _, err := a.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("cycle failed, retrying after away phase", zap.Error(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Cycle performs one Away -> Requesting -> (Waiting -> Released | Rejected) pass.
func (a *Actor) Cycle(ctx context.Context) (Outcome, error) {
	a.setState(StateAway)
	away := a.awayDuration()
	a.logger.Debug("away", zap.Duration("for", away))
	if err := sleep(ctx, a.clock, away); err != nil {
		return OutcomeRejected, err
	}

	a.setState(StateRequesting)
	start := a.clock.Now()

	outcome, err := a.request(ctx)
	if err != nil {
		metrics.ParticipantCycles.WithLabelValues(string(a.participant.Role), "error").Inc()
		return outcome, err
	}

	if outcome == OutcomeRejected {
		a.setState(StateRejected)
		metrics.ParticipantCycles.WithLabelValues(string(a.participant.Role), "rejected").Inc()
		a.logger.Info("arrived too late for the current quorum, going back")
		return OutcomeRejected, nil
	}

	a.setState(StateReleased)
	waited := a.clock.Since(start)
	metrics.WaitDuration.WithLabelValues(string(a.participant.Role)).Observe(waited.Seconds())
	metrics.ParticipantCycles.WithLabelValues(string(a.participant.Role), "released").Inc()
	a.logger.Info("released", zap.Duration("waited", waited))

	if err := a.activity.Perform(ctx, a.participant); err != nil {
		return OutcomeReleased, err
	}
	return OutcomeReleased, nil
}

func (a *Actor) request(ctx context.Context) (Outcome, error) {
	joiner, ok := a.transport.(Joiner)
	if !ok {
		a.setState(StateWaiting)
		return a.transport.Request(ctx, a.participant)
	}

	wait, accepted := joiner.Join(ctx, a.participant)
	if !accepted {
		return OutcomeRejected, nil
	}
	a.setState(StateWaiting)
	a.logger.Info("waiting for release")
	if err := wait(ctx); err != nil {
		return OutcomeRejected, err
	}
	return OutcomeReleased, nil
}

func (a *Actor) awayDuration() time.Duration {
	lo, hi := a.cfg.AwayMin, a.cfg.AwayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(a.rng.Int64N(int64(hi-lo)+1))
}

func (a *Actor) setState(s State) {
	a.state.Store(int32(s))
	if a.onState != nil {
		a.onState(a.participant, s)
	}
}
