package quorum

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quorumgate/pkg/metrics"
	"quorumgate/pkg/models"
)

// Releaser delivers a release decision to the members of a group.
// It is called while the caller's exclusion domain is held and must not block
// on any single member.
type Releaser[ID comparable] interface {
	Release(ctx context.Context, role models.Role, members []ID)
}

// ReleaserFunc adapts a function to Releaser.
type ReleaserFunc[ID comparable] func(ctx context.Context, role models.Role, members []ID)

func (f ReleaserFunc[ID]) Release(ctx context.Context, role models.Role, members []ID) {
	f(ctx, role, members)
}

// Config holds the two required quorum sizes.
type Config struct {
	PrimaryCapacity   int
	SecondaryCapacity int
}

// DefaultConfig returns the classic sizes: nine primaries, three secondaries.
func DefaultConfig() Config {
	return Config{
		PrimaryCapacity:   9,
		SecondaryCapacity: 3,
	}
}

// Decision is the outcome of one arbitration round.
type Decision[ID comparable] struct {
	Round    uint64
	Released bool
	Role     models.Role
	Members  []ID
}

// GroupSnapshot is a point-in-time view of one group.
type GroupSnapshot struct {
	Role     models.Role `json:"role"`
	Waiting  int         `json:"waiting"`
	Capacity int         `json:"capacity"`
}

// Snapshot is a point-in-time view of both groups.
type Snapshot struct {
	Primary   GroupSnapshot `json:"primary"`
	Secondary GroupSnapshot `json:"secondary"`
	Rounds    uint64        `json:"rounds"`
}

// Arbiter owns the primary and secondary groups and applies the priority rule.
// It is not safe for concurrent use.
type Arbiter[ID comparable] struct {
	primary   *Group[ID]
	secondary *Group[ID]
	releaser  Releaser[ID]
	logger    *zap.Logger
	rounds    uint64
}

// NewArbiter builds both groups from cfg.
func NewArbiter[ID comparable](cfg Config, releaser Releaser[ID], logger *zap.Logger) (*Arbiter[ID], error) {
	if releaser == nil {
		return nil, fmt.Errorf("releaser is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	primary, err := NewGroup[ID](models.RolePrimary, cfg.PrimaryCapacity)
	if err != nil {
		return nil, err
	}
	secondary, err := NewGroup[ID](models.RoleSecondary, cfg.SecondaryCapacity)
	if err != nil {
		return nil, err
	}

	return &Arbiter[ID]{
		primary:   primary,
		secondary: secondary,
		releaser:  releaser,
		logger:    logger.Named("arbiter"),
	}, nil
}

// Group returns the group bound to role.
func (a *Arbiter[ID]) Group(role models.Role) *Group[ID] {
	if role == models.RolePrimary {
		return a.primary
	}
	return a.secondary
}

// Join registers id with its role's group. reached is true when this join
// completed the quorum; that caller is responsible for waking the arbiter.
func (a *Arbiter[ID]) Join(role models.Role, id ID) (result JoinResult, reached bool) {
	g := a.Group(role)
	result = g.Join(id)
	metrics.RecordJoin(string(role), result == Accepted, g.Waiting())

	if result == Rejected {
		a.logger.Debug("join rejected",
			zap.String("role", string(role)),
			zap.Any("member", id),
			zap.Int("waiting", g.Waiting()),
			zap.Int("capacity", g.Capacity()))
		return Rejected, false
	}

	a.logger.Info("member joined",
		zap.String("role", string(role)),
		zap.Any("member", id),
		zap.Int("waiting", g.Waiting()),
		zap.Int("capacity", g.Capacity()))
	return Accepted, g.ReachedCapacity()
}

// Arbitrate runs one round: primary first, then secondary. A round where
// neither quorum is complete is spurious and releases nothing.
func (a *Arbiter[ID]) Arbitrate(ctx context.Context) Decision[ID] {
	a.rounds++
	d := Decision[ID]{Round: a.rounds}

	for _, g := range []*Group[ID]{a.primary, a.secondary} {
		if !g.ReachedCapacity() {
			continue
		}
		members, err := g.ReleaseAll()
		if err != nil {
			// Unreachable: capacity was checked in the same exclusion domain.
			a.logger.Error("release failed", zap.Error(err))
			continue
		}

		d.Released = true
		d.Role = g.Role()
		d.Members = members

		a.releaser.Release(ctx, g.Role(), members)
		metrics.RecordRelease(string(g.Role()), len(members))
		metrics.ArbitrationRounds.WithLabelValues(string(g.Role())).Inc()

		a.logger.Info("quorum released",
			zap.Uint64("round", d.Round),
			zap.String("role", string(g.Role())),
			zap.Int("members", len(members)),
			zap.Int("primary_waiting", a.primary.Waiting()),
			zap.Int("secondary_waiting", a.secondary.Waiting()))
		return d
	}

	metrics.ArbitrationRounds.WithLabelValues("spurious").Inc()
	a.logger.Debug("spurious round", zap.Uint64("round", d.Round))
	return d
}

// Drain force-releases whatever is queued in role's group, quorum or not.
func (a *Arbiter[ID]) Drain(ctx context.Context, role models.Role) []ID {
	g := a.Group(role)
	members := g.Drain()
	metrics.DrainsTotal.WithLabelValues(string(role)).Inc()
	metrics.WaitingMembers.WithLabelValues(string(role)).Set(0)

	if len(members) > 0 {
		a.releaser.Release(ctx, role, members)
	}
	a.logger.Warn("group drained",
		zap.String("role", string(role)),
		zap.Int("members", len(members)))
	return members
}

// Snapshot reports both groups' occupancy.
func (a *Arbiter[ID]) Snapshot() Snapshot {
	return Snapshot{
		Primary: GroupSnapshot{
			Role:     models.RolePrimary,
			Waiting:  a.primary.Waiting(),
			Capacity: a.primary.Capacity(),
		},
		Secondary: GroupSnapshot{
			Role:     models.RoleSecondary,
			Waiting:  a.secondary.Waiting(),
			Capacity: a.secondary.Capacity(),
		},
		Rounds: a.rounds,
	}
}
