// Package coordinator is the in-process realization of the quorum coordinator.
// Participants share memory with it: joins and arbitration run under one mutex
// and released members are woken through a counting gate per role.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"quorumgate/pkg/gate"
	"quorumgate/pkg/models"
	"quorumgate/pkg/participant"
	"quorumgate/pkg/quorum"
)

type Core struct {
	mu      sync.Mutex
	arbiter *quorum.Arbiter[string]
	gates   map[models.Role]*gate.Gate

	// wake carries one signal per completed quorum. At most two quorums are
	// complete at once, so a send only fails when both are already signalled
	// (possible after a drain left a stale signal behind).
	wake   chan struct{}
	logger *zap.Logger
}

var (
	_ participant.Transport = (*Core)(nil)
	_ participant.Joiner    = (*Core)(nil)
)

func NewCore(cfg quorum.Config, logger *zap.Logger) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Core{
		gates: map[models.Role]*gate.Gate{
			models.RolePrimary:   gate.New(),
			models.RoleSecondary: gate.New(),
		},
		wake:   make(chan struct{}, 2),
		logger: logger.Named("coordinator"),
	}

	arbiter, err := quorum.NewArbiter[string](cfg, quorum.ReleaserFunc[string](c.release), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create arbiter: %w", err)
	}
	c.arbiter = arbiter
	return c, nil
}

// release runs with c.mu held. Gate tickets were entered in join order under
// the same lock, so the oldest len(members) tickets belong to exactly these members.
func (c *Core) release(_ context.Context, role models.Role, members []string) {
	woken := c.gates[role].Release(len(members))
	if woken != len(members) {
		c.logger.Error("gate out of step with group",
			zap.String("role", string(role)),
			zap.Int("members", len(members)),
			zap.Int("woken", woken))
	}
}

// Join registers p with its group. On acceptance it returns a wait function that
// blocks until the member is released; the member that completes a quorum
// wakes the control loop before returning.
func (c *Core) Join(_ context.Context, p models.Participant) (func(context.Context) error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, reached := c.arbiter.Join(p.Role, p.ID)
	if result == quorum.Rejected {
		return nil, false
	}
	ticket := c.gates[p.Role].Enter()
	if reached {
		c.signal()
	}
	return ticket.Wait, true
}

// Request joins and, if accepted, blocks until released.
func (c *Core) Request(ctx context.Context, p models.Participant) (participant.Outcome, error) {
	wait, accepted := c.Join(ctx, p)
	if !accepted {
		return participant.OutcomeRejected, nil
	}
	if err := wait(ctx); err != nil {
		return participant.OutcomeRejected, err
	}
	return participant.OutcomeReleased, nil
}

// signal must be called with c.mu held.
func (c *Core) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
		c.logger.Debug("wake already pending for every complete quorum")
	}
}

// Run is the control loop. Each wake runs exactly one arbitration round, so
// when both quorums are complete the secondary stays intact until its own
// wake. It blocks until the context is cancelled.
func (c *Core) Run(ctx context.Context) {
	c.logger.Info("control loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("control loop shutting down")
			return
		case <-c.wake:
			c.mu.Lock()
			d := c.arbiter.Arbitrate(ctx)
			c.mu.Unlock()
			if !d.Released {
				c.logger.Debug("woken with nothing to release", zap.Uint64("round", d.Round))
			}
		}
	}
}

// ArbitrateOnce runs exactly one arbitration round outside the control loop.
func (c *Core) ArbitrateOnce(ctx context.Context) quorum.Decision[string] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arbiter.Arbitrate(ctx)
}

// Drain force-releases everyone waiting in role's group.
func (c *Core) Drain(ctx context.Context, role models.Role) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arbiter.Drain(ctx, role)
}

func (c *Core) Snapshot() quorum.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arbiter.Snapshot()
}
