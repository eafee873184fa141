// Package quorum holds the transport-agnostic core: quorum groups and the
// priority arbiter that decides which group is released.
//
// Nothing in this package locks. Every caller owns one exclusion domain covering
// both groups (a mutex in the direct coordinator, a single goroutine in the
// networked endpoint) so that a join can never interleave with an arbitration round.
package quorum

import (
	"errors"
	"fmt"
	"slices"

	"quorumgate/pkg/models"
)

var (
	// ErrInvalidCapacity is returned for a non-positive quorum size.
	ErrInvalidCapacity = errors.New("quorum capacity must be positive")
	// ErrBelowCapacity is returned by ReleaseAll when the quorum is not met.
	ErrBelowCapacity = errors.New("quorum not reached")
)

// JoinResult is the outcome of a join attempt.
type JoinResult int

const (
	Accepted JoinResult = iota
	// Rejected means the group is full (late arrival) or the identity is already queued.
	// The caller must go back to its away phase; nothing was recorded.
	Rejected
)

func (r JoinResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Group is one quorum: a required capacity and the FIFO queue of pending identities.
type Group[ID comparable] struct {
	role     models.Role
	capacity int
	waiting  int
	pending  []ID
}

// NewGroup creates an empty group for role requiring capacity members.
func NewGroup[ID comparable](role models.Role, capacity int) (*Group[ID], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %s=%d", ErrInvalidCapacity, role, capacity)
	}
	return &Group[ID]{
		role:     role,
		capacity: capacity,
		pending:  make([]ID, 0, capacity),
	}, nil
}

func (g *Group[ID]) Role() models.Role { return g.role }
func (g *Group[ID]) Capacity() int     { return g.capacity }
func (g *Group[ID]) Waiting() int      { return g.waiting }

// Join appends id if there is room. A full group rejects without counting or queueing.
func (g *Group[ID]) Join(id ID) JoinResult {
	if g.waiting >= g.capacity {
		return Rejected
	}
	if slices.Contains(g.pending, id) {
		return Rejected
	}
	g.pending = append(g.pending, id)
	g.waiting++
	return Accepted
}

// ReachedCapacity reports whether the quorum is complete.
func (g *Group[ID]) ReachedCapacity() bool {
	return g.waiting == g.capacity
}

// Pending returns a copy of the queued identities in arrival order.
func (g *Group[ID]) Pending() []ID {
	return slices.Clone(g.pending)
}

// ReleaseAll hands back the complete quorum in FIFO order and resets the group.
func (g *Group[ID]) ReleaseAll() ([]ID, error) {
	if !g.ReachedCapacity() {
		return nil, fmt.Errorf("%w: %s has %d/%d", ErrBelowCapacity, g.role, g.waiting, g.capacity)
	}
	return g.reset(), nil
}

// Drain empties the group regardless of quorum and returns whoever was queued.
func (g *Group[ID]) Drain() []ID {
	return g.reset()
}

func (g *Group[ID]) reset() []ID {
	members := g.pending
	g.pending = make([]ID, 0, g.capacity)
	g.waiting = 0
	return members
}
