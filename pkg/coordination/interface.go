// Package coordination keeps a single coordinator instance active when several
// are deployed: the others stand by in an election until the leader goes away.
package coordination

import (
	"context"
)

// Coordinator hands out elections bound to one liveness session.
type Coordinator interface {
	// NewElection creates a new election instance for a given campaign name.
	NewElection(name string) Election

	// Done is closed when the session backing every election is lost.
	// A leader must stop serving once it fires.
	Done() <-chan struct{}

	// Close terminates the coordinator connection.
	Close() error
}

// Election represents a single leader election campaign.
type Election interface {
	// Campaign blocks until leadership is acquired, ctx ends or an error occurs.
	Campaign(ctx context.Context, value string) error

	// Resign releases leadership.
	Resign(ctx context.Context) error

	// Leader returns the current leader's value (if any).
	Leader(ctx context.Context) (string, error)
}
