package participant

import (
	"context"

	"quorumgate/pkg/models"
)

// Outcome is how a request to the coordinator ended.
type Outcome int

const (
	// OutcomeReleased means the participant was accepted, waited and was released.
	OutcomeReleased Outcome = iota
	// OutcomeRejected means the group was full; the participant was not queued.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReleased:
		return "released"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Transport carries one join request and blocks until it is answered.
// Released calls block for as long as the quorum takes; there is no timeout,
// only ctx cancellation on shutdown.
type Transport interface {
	Request(ctx context.Context, p models.Participant) (Outcome, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, p models.Participant) (Outcome, error)

func (f TransportFunc) Request(ctx context.Context, p models.Participant) (Outcome, error) {
	return f(ctx, p)
}
