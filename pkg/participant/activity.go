package participant

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"quorumgate/pkg/models"
)

// Activity is what a participant does right after it is released
// (delivery for primaries, resolution for secondaries).
type Activity interface {
	Perform(ctx context.Context, p models.Participant) error
}

// TimedActivity occupies the participant for a fixed duration.
type TimedActivity struct {
	Duration time.Duration
	Clock    clockwork.Clock
}

func NewTimedActivity(d time.Duration, clock clockwork.Clock) *TimedActivity {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimedActivity{Duration: d, Clock: clock}
}

func (a *TimedActivity) Perform(ctx context.Context, _ models.Participant) error {
	return sleep(ctx, a.Clock, a.Duration)
}

// sleep waits d on clock, returning early with ctx's error.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
