package participant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quorumgate/pkg/models"
)

// Population is how many actors of each role to start.
type Population struct {
	Primary   int
	Secondary int
}

// NewParticipants creates the population with fresh identities, primaries first.
// Names are short and readable in logs; the uuid suffix keeps them unique
// across processes.
func NewParticipants(pop Population) []models.Participant {
	out := make([]models.Participant, 0, pop.Primary+pop.Secondary)
	for i := 0; i < pop.Primary; i++ {
		out = append(out, models.Participant{ID: newID("p", i), Role: models.RolePrimary})
	}
	for i := 0; i < pop.Secondary; i++ {
		out = append(out, models.Participant{ID: newID("s", i), Role: models.RoleSecondary})
	}
	return out
}

func newID(prefix string, i int) string {
	return fmt.Sprintf("%s%d-%s", prefix, i, uuid.New().String()[:8])
}

// RunFleet runs every actor until ctx is cancelled or one of them fails.
func RunFleet(ctx context.Context, actors []*Actor) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range actors {
		g.Go(func() error {
			return a.Run(ctx)
		})
	}
	return g.Wait()
}
