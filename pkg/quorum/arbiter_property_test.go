package quorum_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"quorumgate/pkg/models"
	. "quorumgate/pkg/quorum"
)

// TestArbiterProperty_RandomInterleavings drives random joins and rounds and
// checks the invariants after every step.
func TestArbiterProperty_RandomInterleavings(t *testing.T) {
	const (
		seeds      = 50
		steps      = 500
		primaryN   = 9
		secondaryN = 3
	)

	for seed := uint64(0); seed < seeds; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31+7))
		rec := &recordingReleaser{}
		a, err := NewArbiter[string](Config{PrimaryCapacity: primaryN, SecondaryCapacity: secondaryN}, rec, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}

		accepted := make(map[string]bool)
		released := make(map[string]bool)
		next := 0

		for step := 0; step < steps; step++ {
			if rng.IntN(4) == 0 {
				bothFull := a.Group(models.RolePrimary).ReachedCapacity() &&
					a.Group(models.RoleSecondary).ReachedCapacity()
				secondaryBefore := a.Group(models.RoleSecondary).Pending()

				d := a.Arbitrate(context.Background())

				if bothFull {
					if d.Role != models.RolePrimary {
						t.Fatalf("seed %d step %d: both full but released %s", seed, step, d.Role)
					}
					if got := a.Group(models.RoleSecondary).Pending(); fmt.Sprint(got) != fmt.Sprint(secondaryBefore) {
						t.Fatalf("seed %d step %d: secondary queue changed during primary release", seed, step)
					}
				}
				if d.Released {
					want := a.Group(d.Role).Capacity()
					if len(d.Members) != want {
						t.Fatalf("seed %d step %d: released %d members, want %d", seed, step, len(d.Members), want)
					}
					for _, m := range d.Members {
						if !accepted[m] {
							t.Fatalf("seed %d step %d: phantom release of %s", seed, step, m)
						}
						if released[m] {
							t.Fatalf("seed %d step %d: %s released twice", seed, step, m)
						}
						released[m] = true
					}
				}
			} else {
				role := models.RolePrimary
				if rng.IntN(2) == 0 {
					role = models.RoleSecondary
				}
				g := a.Group(role)
				wasFull := g.ReachedCapacity()
				id := fmt.Sprintf("m%d", next)
				next++

				res, _ := a.Join(role, id)
				if wasFull && res != Rejected {
					t.Fatalf("seed %d step %d: join accepted into full %s group", seed, step, role)
				}
				if res == Accepted {
					accepted[id] = true
				}
			}

			for _, role := range models.Roles {
				g := a.Group(role)
				if g.Waiting() > g.Capacity() {
					t.Fatalf("seed %d step %d: %s waiting %d exceeds %d", seed, step, role, g.Waiting(), g.Capacity())
				}
				if g.Waiting() != len(g.Pending()) {
					t.Fatalf("seed %d step %d: %s count %d != queue %d", seed, step, role, g.Waiting(), len(g.Pending()))
				}
			}
		}

		total := 0
		for _, c := range rec.calls {
			total += len(c.members)
		}
		if total != len(released) {
			t.Fatalf("seed %d: releaser saw %d members, decisions reported %d", seed, total, len(released))
		}
	}
}
