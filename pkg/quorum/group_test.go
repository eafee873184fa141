package quorum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorumgate/pkg/models"
	. "quorumgate/pkg/quorum"
)

func TestNewGroup_RejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -1} {
		_, err := NewGroup[string](models.RolePrimary, c)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestGroup_JoinUntilFull(t *testing.T) {
	g, err := NewGroup[string](models.RoleSecondary, 3)
	require.NoError(t, err)

	for i, id := range []string{"a", "b", "c"} {
		assert.False(t, g.ReachedCapacity(), "before join %d", i)
		assert.Equal(t, Accepted, g.Join(id))
		assert.Equal(t, i+1, g.Waiting())
	}
	assert.True(t, g.ReachedCapacity())
	assert.Equal(t, []string{"a", "b", "c"}, g.Pending())
}

func TestGroup_LateArrivalRejectedWithoutCounting(t *testing.T) {
	g, _ := NewGroup[string](models.RoleSecondary, 3)
	g.Join("a")
	g.Join("b")
	g.Join("c")

	assert.Equal(t, Rejected, g.Join("d"))
	assert.Equal(t, 3, g.Waiting())
	assert.Equal(t, []string{"a", "b", "c"}, g.Pending())
}

func TestGroup_DuplicateIdentityRejected(t *testing.T) {
	g, _ := NewGroup[string](models.RolePrimary, 9)
	require.Equal(t, Accepted, g.Join("a"))

	assert.Equal(t, Rejected, g.Join("a"))
	assert.Equal(t, 1, g.Waiting())
}

func TestGroup_ReleaseAllRequiresQuorum(t *testing.T) {
	g, _ := NewGroup[string](models.RoleSecondary, 2)
	g.Join("a")

	members, err := g.ReleaseAll()
	assert.ErrorIs(t, err, ErrBelowCapacity)
	assert.Nil(t, members)
	assert.Equal(t, 1, g.Waiting())

	g.Join("b")
	members, err = g.ReleaseAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)
	assert.Equal(t, 0, g.Waiting())
	assert.Empty(t, g.Pending())
}

func TestGroup_DrainBelowCapacity(t *testing.T) {
	g, _ := NewGroup[string](models.RolePrimary, 9)
	g.Join("a")
	g.Join("b")

	assert.Equal(t, []string{"a", "b"}, g.Drain())
	assert.Equal(t, 0, g.Waiting())
	assert.Equal(t, Accepted, g.Join("a"))
}

func TestGroup_PendingIsACopy(t *testing.T) {
	g, _ := NewGroup[string](models.RolePrimary, 2)
	g.Join("a")

	p := g.Pending()
	p[0] = "mutated"

	assert.Equal(t, []string{"a"}, g.Pending())
}
