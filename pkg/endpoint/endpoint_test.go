package endpoint_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	. "quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
	"quorumgate/pkg/quorum"
)

type reply struct {
	addr   string
	status models.Status
	err    error
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []reply
	dead    map[string]bool
}

func newFakeReplier(dead ...string) *fakeReplier {
	r := &fakeReplier{dead: make(map[string]bool)}
	for _, d := range dead {
		r.dead[d] = true
	}
	return r
}

func (r *fakeReplier) Reply(_ context.Context, addr string, status models.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead[addr] {
		return errors.New("connection reset")
	}
	r.replies = append(r.replies, reply{addr: addr, status: status})
	return nil
}

func (r *fakeReplier) Reject(_ context.Context, addr string, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply{addr: addr, err: err})
	return nil
}

func (r *fakeReplier) get() []reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reply(nil), r.replies...)
}

func (r *fakeReplier) waitFor(t *testing.T, n int) []reply {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.get()) >= n }, 2*time.Second, time.Millisecond)
	return r.get()
}

func newEndpoint(t *testing.T, r Replier) *Endpoint {
	t.Helper()
	e, err := NewEndpoint(DefaultConfig(), r, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func run(t *testing.T, e *Endpoint) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

func submit(t *testing.T, e *Endpoint, tag models.Tag, prefix string, n int) []string {
	t.Helper()
	var addrs []string
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("%s-%d", prefix, i)
		require.NoError(t, e.Submit(context.Background(), Message{Sender: addr, Tag: string(tag)}))
		addrs = append(addrs, addr)
	}
	return addrs
}

func TestNewEndpoint_RequiresReplier(t *testing.T) {
	_, err := NewEndpoint(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestEndpoint_PrimaryQuorumRepliesInArrivalOrder(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	addrs := submit(t, e, models.TagPrimaryReady, "p", 9)

	got := r.waitFor(t, 9)
	require.Len(t, got, 9)
	for i, rep := range got {
		assert.Equal(t, addrs[i], rep.addr)
		assert.Equal(t, models.StatusPrimaryReleased, rep.status)
	}
}

func TestEndpoint_SecondaryQuorum(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	submit(t, e, models.TagPrimaryReady, "p", 5)
	submit(t, e, models.TagSecondaryReady, "s", 3)

	got := r.waitFor(t, 3)
	for _, rep := range got {
		assert.Equal(t, models.StatusSecondaryReleased, rep.status)
	}

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Primary.Waiting)
	assert.Zero(t, snap.Secondary.Waiting)
}

func TestEndpoint_BurstArbitratesPrimaryFirst(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)

	// Queue both complete quorums before the loop starts, secondary first.
	secondaries := submit(t, e, models.TagSecondaryReady, "s", 3)
	primaries := submit(t, e, models.TagPrimaryReady, "p", 9)

	stop := run(t, e)
	defer stop()

	got := r.waitFor(t, 12)
	for i, rep := range got[:9] {
		assert.Equal(t, primaries[i], rep.addr)
		assert.Equal(t, models.StatusPrimaryReleased, rep.status)
	}
	for i, rep := range got[9:] {
		assert.Equal(t, secondaries[i], rep.addr)
		assert.Equal(t, models.StatusSecondaryReleased, rep.status)
	}
}

func TestEndpoint_LateArrivalRejectedNotQueued(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)

	submit(t, e, models.TagSecondaryReady, "s", 4)

	stop := run(t, e)
	defer stop()

	got := r.waitFor(t, 4)
	require.Len(t, got, 4)
	assert.Equal(t, "s-3", got[0].addr)
	assert.ErrorIs(t, got[0].err, ErrLateArrival)

	released := 0
	for _, rep := range got[1:] {
		assert.NoError(t, rep.err)
		assert.NotEqual(t, "s-3", rep.addr)
		released++
	}
	assert.Equal(t, 3, released)
}

func TestEndpoint_UnknownTagIsDiscarded(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	require.NoError(t, e.Submit(context.Background(), Message{Sender: "x", Tag: "GARBAGE"}))
	submit(t, e, models.TagSecondaryReady, "s", 3)

	got := r.waitFor(t, 4)
	assert.Equal(t, "x", got[0].addr)
	assert.ErrorIs(t, got[0].err, ErrUnknownTag)
	for _, rep := range got[1:] {
		assert.Equal(t, models.StatusSecondaryReleased, rep.status)
	}
}

func TestEndpoint_StaleAddressDoesNotBlockRound(t *testing.T) {
	r := newFakeReplier("s-1")
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	submit(t, e, models.TagSecondaryReady, "s", 3)

	got := r.waitFor(t, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "s-0", got[0].addr)
	assert.Equal(t, "s-2", got[1].addr)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Secondary.Waiting)
}

func TestEndpoint_Drain(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	submit(t, e, models.TagPrimaryReady, "p", 4)

	drained, err := e.Drain(context.Background(), models.RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-0", "p-1", "p-2", "p-3"}, drained)

	got := r.waitFor(t, 4)
	for _, rep := range got {
		assert.Equal(t, models.StatusPrimaryReleased, rep.status)
	}

	_, err = e.Drain(context.Background(), models.Role("BOGUS"))
	assert.Error(t, err)
}

func TestEndpoint_StoppedRejectsSubmissions(t *testing.T) {
	e := newEndpoint(t, newFakeReplier())
	stop := run(t, e)
	stop()

	err := e.Submit(context.Background(), Message{Sender: "p", Tag: string(models.TagPrimaryReady)})
	assert.ErrorIs(t, err, ErrStopped)

	_, err = e.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEndpoint_DuplicateSenderRejected(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)
	stop := run(t, e)
	defer stop()

	submit(t, e, models.TagPrimaryReady, "p", 1)
	submit(t, e, models.TagPrimaryReady, "p", 1)

	got := r.waitFor(t, 1)
	assert.ErrorIs(t, got[0].err, ErrLateArrival)

	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Primary.Waiting)
	assert.Equal(t, quorum.DefaultConfig().PrimaryCapacity, snap.Primary.Capacity)
}

func TestEndpoint_MaxBatchOneQueuesNextQuorum(t *testing.T) {
	r := newFakeReplier()
	cfg := DefaultConfig()
	cfg.MaxBatch = 1
	e, err := NewEndpoint(cfg, r, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Queued before Run: with a batch of one the fourth secondary starts the
	// next quorum instead of arriving late.
	submit(t, e, models.TagSecondaryReady, "s", 4)

	stop := run(t, e)
	defer stop()

	got := r.waitFor(t, 3)
	for _, rep := range got {
		assert.NoError(t, rep.err)
		assert.Equal(t, models.StatusSecondaryReleased, rep.status)
	}
	require.Eventually(t, func() bool {
		snap, err := e.Snapshot(context.Background())
		return err == nil && snap.Secondary.Waiting == 1
	}, time.Second, time.Millisecond)
	assert.Len(t, r.get(), 3)
}

func TestEndpoint_BothQuorumsGetOneRoundEach(t *testing.T) {
	r := newFakeReplier()
	e := newEndpoint(t, r)

	submit(t, e, models.TagSecondaryReady, "s", 3)
	submit(t, e, models.TagPrimaryReady, "p", 9)

	stop := run(t, e)
	defer stop()

	r.waitFor(t, 12)
	snap, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Rounds)
}
