package api_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "quorumgate/pkg/api"
	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
)

func TestMailboxes_DeliverOnce(t *testing.T) {
	mb := NewMailboxes()
	addr, ch := mb.Open()
	require.Equal(t, 1, mb.Len())

	require.NoError(t, mb.Reply(context.Background(), addr, models.StatusPrimaryReleased))
	assert.Equal(t, Reply{Status: models.StatusPrimaryReleased}, <-ch)
	assert.Zero(t, mb.Len())

	err := mb.Reply(context.Background(), addr, models.StatusPrimaryReleased)
	assert.ErrorIs(t, err, ErrUnknownAddress)
}

func TestMailboxes_ClosedAddressDoesNotBlock(t *testing.T) {
	mb := NewMailboxes()
	addr, _ := mb.Open()
	mb.Close(addr)

	err := mb.Reject(context.Background(), addr, endpoint.ErrLateArrival)
	assert.True(t, errors.Is(err, ErrUnknownAddress))
}

func TestMailboxes_UniqueAddresses(t *testing.T) {
	mb := NewMailboxes()
	a, _ := mb.Open()
	b, _ := mb.Open()
	assert.NotEqual(t, a, b)
}
