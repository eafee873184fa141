package api

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
)

// ErrUnknownAddress is returned when replying to an address whose request is gone.
var ErrUnknownAddress = errors.New("unknown reply address")

// Reply is what a parked ready request receives: a release status or a rejection.
type Reply struct {
	Status models.Status
	Err    error
}

// Mailboxes maps reply addresses to parked HTTP requests. It is the endpoint's
// Replier for the HTTP transport. Every mailbox holds one reply and is removed
// on delivery, so a reply never blocks, even if its request has already gone.
type Mailboxes struct {
	mu    sync.Mutex
	boxes map[string]chan Reply
}

var _ endpoint.Replier = (*Mailboxes)(nil)

func NewMailboxes() *Mailboxes {
	return &Mailboxes{boxes: make(map[string]chan Reply)}
}

// Open allocates a fresh address and the channel its reply will arrive on.
func (m *Mailboxes) Open() (string, <-chan Reply) {
	addr := uuid.NewString()
	ch := make(chan Reply, 1)

	m.mu.Lock()
	m.boxes[addr] = ch
	m.mu.Unlock()

	return addr, ch
}

// Close forgets addr. Later replies to it fail with ErrUnknownAddress.
func (m *Mailboxes) Close(addr string) {
	m.mu.Lock()
	delete(m.boxes, addr)
	m.mu.Unlock()
}

// Len returns the number of open mailboxes.
func (m *Mailboxes) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boxes)
}

func (m *Mailboxes) Reply(_ context.Context, addr string, status models.Status) error {
	return m.deliver(addr, Reply{Status: status})
}

func (m *Mailboxes) Reject(_ context.Context, addr string, err error) error {
	return m.deliver(addr, Reply{Err: err})
}

func (m *Mailboxes) deliver(addr string, r Reply) error {
	m.mu.Lock()
	ch, ok := m.boxes[addr]
	delete(m.boxes, addr)
	m.mu.Unlock()

	if !ok {
		return ErrUnknownAddress
	}
	ch <- r
	return nil
}
