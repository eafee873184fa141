// Package gate implements the counting gate: callers enter and block on a ticket,
// and a single Release call wakes a known number of them together.
package gate

import (
	"context"
	"sync"
)

// Ticket is handed to a caller when it enters the gate. It is released at most once.
type Ticket struct {
	ch <-chan struct{}
}

// Wait blocks until the ticket is released or ctx is done. A ticket that was
// released by the time ctx ends still reports success.
func (t Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ch:
		return nil
	case <-ctx.Done():
		if t.Released() {
			return nil
		}
		return ctx.Err()
	}
}

// Released reports whether the ticket has been released, without blocking.
func (t Ticket) Released() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Gate hands out tickets in arrival order and releases them from the front.
// A ticket entered after a Release call can never be woken by that call.
type Gate struct {
	mu      sync.Mutex
	pending []chan struct{}
}

func New() *Gate {
	return &Gate{}
}

// Enter registers a new waiter and returns its ticket.
func (g *Gate) Enter() Ticket {
	ch := make(chan struct{})

	g.mu.Lock()
	g.pending = append(g.pending, ch)
	g.mu.Unlock()

	return Ticket{ch: ch}
}

// Release wakes the n oldest waiters, or all of them if fewer are waiting,
// and returns how many were woken.
func (g *Gate) Release(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n > len(g.pending) {
		n = len(g.pending)
	}
	if n <= 0 {
		return 0
	}

	for _, ch := range g.pending[:n] {
		close(ch)
	}
	// Drop references so released channels are collectable.
	rest := make([]chan struct{}, len(g.pending)-n)
	copy(rest, g.pending[n:])
	g.pending = rest

	return n
}

// Waiting returns the number of entered, unreleased tickets.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
