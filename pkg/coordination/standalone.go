package coordination

import (
	"context"
	"errors"
	"sync"
)

// ErrNoLeader is returned by Leader when nobody holds the election.
var ErrNoLeader = errors.New("no leader elected")

// Standalone is the single-instance Coordinator used when no etcd cluster is
// configured: every campaign wins at once and the session never ends.
type Standalone struct {
	mu        sync.Mutex
	elections map[string]*localElection
	done      chan struct{}
	closeOnce sync.Once
}

var _ Coordinator = (*Standalone)(nil)

func NewStandalone() *Standalone {
	return &Standalone{
		elections: make(map[string]*localElection),
		done:      make(chan struct{}),
	}
}

func (s *Standalone) NewElection(name string) Election {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[name]
	if !ok {
		e = &localElection{}
		s.elections[name] = e
	}
	return e
}

func (s *Standalone) Done() <-chan struct{} { return s.done }

func (s *Standalone) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

type localElection struct {
	mu     sync.Mutex
	leader string
}

func (e *localElection) Campaign(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.leader = value
	e.mu.Unlock()
	return nil
}

func (e *localElection) Resign(context.Context) error {
	e.mu.Lock()
	e.leader = ""
	e.mu.Unlock()
	return nil
}

func (e *localElection) Leader(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.leader == "" {
		return "", ErrNoLeader
	}
	return e.leader, nil
}
