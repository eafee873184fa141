package endpoint

import (
	"context"
	"strings"
	"sync"

	"quorumgate/pkg/models"
)

// Mux is a Replier that routes each address to the transport owning its
// prefix, so one endpoint can serve several transports at once.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]Replier
	fallback Replier
}

var _ Replier = (*Mux)(nil)

// NewMux routes unmatched addresses to fallback.
func NewMux(fallback Replier) *Mux {
	return &Mux{routes: make(map[string]Replier), fallback: fallback}
}

// Handle routes addresses starting with prefix to r. The longest prefix wins.
func (m *Mux) Handle(prefix string, r Replier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[prefix] = r
}

func (m *Mux) Reply(ctx context.Context, addr string, status models.Status) error {
	return m.lookup(addr).Reply(ctx, addr, status)
}

func (m *Mux) Reject(ctx context.Context, addr string, err error) error {
	return m.lookup(addr).Reject(ctx, addr, err)
}

func (m *Mux) lookup(addr string) Replier {
	m.mu.RLock()
	defer m.mu.RUnlock()

	best, match := "", m.fallback
	for prefix, r := range m.routes {
		if strings.HasPrefix(addr, prefix) && len(prefix) > len(best) {
			best, match = prefix, r
		}
	}
	return match
}
