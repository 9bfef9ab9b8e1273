// Package presence counts who is viewing or typing on a subject (a Drop or
// a community) from short-lived heartbeats.
//
// Presence is a soft signal: nothing is persisted and a restart forgets it.
// An identity drops out of the counts once TTL passes without a heartbeat.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sujalbistaa/drops/internal/metrics"
)

const DefaultTTL = 60 * time.Second

// Counts is the live presence of one subject.
type Counts struct {
	Viewers int `json:"viewers"`
	Typers  int `json:"typers"`
}

// Tracker is implemented by the in-process and the Redis backends.
type Tracker interface {
	Heartbeat(ctx context.Context, subject, identity string, typing bool, now time.Time) error
	Counts(ctx context.Context, subject string, now time.Time) (Counts, error)
}

type entry struct {
	seen   time.Time
	typing bool
}

// MemoryTracker keeps presence in a mutex-guarded map. Stale entries are
// pruned on the next heartbeat for their subject and by Run.
type MemoryTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	subjects map[string]map[string]entry
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:      ttl,
		subjects: make(map[string]map[string]entry),
	}
}

func (m *MemoryTracker) Heartbeat(_ context.Context, subject, identity string, typing bool, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subjects[subject]
	if !ok {
		set = make(map[string]entry)
		m.subjects[subject] = set
	}
	m.pruneLocked(set, now)
	set[identity] = entry{seen: now, typing: typing}
	return nil
}

func (m *MemoryTracker) Counts(_ context.Context, subject string, now time.Time) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, e := range m.subjects[subject] {
		if now.Sub(e.seen) >= m.ttl {
			continue
		}
		c.Viewers++
		if e.typing {
			c.Typers++
		}
	}
	return c, nil
}

// Sweep prunes every subject and drops empty ones. It returns the number of
// subjects left.
func (m *MemoryTracker) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for subject, set := range m.subjects {
		m.pruneLocked(set, now)
		if len(set) == 0 {
			delete(m.subjects, subject)
		}
	}
	return len(m.subjects)
}

// Run sweeps every interval until ctx is done.
func (m *MemoryTracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.PresenceSubjects(m.Sweep(now))
		}
	}
}

func (m *MemoryTracker) pruneLocked(set map[string]entry, now time.Time) {
	for id, e := range set {
		if now.Sub(e.seen) >= m.ttl {
			delete(set, id)
		}
	}
}
