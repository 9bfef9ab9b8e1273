package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sujalbistaa/drops/internal/apperr"
)

// CadenceGuard enforces a minimum interval between Drops of one author.
type CadenceGuard struct {
	mu       sync.Mutex
	authors  map[string]*rate.Limiter
	interval time.Duration
}

// NewCadenceGuard returns a guard allowing one Drop per interval. A zero
// interval disables the check.
func NewCadenceGuard(interval time.Duration) *CadenceGuard {
	return &CadenceGuard{
		authors:  make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Allow consumes the author's slot or returns ErrRateLimited.
func (g *CadenceGuard) Allow(author string, now time.Time) error {
	_, err := g.Reserve(author, now)
	return err
}

// Reserve takes the author's slot like Allow. Calling release hands the slot
// back, for a Drop that was never stored.
func (g *CadenceGuard) Reserve(author string, now time.Time) (release func(), err error) {
	if g == nil || g.interval <= 0 {
		return func() {}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.authors[author]
	if !ok {
		lim = rate.NewLimiter(rate.Every(g.interval), 1)
		g.authors[author] = lim
	}
	r := lim.ReserveN(now, 1)
	if wait := r.DelayFrom(now); !r.OK() || wait > 0 {
		r.CancelAt(now)
		return nil, fmt.Errorf("%w: next drop allowed in %s", apperr.ErrRateLimited, wait.Round(time.Second))
	}
	return func() { r.CancelAt(now) }, nil
}

// Sweep forgets authors whose slot has fully refilled.
func (g *CadenceGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for author, lim := range g.authors {
		if lim.TokensAt(now) >= 1 {
			delete(g.authors, author)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (g *CadenceGuard) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.Sweep(now)
		}
	}
}
