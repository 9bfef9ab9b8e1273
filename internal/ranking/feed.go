package ranking

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/models"
)

// Query selects the candidate partition of a feed.
type Query struct {
	CommunityID string
	// Open selects identity-revealing Drops; false selects anonymous ones.
	Open bool
	// Limit caps the delivered feed, not the ranked candidate set.
	Limit int
}

// Feed loads eligible candidates and ranks them.
type Feed struct {
	DB  *gorm.DB
	Mix Mix
}

// Candidates returns every LIVE, unexpired Drop in the requested partition.
// The lifespan bounds the set.
func (f *Feed) Candidates(ctx context.Context, q Query, now time.Time) ([]models.Drop, error) {
	q.CommunityID = strings.TrimSpace(q.CommunityID)
	if q.CommunityID == "" {
		return nil, apperr.Invalid("community id is required")
	}
	var out []models.Drop
	err := f.DB.WithContext(ctx).
		Where("community_id = ? AND status = ? AND expires_at > ? AND is_open = ?",
			q.CommunityID, models.StatusLive, now, q.Open).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Wrap("list candidates", err)
	}
	return out, nil
}

// Build returns the ranked feed for q at now.
func (f *Feed) Build(ctx context.Context, q Query, now time.Time) (Lanes, error) {
	start := time.Now()
	drops, err := f.Candidates(ctx, q, now)
	if err != nil {
		return Lanes{}, err
	}
	mix := f.Mix
	if mix == (Mix{}) {
		mix = DefaultMix
	}
	lanes := RankFeed(drops, mix, now)
	if q.Limit > 0 && len(lanes.Feed) > q.Limit {
		lanes.Feed = lanes.Feed[:q.Limit]
	}
	metrics.FeedBuilt(time.Since(start))
	return lanes, nil
}
