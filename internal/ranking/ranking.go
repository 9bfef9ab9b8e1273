// Package ranking scores Drops with a time-decayed engagement score and
// mixes a hot lane with a chronological lane.
package ranking

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/sujalbistaa/drops/internal/models"
)

const (
	// agePad keeps brand-new Drops away from a near-zero denominator.
	agePad = 2.0
	// gravity is gentler than classic front-page decay so engaging older
	// Drops stay visible longer.
	gravity = 1.3
	// voteWeight multiplies net votes. Comments will get their own weight.
	voteWeight = 2.0
)

// Mix is the feed composition policy.
type Mix struct {
	// HotRatio is the share of candidates placed in the hot lane.
	HotRatio float64
	// Hook is how many hot Drops lead the feed before the new lane.
	Hook int
}

var DefaultMix = Mix{HotRatio: 0.4, Hook: 3}

// Lanes is a ranked feed and the two lanes it was built from.
type Lanes struct {
	Hot  []models.Drop
	New  []models.Drop
	Feed []models.Drop
}

// HotScore is net votes over (age in hours + 2) ^ 1.3.
func HotScore(d *models.Drop, now time.Time) float64 {
	interactions := float64(d.Net()) * voteWeight
	ageHours := now.Sub(d.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return interactions / math.Pow(ageHours+agePad, gravity)
}

// RankFeed splits drops into a hot lane of floor(n*HotRatio) top scorers
// and a new lane of the rest by creation time, then delivers Hook hot
// Drops, the whole new lane and the hot remainder.
func RankFeed(drops []models.Drop, mix Mix, now time.Time) Lanes {
	if mix.HotRatio < 0 {
		mix.HotRatio = 0
	}
	if mix.HotRatio > 1 {
		mix.HotRatio = 1
	}
	if mix.Hook < 0 {
		mix.Hook = 0
	}

	type scored struct {
		drop  models.Drop
		score float64
	}
	byHot := make([]scored, len(drops))
	for i := range drops {
		byHot[i] = scored{drop: drops[i], score: HotScore(&drops[i], now)}
	}
	slices.SortStableFunc(byHot, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return b.drop.CreatedAt.Compare(a.drop.CreatedAt)
	})

	hotCount := int(math.Floor(float64(len(drops)) * mix.HotRatio))
	hot := make([]models.Drop, 0, hotCount)
	inHot := make(map[string]struct{}, hotCount)
	for _, s := range byHot[:hotCount] {
		hot = append(hot, s.drop)
		inHot[s.drop.ID] = struct{}{}
	}

	byNew := slices.Clone(drops)
	slices.SortStableFunc(byNew, func(a, b models.Drop) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	fresh := make([]models.Drop, 0, len(drops)-hotCount)
	for _, d := range byNew {
		if _, ok := inHot[d.ID]; !ok {
			fresh = append(fresh, d)
		}
	}

	hook := min(mix.Hook, len(hot))
	feed := make([]models.Drop, 0, len(drops))
	feed = append(feed, hot[:hook]...)
	feed = append(feed, fresh...)
	feed = append(feed, hot[hook:]...)

	return Lanes{Hot: hot, New: fresh, Feed: feed}
}
