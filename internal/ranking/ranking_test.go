package ranking

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/models"
	"github.com/sujalbistaa/drops/internal/testutil"
)

var now = time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

func drop(id string, up, down int, age time.Duration) models.Drop {
	return models.Drop{ID: id, Upvotes: up, Downvotes: down, CreatedAt: now.Add(-age)}
}

func ids(ds []models.Drop) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestHotScoreFormula(t *testing.T) {
	d := drop("a", 7, 2, 3*time.Hour)
	want := 10 / math.Pow(5, 1.3)
	assert.InDelta(t, want, HotScore(&d, now), 1e-12)

	fresh := drop("b", 1, 0, 0)
	assert.InDelta(t, 2/math.Pow(2, 1.3), HotScore(&fresh, now), 1e-12)

	future := drop("c", 1, 0, -time.Hour)
	assert.Equal(t, HotScore(&fresh, now), HotScore(&future, now), "negative age is clamped")
}

func TestHotScoreMonotonicity(t *testing.T) {
	for _, age := range []time.Duration{0, 30 * time.Minute, 5 * time.Hour, 23 * time.Hour} {
		lo := drop("lo", 3, 1, age)
		hi := drop("hi", 4, 1, age)
		assert.Greater(t, HotScore(&hi, now), HotScore(&lo, now))
	}
	for _, net := range []int{1, 4, 50} {
		older := drop("old", net, 0, 6*time.Hour)
		newer := drop("new", net, 0, 2*time.Hour)
		assert.Greater(t, HotScore(&newer, now), HotScore(&older, now))
	}
}

func TestRankFeedComposition(t *testing.T) {
	var in []models.Drop
	// d0 is newest; d9 oldest. Votes rise with age so hot and new disagree.
	for i := 0; i < 10; i++ {
		in = append(in, drop(fmt.Sprintf("d%d", i), i*3, 0, time.Duration(i)*time.Hour))
	}

	lanes := RankFeed(in, DefaultMix, now)
	require.Len(t, lanes.Hot, 4)
	require.Len(t, lanes.New, 6)
	require.Len(t, lanes.Feed, 10)

	for i := 1; i < len(lanes.Hot); i++ {
		assert.GreaterOrEqual(t, HotScore(&lanes.Hot[i-1], now), HotScore(&lanes.Hot[i], now))
	}
	for i := 1; i < len(lanes.New); i++ {
		assert.False(t, lanes.New[i].CreatedAt.After(lanes.New[i-1].CreatedAt))
	}

	want := append([]string{}, ids(lanes.Hot[:3])...)
	want = append(want, ids(lanes.New)...)
	want = append(want, ids(lanes.Hot[3:])...)
	assert.Equal(t, want, ids(lanes.Feed))
}

func TestRankFeedLanesDisjointAndComplete(t *testing.T) {
	var in []models.Drop
	for i := 0; i < 17; i++ {
		in = append(in, drop(fmt.Sprintf("d%d", i), (i*7)%5, i%2, time.Duration(i*37)*time.Minute))
	}
	for _, ratio := range []float64{0.1, 0.4, 0.5, 0.9} {
		lanes := RankFeed(in, Mix{HotRatio: ratio, Hook: 3}, now)

		seen := map[string]int{}
		for _, d := range lanes.Hot {
			seen[d.ID]++
		}
		for _, d := range lanes.New {
			seen[d.ID]++
		}
		assert.Len(t, seen, len(in), "ratio %v", ratio)
		for id, n := range seen {
			assert.Equal(t, 1, n, "drop %s in both lanes at ratio %v", id, ratio)
		}
		assert.Len(t, lanes.Hot, int(math.Floor(float64(len(in))*ratio)))
		assert.ElementsMatch(t, ids(in), ids(lanes.Feed))
	}
}

func TestRankFeedSmallInputs(t *testing.T) {
	lanes := RankFeed(nil, DefaultMix, now)
	assert.Empty(t, lanes.Feed)

	one := []models.Drop{drop("only", 5, 0, time.Hour)}
	lanes = RankFeed(one, DefaultMix, now)
	assert.Empty(t, lanes.Hot)
	assert.Equal(t, []string{"only"}, ids(lanes.Feed))

	// fewer hot Drops than the hook
	var five []models.Drop
	for i := 0; i < 5; i++ {
		five = append(five, drop(fmt.Sprintf("d%d", i), 5-i, 0, time.Duration(i)*time.Hour))
	}
	lanes = RankFeed(five, DefaultMix, now)
	require.Len(t, lanes.Hot, 2)
	assert.Equal(t, ids(lanes.Hot), ids(lanes.Feed[:2]))
}

func TestFeedBuildFiltersCandidates(t *testing.T) {
	gdb := testutil.NewDB(t)
	at := testutil.Epoch.Add(time.Hour)

	keep := testutil.SeedDrop(t, gdb, nil)
	testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.CommunityID = "college-2" })
	testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.Status = models.StatusFlagged })
	testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.IsOpen = true })
	testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.CreatedAt = testutil.Epoch.Add(-30 * time.Hour) })

	f := &Feed{DB: gdb}
	lanes, err := f.Build(context.Background(), Query{CommunityID: "college-1"}, at)
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, ids(lanes.Feed))

	lanes, err = f.Build(context.Background(), Query{CommunityID: "college-1", Open: true}, at)
	require.NoError(t, err)
	assert.Len(t, lanes.Feed, 1)

	_, err = f.Build(context.Background(), Query{}, at)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestFeedLimitKeepsOldHotDrops(t *testing.T) {
	gdb := testutil.NewDB(t)
	at := testutil.Epoch.Add(3 * time.Hour)

	hot := testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.Upvotes = 50 })
	for i := 1; i <= 12; i++ {
		offset := time.Duration(i) * time.Minute
		testutil.SeedDrop(t, gdb, func(d *models.Drop) { d.CreatedAt = testutil.Epoch.Add(offset) })
	}

	f := &Feed{DB: gdb, Mix: DefaultMix}
	lanes, err := f.Build(context.Background(), Query{CommunityID: "college-1", Limit: 5}, at)
	require.NoError(t, err)

	require.Len(t, lanes.Feed, 5)
	assert.Equal(t, hot.ID, lanes.Feed[0].ID)
	assert.Len(t, append(lanes.Hot, lanes.New...), 13)
}
