package drops

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/models"
	"github.com/sujalbistaa/drops/internal/moderation"
	"github.com/sujalbistaa/drops/internal/testutil"
)

func newService(t *testing.T, cadence time.Duration) (*Service, *gorm.DB) {
	t.Helper()
	gdb := testutil.NewDB(t)
	return &Service{
		DB:      gdb,
		Ledger:  economy.NewLedger(gdb),
		Cadence: lifecycle.NewCadenceGuard(cadence),
		Scanner: moderation.NewKeywordFilter([]string{"slur"}, []string{"hopeless"}),
		Log:     testutil.Logger(),
	}, gdb
}

func draft() Draft {
	return Draft{
		CommunityID: "college-1",
		AuthorID:    "dev-a",
		Content:     "free pizza in the #Union basement, #food too",
	}
}

func TestCreateStoresDropAndPaysReward(t *testing.T) {
	s, gdb := newService(t, 0)
	now := testutil.Epoch

	d, err := s.Create(context.Background(), draft(), now)
	require.NoError(t, err)

	assert.Equal(t, models.StatusLive, d.Status)
	assert.Equal(t, "union", d.Tag)
	assert.NotEmpty(t, d.PublicID)
	assert.Equal(t, models.DefaultUnlockThreshold, d.UnlockThreshold)
	assert.Equal(t, now.Add(lifecycle.Lifespan), d.ExpiresAt)
	assert.Equal(t, d.ExpiresAt.Add(-lifecycle.ActiveWindow), d.ActiveAt)
	assert.EqualValues(t, economy.PostReward, testutil.Coins(t, gdb, "dev-a"))

	got, err := s.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Content, got.Content)
	assert.False(t, got.Poll.Data().Has())
}

func TestCreateWithPoll(t *testing.T) {
	s, _ := newService(t, 0)
	in := draft()
	in.PollOptions = []string{" library ", "quad"}

	d, err := s.Create(context.Background(), in, testutil.Epoch)
	require.NoError(t, err)

	got, err := s.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"library", "quad"}, got.Poll.Data().Options)
}

func TestCreateValidation(t *testing.T) {
	s, gdb := newService(t, 0)

	cases := map[string]func(*Draft){
		"empty content":      func(d *Draft) { d.Content = "   " },
		"too long":           func(d *Draft) { d.Content = strings.Repeat("é", MaxContentRunes+1) },
		"no community":       func(d *Draft) { d.CommunityID = "" },
		"no author":          func(d *Draft) { d.AuthorID = "" },
		"one poll option":    func(d *Draft) { d.PollOptions = []string{"yes"} },
		"seven options":      func(d *Draft) { d.PollOptions = []string{"a", "b", "c", "d", "e", "f", "g"} },
		"blank option":       func(d *Draft) { d.PollOptions = []string{"a", " "} },
		"negative threshold": func(d *Draft) { d.UnlockThreshold = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := draft()
			mutate(&in)
			_, err := s.Create(context.Background(), in, testutil.Epoch)
			require.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}

	in := draft()
	in.Content = strings.Repeat("é", MaxContentRunes)
	_, err := s.Create(context.Background(), in, testutil.Epoch)
	require.NoError(t, err)

	var n int64
	require.NoError(t, gdb.Model(&models.Drop{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCreateModeration(t *testing.T) {
	s, _ := newService(t, 0)
	ctx := context.Background()

	in := draft()
	in.Content = "that guy is a slur"
	flagged, err := s.Create(ctx, in, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, flagged.Status)

	in.Content = "feeling hopeless about finals"
	in.AuthorID = "dev-b"
	crisis, err := s.Create(ctx, in, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, crisis.Status)
	assert.True(t, crisis.CrisisFlag)

	// the tease is public while the drop is locked
	in = draft()
	in.AuthorID = "dev-c"
	in.IsShadow = true
	in.Tease = "you are a slur ____"
	teased, err := s.Create(ctx, in, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, teased.Status)

	in.AuthorID = "dev-d"
	in.PollOptions = []string{"fine", "slur"}
	in.Tease = ""
	polled, err := s.Create(ctx, in, testutil.Epoch)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, polled.Status)
}

func TestCreateCadence(t *testing.T) {
	s, gdb := newService(t, time.Minute)
	ctx := context.Background()

	_, err := s.Create(ctx, draft(), testutil.Epoch)
	require.NoError(t, err)

	_, err = s.Create(ctx, draft(), testutil.Epoch.Add(30*time.Second))
	require.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.EqualValues(t, economy.PostReward, testutil.Coins(t, gdb, "dev-a"))

	_, err = s.Create(ctx, draft(), testutil.Epoch.Add(61*time.Second))
	require.NoError(t, err)
}

func TestRejectIsTerminal(t *testing.T) {
	s, gdb := newService(t, 0)
	ctx := context.Background()
	drop := testutil.SeedDrop(t, gdb, nil)

	require.NoError(t, s.Reject(ctx, drop.ID))
	require.NoError(t, s.Reject(ctx, drop.ID))

	_, err := s.Get(ctx, drop.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.ErrorIs(t, s.Reject(ctx, "missing"), apperr.ErrNotFound)
}

func TestDeleteKeepsPeeksAndLedger(t *testing.T) {
	s, gdb := newService(t, 0)
	ctx := context.Background()
	drop := testutil.SeedDrop(t, gdb, nil)

	require.NoError(t, gdb.Create(&models.Vote{DropID: drop.ID, VoterID: "v", Value: 1}).Error)
	require.NoError(t, gdb.Create(&models.PeekRecord{ViewerID: "v", DropID: drop.ID, WordIndex: models.WholePost, Cost: 100, CreatedAt: testutil.Epoch}).Error)
	require.NoError(t, s.Ledger.Credit(ctx, nil, "v", 5, economy.ReasonGrant, drop.ID))

	require.NoError(t, s.Delete(ctx, drop.ID))
	require.ErrorIs(t, s.Delete(ctx, drop.ID), apperr.ErrNotFound)

	var votes, peeks, entries int64
	require.NoError(t, gdb.Model(&models.Vote{}).Count(&votes).Error)
	require.NoError(t, gdb.Model(&models.PeekRecord{}).Count(&peeks).Error)
	require.NoError(t, gdb.Model(&models.LedgerEntry{}).Count(&entries).Error)
	assert.Zero(t, votes)
	assert.EqualValues(t, 1, peeks)
	assert.EqualValues(t, 1, entries)
}

func TestExtractTag(t *testing.T) {
	assert.Equal(t, "exam_week", ExtractTag("#Exam_Week is here #stress"))
	assert.Equal(t, "", ExtractTag("no tags # here"))
}

func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestStoreFailuresAreTransient(t *testing.T) {
	gdb, mock := mockDB(t)
	s := &Service{DB: gdb, Ledger: economy.NewLedger(gdb), Log: testutil.Logger()}
	ctx := context.Background()

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection reset by peer"))
	_, err := s.Get(ctx, "some-id")
	require.ErrorIs(t, err, apperr.ErrTransient)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "drops"`).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()
	_, err = s.Create(ctx, draft(), testutil.Epoch)
	require.ErrorIs(t, err, apperr.ErrTransient)
}

func TestFailedCreateKeepsCadenceSlot(t *testing.T) {
	gdb, mock := mockDB(t)
	s := &Service{
		DB:      gdb,
		Ledger:  economy.NewLedger(gdb),
		Cadence: lifecycle.NewCadenceGuard(30 * time.Second),
		Log:     testutil.Logger(),
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "drops"`).WillReturnError(errors.New("connection reset by peer"))
		mock.ExpectRollback()
	}

	_, err := s.Create(ctx, draft(), testutil.Epoch)
	require.ErrorIs(t, err, apperr.ErrTransient)

	_, err = s.Create(ctx, draft(), testutil.Epoch.Add(time.Second))
	require.ErrorIs(t, err, apperr.ErrTransient)
	assert.NotErrorIs(t, err, apperr.ErrRateLimited)
}
