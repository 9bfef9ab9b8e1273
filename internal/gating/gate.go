// Package gating decides who may read a shadow Drop.
//
// A shadow Drop is readable by everyone once its upvotes reach the unlock
// threshold. Before that a viewer can buy a private reveal of the whole post
// or of single words from its tease rendering. A reveal is charged at most
// once per (viewer, drop, word): the peek record is inserted first under a
// unique index, and the debit, the author's share and the record commit or
// roll back together.
package gating

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/db"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/models"
)

type Gate struct {
	DB     *gorm.DB
	Ledger *economy.Ledger
	Log    logrus.FieldLogger
}

// View is a Drop as one viewer may see it.
type View struct {
	Drop      models.Drop     `json:"drop"`
	Locked    bool            `json:"locked"`
	Peeked    bool            `json:"peeked"`
	Tease     string          `json:"tease,omitempty"`
	Revealed  map[int]string  `json:"revealed,omitempty"`
	State     lifecycle.State `json:"state"`
	Countdown string          `json:"countdown"`
	Posted    string          `json:"posted"`
}

// PeekResult is the outcome of a whole-post or per-word peek.
type PeekResult struct {
	DropID string `json:"id"`
	// WordIndex is nil for a whole-post peek.
	WordIndex *int   `json:"wordIndex,omitempty"`
	Word      string `json:"word,omitempty"`
	Content   string `json:"content,omitempty"`
	Already   bool   `json:"already"`
	Charged   int64  `json:"charged"`
}

// View returns dropID as viewerID sees it at now.
func (g *Gate) View(ctx context.Context, dropID, viewerID string, now time.Time) (View, error) {
	var drop models.Drop
	err := g.DB.WithContext(ctx).
		Where("id = ? AND status <> ?", dropID, models.StatusRejected).
		First(&drop).Error
	if err != nil {
		return View{}, apperr.Wrap("view drop", err)
	}

	v := View{
		Drop:      drop,
		State:     lifecycle.StateAt(now, drop.ActiveAt, drop.ExpiresAt),
		Countdown: lifecycle.Countdown(now, drop.ExpiresAt),
		Posted:    lifecycle.Ago(now, drop.CreatedAt),
	}
	if !drop.Locked() {
		return v, nil
	}

	var peeks []models.PeekRecord
	if viewerID != "" {
		if err := g.DB.WithContext(ctx).
			Where("viewer_id = ? AND drop_id = ?", viewerID, dropID).
			Find(&peeks).Error; err != nil {
			return View{}, apperr.Wrap("view drop peeks", err)
		}
	}
	for _, p := range peeks {
		if p.WordIndex == models.WholePost {
			v.Peeked = true
			return v, nil
		}
	}

	v.Locked = true
	v.Drop.Content = ""
	v.Tease = drop.Tease
	if len(peeks) > 0 {
		v.Revealed = make(map[int]string, len(peeks))
		for _, p := range peeks {
			v.Revealed[p.WordIndex] = wordAt(drop.Content, p.WordIndex)
		}
	}
	return v, nil
}

// Peek buys viewerID a whole-post reveal of dropID.
func (g *Gate) Peek(ctx context.Context, dropID, viewerID string) (PeekResult, error) {
	if err := validIDs(dropID, viewerID); err != nil {
		return PeekResult{}, err
	}

	res := PeekResult{DropID: dropID}
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		drop, err := lockShadow(tx, dropID)
		if err != nil {
			return err
		}
		res.Content = drop.Content
		if !drop.Locked() {
			res.Already = true
			return nil
		}
		return g.charge(ctx, tx, drop, viewerID, models.WholePost, &res)
	})
	if err != nil {
		metrics.Peek("post", outcome(err))
		return PeekResult{}, apperr.Wrap("peek", err)
	}
	metrics.Peek("post", resultOutcome(res))
	return res, nil
}

// PeekWord buys viewerID the word at index of dropID's content. The Drop
// must carry a tease rendering. An index past the last word reveals "".
func (g *Gate) PeekWord(ctx context.Context, dropID, viewerID string, index int) (PeekResult, error) {
	if err := validIDs(dropID, viewerID); err != nil {
		return PeekResult{}, err
	}
	if index < 0 {
		return PeekResult{}, apperr.Invalid("word index %d", index)
	}

	res := PeekResult{DropID: dropID, WordIndex: &index}
	err := g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		drop, err := lockShadow(tx, dropID)
		if err != nil {
			return err
		}
		if drop.Tease == "" {
			return apperr.Invalid("drop %s has no tease rendering", dropID)
		}
		res.Word = wordAt(drop.Content, index)
		if !drop.Locked() {
			res.Already = true
			return nil
		}

		var whole int64
		if err := tx.Model(&models.PeekRecord{}).
			Where("viewer_id = ? AND drop_id = ? AND word_index = ?", viewerID, dropID, models.WholePost).
			Count(&whole).Error; err != nil {
			return err
		}
		if whole > 0 {
			res.Already = true
			return nil
		}
		return g.charge(ctx, tx, drop, viewerID, index, &res)
	})
	if err != nil {
		metrics.Peek("word", outcome(err))
		return PeekResult{}, apperr.Wrap("peek word", err)
	}
	metrics.Peek("word", resultOutcome(res))
	return res, nil
}

// charge inserts the peek record if absent, then debits the viewer and
// credits the author. An existing record means the reveal was already paid.
func (g *Gate) charge(ctx context.Context, tx *gorm.DB, drop *models.Drop, viewerID string, index int, res *PeekResult) error {
	rec := models.PeekRecord{
		ViewerID:  viewerID,
		DropID:    drop.ID,
		WordIndex: index,
		Cost:      economy.PeekCost,
		CreatedAt: time.Now().UTC(),
	}
	ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if ins.Error != nil {
		return ins.Error
	}
	if ins.RowsAffected == 0 {
		res.Already = true
		return nil
	}

	if err := g.Ledger.Debit(ctx, tx, viewerID, economy.PeekCost, economy.ReasonPeek, drop.ID); err != nil {
		return err
	}
	if drop.AuthorID != viewerID {
		if err := g.Ledger.Credit(ctx, tx, drop.AuthorID, economy.AuthorReward, economy.ReasonPeekShare, drop.ID); err != nil {
			return err
		}
	}
	res.Charged = economy.PeekCost

	g.logger().WithFields(logrus.Fields{
		"drop":   drop.ID,
		"viewer": viewerID,
		"word":   index,
	}).Debug("peek charged")
	return nil
}

func lockShadow(tx *gorm.DB, dropID string) (*models.Drop, error) {
	var drop models.Drop
	if err := db.ForUpdate(tx).
		Where("id = ? AND status <> ?", dropID, models.StatusRejected).
		First(&drop).Error; err != nil {
		return nil, err
	}
	if !drop.IsShadow {
		return nil, apperr.Invalid("drop %s is not a shadow drop", dropID)
	}
	return &drop, nil
}

func validIDs(dropID, viewerID string) error {
	if strings.TrimSpace(dropID) == "" || strings.TrimSpace(viewerID) == "" {
		return apperr.Invalid("drop and viewer ids are required")
	}
	return nil
}

func wordAt(content string, index int) string {
	words := strings.Fields(content)
	if index < 0 || index >= len(words) {
		return ""
	}
	return words[index]
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, gorm.ErrRecordNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func resultOutcome(res PeekResult) string {
	if res.Already {
		return "already"
	}
	return "charged"
}

func (g *Gate) logger() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}
