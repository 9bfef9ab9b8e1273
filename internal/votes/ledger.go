// Package votes keeps per-(drop, voter) vote state and the Drop's aggregate
// counters.
//
// The aggregates are never incremented in place. Every cast recounts the
// vote rows inside the same transaction and writes the result back to the
// Drop, so concurrent voters cannot make the counters drift.
package votes

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/db"
	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/models"
)

type Ledger struct {
	DB  *gorm.DB
	Log logrus.FieldLogger
}

// Result describes the outcome of one cast.
type Result struct {
	DropID string `json:"id"`
	// Delta is the change in upvotes minus downvotes.
	Delta int `json:"delta"`
	// Value is the voter's vote after the cast, 0 when toggled off.
	Value     int `json:"value"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	// Unlocked is set when this cast took a shadow Drop over its threshold.
	Unlocked bool `json:"unlocked"`
}

// Tally is the recounted aggregate of a Drop.
type Tally struct {
	Up   int
	Down int
}

// Cast records value (+1 or -1) from voterID on dropID. Repeating the
// current vote removes it; the opposite direction flips it.
func (l *Ledger) Cast(ctx context.Context, dropID, voterID string, value int) (Result, error) {
	dropID, voterID = strings.TrimSpace(dropID), strings.TrimSpace(voterID)
	if dropID == "" || voterID == "" {
		return Result{}, apperr.Invalid("drop and voter ids are required")
	}
	if value != 1 && value != -1 {
		return Result{}, apperr.Invalid("vote value %d", value)
	}

	res := Result{DropID: dropID}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drop models.Drop
		if err := db.ForUpdate(tx).
			Where("id = ? AND status <> ?", dropID, models.StatusRejected).
			First(&drop).Error; err != nil {
			return err
		}
		wasLocked := drop.Locked()

		var prior models.Vote
		err := tx.Where("drop_id = ? AND voter_id = ?", dropID, voterID).First(&prior).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Vote{DropID: dropID, VoterID: voterID, Value: value}).Error; err != nil {
				return err
			}
			res.Delta, res.Value = value, value
		case err != nil:
			return err
		case prior.Value == value:
			if err := tx.Delete(&prior).Error; err != nil {
				return err
			}
			res.Delta, res.Value = -value, 0
		default:
			if err := tx.Model(&prior).Update("value", value).Error; err != nil {
				return err
			}
			res.Delta, res.Value = 2*value, value
		}

		tally, err := recount(tx, dropID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Drop{}).Where("id = ?", dropID).Updates(map[string]any{
			"upvotes":   tally.Up,
			"downvotes": tally.Down,
		}).Error; err != nil {
			return err
		}

		res.Upvotes, res.Downvotes = tally.Up, tally.Down
		drop.Upvotes, drop.Downvotes = tally.Up, tally.Down
		res.Unlocked = wasLocked && !drop.Locked()
		return nil
	})
	if err != nil {
		return Result{}, apperr.Wrap("cast vote", err)
	}

	metrics.VoteCast(res.Delta)
	if res.Unlocked {
		l.logger().WithFields(logrus.Fields{"drop": dropID, "upvotes": res.Upvotes}).Info("shadow drop unlocked by votes")
	}
	return res, nil
}

// Recount derives the aggregate from the stored votes and writes it back.
func (l *Ledger) Recount(ctx context.Context, dropID string) (Tally, error) {
	var tally Tally
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Drop{}).Where("id = ?", dropID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		var err error
		if tally, err = recount(tx, dropID); err != nil {
			return err
		}
		return tx.Model(&models.Drop{}).Where("id = ?", dropID).Updates(map[string]any{
			"upvotes":   tally.Up,
			"downvotes": tally.Down,
		}).Error
	})
	return tally, apperr.Wrap("recount votes", err)
}

// VoteOf returns voterID's current vote on dropID, 0 when absent.
func (l *Ledger) VoteOf(ctx context.Context, dropID, voterID string) (int, error) {
	var rows []models.Vote
	err := l.DB.WithContext(ctx).
		Where("drop_id = ? AND voter_id = ?", dropID, voterID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, apperr.Wrap("read vote", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Value, nil
}

func recount(tx *gorm.DB, dropID string) (Tally, error) {
	var up, down int64
	if err := tx.Model(&models.Vote{}).Where("drop_id = ? AND value = ?", dropID, 1).Count(&up).Error; err != nil {
		return Tally{}, err
	}
	if err := tx.Model(&models.Vote{}).Where("drop_id = ? AND value = ?", dropID, -1).Count(&down).Error; err != nil {
		return Tally{}, err
	}
	return Tally{Up: int(up), Down: int(down)}, nil
}

func (l *Ledger) logger() logrus.FieldLogger {
	if l.Log == nil {
		return logrus.StandardLogger()
	}
	return l.Log
}
