// Package polls records one vote per identity on a Drop's poll and pays the
// voter a reward for the first one.
package polls

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/db"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/models"
)

type Engine struct {
	DB     *gorm.DB
	Ledger *economy.Ledger
	Log    logrus.FieldLogger
}

// Result carries the tally after the cast, one count per option.
type Result struct {
	DropID  string `json:"id"`
	Tally   []int  `json:"tally"`
	Already bool   `json:"already"`
}

// Cast records voterID's choice of option on dropID's poll. A second cast by
// the same voter changes nothing and reports Already.
func (e *Engine) Cast(ctx context.Context, dropID string, option int, voterID string) (Result, error) {
	dropID, voterID = strings.TrimSpace(dropID), strings.TrimSpace(voterID)
	if dropID == "" || voterID == "" {
		return Result{}, apperr.Invalid("drop and voter ids are required")
	}

	res := Result{DropID: dropID}
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drop models.Drop
		if err := db.ForUpdate(tx).
			Where("id = ? AND status <> ?", dropID, models.StatusRejected).
			First(&drop).Error; err != nil {
			return err
		}
		poll := drop.Poll.Data()
		if !poll.Has() {
			return apperr.Invalid("drop %s has no poll", dropID)
		}
		if option < 0 || option >= len(poll.Options) {
			return apperr.Invalid("poll option %d out of range", option)
		}

		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Action{
			DropID:      dropID,
			Identity:    voterID,
			Type:        models.ActionPollVote,
			OptionIndex: option,
			CreatedAt:   time.Now().UTC(),
		})
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			res.Already = true
			res.Tally = tallyOf(poll)
			return nil
		}

		counts, err := recount(tx, dropID)
		if err != nil {
			return err
		}
		poll.Votes = counts
		if err := tx.Model(&models.Drop{}).Where("id = ?", dropID).
			Update("poll", datatypes.NewJSONType(poll)).Error; err != nil {
			return err
		}
		res.Tally = tallyOf(poll)

		return e.Ledger.Credit(ctx, tx, voterID, economy.PollVoteReward, economy.ReasonPollVoteReward, dropID)
	})
	if err != nil {
		metrics.PollVote(outcome(err))
		return Result{}, apperr.Wrap("poll vote", err)
	}

	if res.Already {
		metrics.PollVote("already")
	} else {
		metrics.PollVote("counted")
		e.logger().WithFields(logrus.Fields{"drop": dropID, "option": option}).Debug("poll vote counted")
	}
	return res, nil
}

type optionCount struct {
	OptionIndex int
	N           int
}

func recount(tx *gorm.DB, dropID string) (map[int]int, error) {
	var rows []optionCount
	err := tx.Model(&models.Action{}).
		Select("option_index, count(*) as n").
		Where("drop_id = ? AND type = ?", dropID, models.ActionPollVote).
		Group("option_index").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[r.OptionIndex] = r.N
	}
	return out, nil
}

func tallyOf(p models.Poll) []int {
	t := make([]int, len(p.Options))
	for i := range t {
		t[i] = p.Votes[i]
	}
	return t
}

func outcome(err error) string {
	if errors.Is(err, apperr.ErrInvalidInput) || errors.Is(err, gorm.ErrRecordNotFound) {
		return "rejected"
	}
	return "error"
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}
