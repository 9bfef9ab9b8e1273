// Package drops composes new Drops and applies moderation status changes.
package drops

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/economy"
	"github.com/sujalbistaa/drops/internal/lifecycle"
	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/models"
	"github.com/sujalbistaa/drops/internal/moderation"
)

const (
	MaxContentRunes = 1000
	MinPollOptions  = 2
	MaxPollOptions  = 6
	maxOptionRunes  = 80
)

type Service struct {
	DB      *gorm.DB
	Ledger  *economy.Ledger
	Cadence *lifecycle.CadenceGuard
	Scanner moderation.Scanner
	Log     logrus.FieldLogger
}

// Draft is a Drop as submitted by its author.
type Draft struct {
	CommunityID     string
	AuthorID        string
	Content         string
	ImageURL        string
	IsShadow        bool
	IsOpen          bool
	UnlockThreshold int
	Tease           string
	PollOptions     []string
}

// Create validates d, stores it and pays the author the post reward. Text
// caught by the scanner is stored FLAGGED and stays out of feeds.
func (s *Service) Create(ctx context.Context, d Draft, now time.Time) (*models.Drop, error) {
	d, err := normalize(d)
	if err != nil {
		return nil, err
	}
	release, err := s.Cadence.Reserve(d.AuthorID, now)
	if err != nil {
		return nil, err
	}

	var verdict moderation.Verdict
	if s.Scanner != nil {
		verdict = s.Scanner.Scan(strings.Join(append([]string{d.Content, d.Tease}, d.PollOptions...), "\n"))
	}
	status := models.StatusLive
	if verdict.Blocked {
		status = models.StatusFlagged
	}

	id := uuid.New()
	now = now.UTC()
	w := lifecycle.ComputeWindow(now)
	drop := &models.Drop{
		ID:              id.String(),
		PublicID:        base58.Encode(id[:8]),
		Content:         d.Content,
		ImageURL:        d.ImageURL,
		Tag:             ExtractTag(d.Content),
		CommunityID:     d.CommunityID,
		AuthorID:        d.AuthorID,
		Status:          status,
		CrisisFlag:      verdict.CrisisFlag,
		IsShadow:        d.IsShadow,
		IsOpen:          d.IsOpen,
		UnlockThreshold: d.UnlockThreshold,
		Tease:           d.Tease,
		Poll:            datatypes.NewJSONType(models.Poll{Options: d.PollOptions}),
		CreatedAt:       now,
		ActiveAt:        w.ActiveAt,
		ExpiresAt:       w.ExpiresAt,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Votes").Create(drop).Error; err != nil {
			return err
		}
		return s.Ledger.Credit(ctx, tx, d.AuthorID, economy.PostReward, economy.ReasonPostReward, drop.ID)
	})
	if err != nil {
		release()
		return nil, apperr.Wrap("create drop", err)
	}

	metrics.DropCreated(string(status))
	entry := s.logger().WithFields(logrus.Fields{
		"drop":      drop.ID,
		"community": drop.CommunityID,
		"status":    drop.Status,
		"shadow":    drop.IsShadow,
	})
	if drop.CrisisFlag {
		entry.Warn("drop created with crisis flag")
	} else {
		entry.Info("drop created")
	}
	return drop, nil
}

// Get returns a Drop that has not been rejected.
func (s *Service) Get(ctx context.Context, id string) (*models.Drop, error) {
	var drop models.Drop
	err := s.DB.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.StatusRejected).
		First(&drop).Error
	if err != nil {
		return nil, apperr.Wrap("get drop", err)
	}
	return &drop, nil
}

// Reject moves a LIVE or FLAGGED Drop to REJECTED. Rejecting twice is a
// no-op.
func (s *Service) Reject(ctx context.Context, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var drop models.Drop
		if err := tx.Select("id", "status").Where("id = ?", id).First(&drop).Error; err != nil {
			return err
		}
		if drop.Status == models.StatusRejected {
			return nil
		}
		return tx.Model(&models.Drop{}).Where("id = ?", id).Update("status", models.StatusRejected).Error
	})
	if err != nil {
		return apperr.Wrap("reject drop", err)
	}
	s.logger().WithField("drop", id).Info("drop rejected")
	return nil
}

// Delete removes a Drop and its votes. Peek records and ledger entries that
// reference it are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("drop_id = ?", id).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Drop{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return apperr.Wrap("delete drop", err)
	}
	s.logger().WithField("drop", id).Info("drop deleted")
	return nil
}

func normalize(d Draft) (Draft, error) {
	d.Content = strings.TrimSpace(d.Content)
	d.CommunityID = strings.TrimSpace(d.CommunityID)
	d.AuthorID = strings.TrimSpace(d.AuthorID)
	d.ImageURL = strings.TrimSpace(d.ImageURL)

	if d.CommunityID == "" || d.AuthorID == "" {
		return d, apperr.Invalid("community and author are required")
	}
	n := utf8.RuneCountInString(d.Content)
	if n == 0 || n > MaxContentRunes {
		return d, apperr.Invalid("content must be 1 to %d characters, got %d", MaxContentRunes, n)
	}

	switch {
	case d.UnlockThreshold < 0:
		return d, apperr.Invalid("unlock threshold %d", d.UnlockThreshold)
	case d.UnlockThreshold == 0:
		d.UnlockThreshold = models.DefaultUnlockThreshold
	}
	if !d.IsShadow {
		d.Tease = ""
	}

	if len(d.PollOptions) > 0 {
		if len(d.PollOptions) < MinPollOptions || len(d.PollOptions) > MaxPollOptions {
			return d, apperr.Invalid("poll needs %d to %d options, got %d", MinPollOptions, MaxPollOptions, len(d.PollOptions))
		}
		opts := make([]string, len(d.PollOptions))
		for i, o := range d.PollOptions {
			o = strings.TrimSpace(o)
			if o == "" || utf8.RuneCountInString(o) > maxOptionRunes {
				return d, apperr.Invalid("poll option %d must be 1 to %d characters", i, maxOptionRunes)
			}
			opts[i] = o
		}
		d.PollOptions = opts
	}
	return d, nil
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
