// Package economy is the single entry point for coin balance mutations.
//
// Every reward, peek charge and author share goes through Ledger.Transfer.
// Debits never take a balance below zero, and each mutation appends a
// LedgerEntry in the same transaction.
package economy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/drops/internal/apperr"
	"github.com/sujalbistaa/drops/internal/models"
)

const (
	PostReward     = 10
	PollVoteReward = 20
	PeekCost       = 100
	AuthorReward   = 67
)

type Reason string

const (
	ReasonPostReward     Reason = "post_reward"
	ReasonPollVoteReward Reason = "poll_vote_reward"
	ReasonPeek           Reason = "peek"
	ReasonPeekShare      Reason = "peek_author_share"
	ReasonGrant          Reason = "grant"
)

// Transfer moves Amount coins from From to To. An empty side is a pure
// credit or debit.
type Transfer struct {
	From   string
	To     string
	Amount int64
	Reason Reason
	DropID string
}

type Ledger struct {
	DB *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// Transfer applies t inside tx when tx is non-nil, so the caller's other
// writes commit or roll back with it. With a nil tx it runs in its own
// transaction.
func (l *Ledger) Transfer(ctx context.Context, tx *gorm.DB, t Transfer) error {
	if t.Amount <= 0 {
		return apperr.Invalid("transfer amount %d", t.Amount)
	}
	if t.From == "" && t.To == "" {
		return apperr.Invalid("transfer needs a debited or credited identity")
	}
	if t.From == t.To {
		return apperr.Invalid("transfer to self")
	}
	if t.Reason == "" {
		return apperr.Invalid("transfer reason required")
	}

	if tx != nil {
		return apperr.Wrap("economy transfer", apply(tx, t, time.Now().UTC()))
	}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return apply(tx, t, time.Now().UTC())
	})
	return apperr.Wrap("economy transfer", err)
}

// Credit adds amount to identity with no debited party.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, identity string, amount int64, reason Reason, dropID string) error {
	return l.Transfer(ctx, tx, Transfer{To: identity, Amount: amount, Reason: reason, DropID: dropID})
}

// Debit removes amount from identity with no credited party.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, identity string, amount int64, reason Reason, dropID string) error {
	return l.Transfer(ctx, tx, Transfer{From: identity, Amount: amount, Reason: reason, DropID: dropID})
}

// Balance returns identity's coins; unknown identities hold zero.
func (l *Ledger) Balance(ctx context.Context, identity string) (int64, error) {
	var rows []models.Balance
	if err := l.DB.WithContext(ctx).Where("identity = ?", identity).Limit(1).Find(&rows).Error; err != nil {
		return 0, apperr.Wrap("economy balance", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Coins, nil
}

// History lists the newest ledger entries touching identity.
func (l *Ledger) History(ctx context.Context, identity string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.LedgerEntry
	err := l.DB.WithContext(ctx).
		Where("from_id = ? OR to_id = ?", identity, identity).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, apperr.Wrap("economy history", err)
}

func apply(tx *gorm.DB, t Transfer, now time.Time) error {
	if t.From != "" {
		res := tx.Model(&models.Balance{}).
			Where("identity = ? AND coins >= ?", t.From, t.Amount).
			Updates(map[string]any{
				"coins":      gorm.Expr("coins - ?", t.Amount),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s needs %d coins", apperr.ErrInsufficientFunds, t.From, t.Amount)
		}
	}

	if t.To != "" {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identity"}},
			DoUpdates: clause.Assignments(map[string]any{
				"coins":      gorm.Expr("balances.coins + ?", t.Amount),
				"updated_at": now,
			}),
		}).Create(&models.Balance{Identity: t.To, Coins: t.Amount, UpdatedAt: now}).Error
		if err != nil {
			return err
		}
	}

	entry := models.LedgerEntry{
		ID:        uuid.NewString(),
		FromID:    optional(t.From),
		ToID:      optional(t.To),
		Amount:    t.Amount,
		Reason:    string(t.Reason),
		DropID:    t.DropID,
		CreatedAt: now,
	}
	return tx.Create(&entry).Error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
