package models

import "time"

// WholePost is the word index recorded for a whole-post peek.
const WholePost = -1

// PeekRecord marks a paid reveal. Append-only.
type PeekRecord struct {
	ID        uint      `gorm:"primarykey"`
	ViewerID  string    `gorm:"size:128;not null;uniqueIndex:uq_peeks_viewer_drop_word,priority:1"`
	DropID    string    `gorm:"size:36;not null;uniqueIndex:uq_peeks_viewer_drop_word,priority:2"`
	WordIndex int       `gorm:"not null;uniqueIndex:uq_peeks_viewer_drop_word,priority:3"`
	Cost      int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// Balance is an identity's coin balance. Never negative.
type Balance struct {
	Identity  string    `gorm:"primaryKey;size:128" json:"identity"`
	Coins     int64     `gorm:"not null" json:"coins"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LedgerEntry records one balance mutation. A nil side is a pure credit or
// debit.
type LedgerEntry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	FromID    *string   `gorm:"size:128;index" json:"from,omitempty"`
	ToID      *string   `gorm:"size:128;index" json:"to,omitempty"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"size:32;not null" json:"reason"`
	DropID    string    `gorm:"size:36;index" json:"dropId,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// ActionPollVote is the Action type of a poll vote.
const ActionPollVote = "poll_vote"

// Action is an append-only engagement record, unique per drop, identity and
// type.
type Action struct {
	ID          uint      `gorm:"primarykey"`
	DropID      string    `gorm:"size:36;not null;uniqueIndex:uq_actions_drop_identity_type,priority:1"`
	Identity    string    `gorm:"size:128;not null;uniqueIndex:uq_actions_drop_identity_type,priority:2"`
	Type        string    `gorm:"size:32;not null;uniqueIndex:uq_actions_drop_identity_type,priority:3"`
	OptionIndex int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}
