package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/sujalbistaa/drops/internal/lifecycle"
)

// Status is the moderation status of a Drop.
type Status string

const (
	StatusLive     Status = "LIVE"
	StatusFlagged  Status = "FLAGGED"
	StatusRejected Status = "REJECTED"
)

// DefaultUnlockThreshold is the upvote count that unlocks a shadow Drop.
const DefaultUnlockThreshold = 5

// Drop is a short post scoped to a community.
type Drop struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	PublicID    string `gorm:"uniqueIndex;size:16;not null" json:"publicId"`
	Content     string `gorm:"not null" json:"content"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Tag         string `gorm:"index;size:64" json:"tag,omitempty"`
	CommunityID string `gorm:"size:64;not null;index:idx_drops_feed,priority:1" json:"communityId"`
	AuthorID    string `gorm:"size:128;not null;index" json:"-"`
	Status      Status `gorm:"size:16;not null;index:idx_drops_feed,priority:2" json:"status"`
	CrisisFlag  bool   `gorm:"not null" json:"-"`

	IsShadow        bool `gorm:"not null" json:"isShadow"`
	IsOpen          bool `gorm:"not null" json:"isOpen"`
	UnlockThreshold int  `gorm:"not null" json:"unlockThreshold"`
	// Tease is the placeholder rendering of Content supplied by the composer.
	Tease string `json:"-"`

	Upvotes   int `gorm:"not null" json:"upvotes"`
	Downvotes int `gorm:"not null" json:"downvotes"`

	Poll datatypes.JSONType[Poll] `json:"poll"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	ActiveAt  time.Time `gorm:"not null" json:"activeAt"`
	ExpiresAt time.Time `gorm:"not null;index:idx_drops_feed,priority:3" json:"expiresAt"`

	Votes []Vote `gorm:"foreignKey:DropID;constraint:OnDelete:CASCADE" json:"-"`
}

// Poll is an optional ordered option list with its recounted tally.
type Poll struct {
	Options []string    `json:"options,omitempty"`
	Votes   map[int]int `json:"votes,omitempty"`
}

func (p Poll) Has() bool { return len(p.Options) > 0 }

func (d *Drop) Window() lifecycle.Window {
	return lifecycle.Window{ActiveAt: d.ActiveAt, ExpiresAt: d.ExpiresAt}
}

// Locked reports whether a shadow Drop is still below its unlock threshold.
func (d *Drop) Locked() bool {
	return d.IsShadow && d.Upvotes < d.UnlockThreshold
}

// Net is upvotes minus downvotes.
func (d *Drop) Net() int { return d.Upvotes - d.Downvotes }

// Vote is one voter's +1 or -1 on a Drop. Toggling off deletes the row.
type Vote struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	DropID    string    `gorm:"size:36;not null;uniqueIndex:uq_votes_drop_voter,priority:1" json:"dropId"`
	VoterID   string    `gorm:"size:128;not null;uniqueIndex:uq_votes_drop_voter,priority:2" json:"-"`
	Value     int       `gorm:"not null" json:"value"` // +1 or -1
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
