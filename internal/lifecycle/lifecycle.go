// Package lifecycle derives the temporal state of a Drop.
//
// A Drop lives for Lifespan after creation. The last ActiveWindow of that
// span is the live window (chat open, countdown shown); after ExpiresAt the
// Drop has evaporated. Nothing is stored besides the two timestamps.
package lifecycle

import "time"

const (
	Lifespan     = 24 * time.Hour
	ActiveWindow = 4 * time.Hour
)

type State string

const (
	Scheduled  State = "SCHEDULED"
	Active     State = "ACTIVE"
	Evaporated State = "EVAPORATED"
)

type Window struct {
	ActiveAt  time.Time
	ExpiresAt time.Time
}

// ComputeWindow stamps the window for a Drop created at createdAt.
func ComputeWindow(createdAt time.Time) Window {
	expires := createdAt.Add(Lifespan)
	return Window{
		ActiveAt:  expires.Add(-ActiveWindow),
		ExpiresAt: expires,
	}
}

// StateAt is total for any activeAt < expiresAt.
func StateAt(now, activeAt, expiresAt time.Time) State {
	switch {
	case !now.Before(expiresAt):
		return Evaporated
	case !now.Before(activeAt):
		return Active
	default:
		return Scheduled
	}
}

func (w Window) StateAt(now time.Time) State {
	return StateAt(now, w.ActiveAt, w.ExpiresAt)
}
