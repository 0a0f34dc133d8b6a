package domain

import "time"

// User is a catalogue subscriber/owner. Only the three manual-push fields
// change after admin edits.
type User struct {
	ID               int64
	Email            string // unique, lowercased
	Name             string
	IsAdmin          bool
	Enabled          bool
	ManualPushCount  int
	ManualPushDate   string // YYYY-MM-DD in the user's configured time zone
	ManualPushLastAt time.Time
}

// Owns reports whether this user owns pipeline ownerUserID, or is an
// admin who may act on any pipeline.
func (u User) Owns(ownerUserID int64) bool {
	return u.IsAdmin || u.ID == ownerUserID
}
