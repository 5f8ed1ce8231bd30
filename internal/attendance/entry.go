package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Entry records one sign-in/sign-out pair. TimeIn and TimeOut are full
// instants; Date is the local calendar day the entry was opened, fixed
// at creation so a session crossing midnight stays attributed to the
// day it began.
type Entry struct {
	UUID      string     `json:"uuid"`
	Date      time.Time  `json:"date"`
	TimeIn    time.Time  `json:"time_in"`
	TimeOut   *time.Time `json:"time_out,omitempty"`
	Forgotten bool       `json:"forgotten"`
	UserID    string     `json:"user_id"`
	UserType  Role       `json:"user_type"`
}

// NewEntry opens an entry for the user at now under the given role.
func NewEntry(userID string, role Role, now time.Time) Entry {
	return Entry{
		UUID:     uuid.NewString(),
		Date:     truncateToDay(now),
		TimeIn:   now,
		UserID:   userID,
		UserType: role,
	}
}

// Open reports whether the entry has no sign-out yet.
func (e Entry) Open() bool {
	return e.TimeOut == nil
}

// Duration returns the session length, or zero while the entry is open.
func (e Entry) Duration() time.Duration {
	if e.TimeOut == nil {
		return 0
	}
	return e.TimeOut.Sub(e.TimeIn)
}
