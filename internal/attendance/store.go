package attendance

import (
	"context"
	"iter"
	"time"
)

// UserStore is the read contract the controller needs plus the
// administrative provisioning write path.
type UserStore interface {
	// GetUser returns nil when no user has the id.
	GetUser(ctx context.Context, userID string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpsertUser(ctx context.Context, u User) error
	// DeactivateUser ends the user's eligibility on dateLeft.
	DeactivateUser(ctx context.Context, userID string, dateLeft time.Time) error
}

// EntryFilter narrows a ledger scan. Zero From/To mean unbounded;
// bounds apply to the entry's opening date.
type EntryFilter struct {
	UserID   string
	From     time.Time
	To       time.Time
	OpenOnly bool
}

// Presence pairs a signed-in user with their open entry.
type Presence struct {
	User  User  `json:"user"`
	Entry Entry `json:"entry"`
}

// EntryStore owns creation and closing of entries. Implementations must
// guarantee at most one open entry per user and persist mutations before
// returning.
type EntryStore interface {
	// InsertEntry records a new open entry. Fails with
	// ErrDuplicateOpenEntry if the user already has one open.
	InsertEntry(ctx context.Context, e Entry) error
	// CloseEntry sets time_out on an open entry and returns the closed
	// entry. Fails with ErrNoOpenEntry if the entry is missing or
	// already closed.
	CloseEntry(ctx context.Context, entryUUID string, timeOut time.Time, forgotten bool) (Entry, error)
	// FindOpenEntry returns the user's open entry, or nil.
	FindOpenEntry(ctx context.Context, userID string) (*Entry, error)
	// ListOpenEntriesBefore returns open entries whose date is strictly
	// before day.
	ListOpenEntriesBefore(ctx context.Context, day time.Time) ([]Entry, error)
	// ListEntries streams entries matching the filter ordered by
	// time_in ascending. The sequence is lazy and restartable: each
	// range re-runs the scan.
	ListEntries(ctx context.Context, f EntryFilter) iter.Seq2[Entry, error]
	// ListPresent returns every user with an open entry.
	ListPresent(ctx context.Context) ([]Presence, error)
}
