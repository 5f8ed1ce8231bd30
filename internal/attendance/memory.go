package attendance

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps users and entries in process memory. It backs tests
// and single-kiosk dev setups where Postgres is overkill.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	entries map[string]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		entries: make(map[string]Entry),
	}
}

// GetUser returns nil when the user does not exist.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (m *MemoryStore) ListUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// UpsertUser creates or replaces a user record.
func (m *MemoryStore) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
	return nil
}

// DeactivateUser ends the user's eligibility.
func (m *MemoryStore) DeactivateUser(_ context.Context, userID string, dateLeft time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	day := truncateToDay(dateLeft)
	u.DateLeft = &day
	m.users[userID] = u
	return nil
}

// InsertEntry records a new open entry.
func (m *MemoryStore) InsertEntry(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.UserID == e.UserID && existing.Open() {
			return ErrDuplicateOpenEntry
		}
	}
	m.entries[e.UUID] = e
	return nil
}

// CloseEntry sets time_out on an open entry.
func (m *MemoryStore) CloseEntry(_ context.Context, entryUUID string, timeOut time.Time, forgotten bool) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryUUID]
	if !ok || !e.Open() {
		return Entry{}, ErrNoOpenEntry
	}
	if timeOut.Before(e.TimeIn) {
		return Entry{}, ErrClockSkew
	}
	out := timeOut
	e.TimeOut = &out
	e.Forgotten = forgotten
	m.entries[entryUUID] = e
	return e, nil
}

// FindOpenEntry returns the user's open entry, or nil.
func (m *MemoryStore) FindOpenEntry(_ context.Context, userID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.UserID == userID && e.Open() {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

// ListOpenEntriesBefore returns open entries dated strictly before day.
func (m *MemoryStore) ListOpenEntriesBefore(_ context.Context, day time.Time) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := truncateToDay(day)
	var stale []Entry
	for _, e := range m.entries {
		if e.Open() && e.Date.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].TimeIn.Before(stale[j].TimeIn) })
	return stale, nil
}

// ListEntries streams matching entries ordered by time_in. Each range
// over the sequence takes a fresh snapshot, so it is restartable.
func (m *MemoryStore) ListEntries(ctx context.Context, f EntryFilter) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		m.mu.RLock()
		matched := make([]Entry, 0, len(m.entries))
		for _, e := range m.entries {
			if matchesFilter(e, f) {
				matched = append(matched, e)
			}
		}
		m.mu.RUnlock()
		sort.Slice(matched, func(i, j int) bool { return matched[i].TimeIn.Before(matched[j].TimeIn) })

		for _, e := range matched {
			if ctx.Err() != nil {
				yield(Entry{}, ctx.Err())
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// ListPresent pairs every open entry with its user.
func (m *MemoryStore) ListPresent(_ context.Context) ([]Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var present []Presence
	for _, e := range m.entries {
		if !e.Open() {
			continue
		}
		u, ok := m.users[e.UserID]
		if !ok {
			continue
		}
		present = append(present, Presence{User: u, Entry: e})
	}
	sort.Slice(present, func(i, j int) bool {
		return present[i].Entry.TimeIn.Before(present[j].Entry.TimeIn)
	})
	return present, nil
}

func matchesFilter(e Entry, f EntryFilter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.OpenOnly && !e.Open() {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(truncateToDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(truncateToDay(f.To)) {
		return false
	}
	return true
}
