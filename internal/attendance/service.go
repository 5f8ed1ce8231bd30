package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ToggleStatus is the direction a toggle resolved to.
type ToggleStatus string

const (
	StatusSignedIn  ToggleStatus = "signed_in"
	StatusSignedOut ToggleStatus = "signed_out"
)

// ToggleResult describes the transition a toggle performed.
type ToggleResult struct {
	Status ToggleStatus `json:"status"`
	Role   Role         `json:"role"`
	Entry  Entry        `json:"entry"`
}

// Clock yields the current instant; injected so tests control time.
type Clock interface {
	Now() time.Time
}

// Service is the attendance controller: the only surface a presentation
// layer calls. It infers sign-in vs sign-out from current ledger state.
type Service struct {
	users   UserStore
	entries EntryStore
	clock   Clock
	events  EventPublisher
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates the controller. events may be nil when no feed is
// configured.
func NewService(users UserStore, entries EntryStore, clk Clock, events EventPublisher, log zerolog.Logger) *Service {
	return &Service{
		users:   users,
		entries: entries,
		clock:   clk,
		events:  events,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing mutations for one user.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Toggle flips the user's presence: signs them in if they have no open
// entry, signs them out otherwise. role is required only when the user
// is eligible for both roles; it is ignored on sign-out, where the role
// recorded at sign-in stands.
func (s *Service) Toggle(ctx context.Context, userID string, role Role) (ToggleResult, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return ToggleResult{}, err
	}
	if u == nil {
		return ToggleResult{}, ErrUnknownUser
	}

	now := s.clock.Now()
	if !u.ActiveOn(now) {
		return ToggleResult{}, ErrInactiveUser
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.entries.FindOpenEntry(ctx, userID)
	if err != nil {
		return ToggleResult{}, err
	}

	if open != nil {
		return s.signOut(ctx, *open, now)
	}
	return s.signIn(ctx, *u, role, now)
}

func (s *Service) signIn(ctx context.Context, u User, role Role, now time.Time) (ToggleResult, error) {
	eligible := u.EligibleRoles()
	switch {
	case len(eligible) == 0:
		return ToggleResult{}, ErrInvalidRole
	case role == "":
		if len(eligible) > 1 {
			return ToggleResult{}, ErrAmbiguousRole
		}
		role = eligible[0]
	case !role.Valid() || !containsRole(eligible, role):
		return ToggleResult{}, ErrInvalidRole
	}

	entry := NewEntry(u.UserID, role, now)
	if err := s.entries.InsertEntry(ctx, entry); err != nil {
		return ToggleResult{}, err
	}

	s.log.Info().Str("user_id", u.UserID).Str("role", string(role)).Msg("signed in")
	s.publish(ctx, Event{Type: EventSignedIn, UserID: u.UserID, Role: role, EntryUUID: entry.UUID, At: now})
	return ToggleResult{Status: StatusSignedIn, Role: role, Entry: entry}, nil
}

func (s *Service) signOut(ctx context.Context, open Entry, now time.Time) (ToggleResult, error) {
	if now.Before(open.TimeIn) {
		return ToggleResult{}, ErrClockSkew
	}
	closed, err := s.entries.CloseEntry(ctx, open.UUID, now, false)
	if err != nil {
		return ToggleResult{}, err
	}

	s.log.Info().Str("user_id", closed.UserID).Str("role", string(closed.UserType)).Msg("signed out")
	s.publish(ctx, Event{Type: EventSignedOut, UserID: closed.UserID, Role: closed.UserType, EntryUUID: closed.UUID, At: now})
	return ToggleResult{Status: StatusSignedOut, Role: closed.UserType, Entry: closed}, nil
}

// CurrentlyPresent returns every user with an open entry.
func (s *Service) CurrentlyPresent(ctx context.Context) ([]Presence, error) {
	return s.entries.ListPresent(ctx)
}

// HistoryFor returns the user's entries whose opening date falls within
// [from, to], ordered by sign-in time. Zero bounds are unbounded.
func (s *Service) HistoryFor(ctx context.Context, userID string, from, to time.Time) ([]Entry, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnknownUser
	}

	var history []Entry
	for entry, err := range s.entries.ListEntries(ctx, EntryFilter{UserID: userID, From: from, To: to}) {
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, nil
}

// LookupUser resolves a user id for presentation layers that want to
// greet the person before toggling.
func (s *Service) LookupUser(ctx context.Context, userID string) (User, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrUnknownUser
	}
	return *u, nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("type", string(evt.Type)).Msg("event publish failed")
	}
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}
