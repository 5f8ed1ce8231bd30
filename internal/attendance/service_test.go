package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesbahamin/timebook/internal/clock"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func seedUsers(t *testing.T, store *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	left := day(2016, time.March, 24)
	users := []User{
		{UserID: "888000000", FirstName: "Frodo", LastName: "Baggins", DateJoined: day(2014, time.December, 11), IsStudent: true, IsTutor: true},
		{UserID: "888111111", FirstName: "Sam", LastName: "Gamgee", DateJoined: day(2015, time.February, 16), IsStudent: true},
		{UserID: "888222222", FirstName: "Merry", LastName: "Brandybuck", DateJoined: day(2015, time.April, 12), DateLeft: &left, IsTutor: true},
		{UserID: "888333333", FirstName: "Pippin", LastName: "Took", DateJoined: day(2015, time.February, 16), IsStudent: true},
	}
	for _, u := range users {
		require.NoError(t, store.UpsertUser(ctx, u))
	}
}

// capturingFeed records published events for assertions.
type capturingFeed struct {
	mu     sync.Mutex
	events []Event
}

func (f *capturingFeed) PublishEvent(_ context.Context, evt Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *capturingFeed) all() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func newTestService(t *testing.T, now time.Time) (*Service, *MemoryStore, *clock.Fake, *capturingFeed) {
	t.Helper()
	store := NewMemoryStore()
	seedUsers(t, store)
	clk := clock.NewFake(now)
	feed := &capturingFeed{}
	svc := NewService(store, store, clk, feed, zerolog.Nop())
	return svc, store, clk, feed
}

func TestToggleSignInThenOut(t *testing.T) {
	ctx := context.Background()
	svc, store, clk, _ := newTestService(t, at(2016, time.February, 17, 10, 45, 23))

	result, err := svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSignedIn, result.Status)
	assert.Equal(t, RoleStudent, result.Role)
	assert.Equal(t, at(2016, time.February, 17, 10, 45, 23), result.Entry.TimeIn)
	assert.Equal(t, day(2016, time.February, 17), result.Entry.Date)
	assert.True(t, result.Entry.Open())

	open, err := store.FindOpenEntry(ctx, "888333333")
	require.NoError(t, err)
	require.NotNil(t, open)

	clk.Set(at(2016, time.February, 17, 13, 0, 0))
	result, err = svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSignedOut, result.Status)
	assert.Equal(t, RoleStudent, result.Role)
	require.NotNil(t, result.Entry.TimeOut)
	assert.Equal(t, at(2016, time.February, 17, 13, 0, 0), *result.Entry.TimeOut)
	assert.False(t, result.Entry.Forgotten)

	open, err = store.FindOpenEntry(ctx, "888333333")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestToggleIsItsOwnInverse(t *testing.T) {
	ctx := context.Background()
	svc, store, clk, _ := newTestService(t, at(2016, time.February, 17, 9, 0, 0))

	_, err := svc.Toggle(ctx, "888111111", "")
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)
	_, err = svc.Toggle(ctx, "888111111", "")
	require.NoError(t, err)

	var closed int
	for entry, err := range store.ListEntries(ctx, EntryFilter{UserID: "888111111"}) {
		require.NoError(t, err)
		assert.False(t, entry.Open())
		closed++
	}
	assert.Equal(t, 1, closed)
}

func TestToggleUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc, store, _, feed := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "000000000", "")
	assert.ErrorIs(t, err, ErrUnknownUser)

	// No entry was created and nothing hit the feed.
	for range store.ListEntries(ctx, EntryFilter{}) {
		t.Fatal("entry created for unknown user")
	}
	assert.Empty(t, feed.all())
}

func TestToggleInactiveUser(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t, at(2016, time.April, 1, 10, 0, 0))

	// Merry left on 2016-03-24.
	_, err := svc.Toggle(ctx, "888222222", "")
	assert.ErrorIs(t, err, ErrInactiveUser)

	open, err := store.FindOpenEntry(ctx, "888222222")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestToggleOnDateLeftStillActive(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, at(2016, time.March, 24, 10, 0, 0))

	result, err := svc.Toggle(ctx, "888222222", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSignedIn, result.Status)
	assert.Equal(t, RoleTutor, result.Role)
}

func TestToggleBeforeDateJoined(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, at(2015, time.January, 1, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888333333", "")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestToggleDualRoleRequiresChoice(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888000000", "")
	assert.ErrorIs(t, err, ErrAmbiguousRole)

	result, err := svc.Toggle(ctx, "888000000", RoleTutor)
	require.NoError(t, err)
	assert.Equal(t, StatusSignedIn, result.Status)
	assert.Equal(t, RoleTutor, result.Entry.UserType)

	// Sign-out needs no role: the one recorded at sign-in stands.
	clk.Advance(time.Hour)
	result, err = svc.Toggle(ctx, "888000000", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSignedOut, result.Status)
	assert.Equal(t, RoleTutor, result.Role)
}

func TestToggleInvalidRole(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888333333", RoleTutor)
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.Toggle(ctx, "888333333", Role("wizard"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestToggleNoRolesAtAll(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))
	require.NoError(t, store.UpsertUser(ctx, User{
		UserID: "888555555", FirstName: "Bilbo", LastName: "Baggins",
		DateJoined: day(2010, time.January, 1),
	}))

	_, err := svc.Toggle(ctx, "888555555", "")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestToggleClockSkewOnSignOut(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)

	clk.Set(at(2016, time.February, 17, 9, 0, 0))
	_, err = svc.Toggle(ctx, "888333333", "")
	assert.ErrorIs(t, err, ErrClockSkew)
}

func TestToggleConcurrentSingleUser(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	const attempts = 16
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Toggle(ctx, "888333333", "")
			// Serialized toggles always land on a clean transition.
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var open int
	for entry, err := range store.ListEntries(ctx, EntryFilter{UserID: "888333333"}) {
		require.NoError(t, err)
		if entry.Open() {
			open++
		}
	}
	assert.LessOrEqual(t, open, 1, "at most one open entry per user")
}

func TestCurrentlyPresent(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = svc.Toggle(ctx, "888111111", "")
	require.NoError(t, err)

	present, err := svc.CurrentlyPresent(ctx)
	require.NoError(t, err)
	require.Len(t, present, 2)
	assert.Equal(t, "Pippin", present[0].User.FirstName)
	assert.Equal(t, "Sam", present[1].User.FirstName)

	clk.Advance(time.Minute)
	_, err = svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)

	present, err = svc.CurrentlyPresent(ctx)
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.Equal(t, "Sam", present[0].User.FirstName)
}

func TestHistoryFor(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, _ := newTestService(t, at(2016, time.February, 15, 10, 0, 0))

	for d := 0; d < 3; d++ {
		_, err := svc.Toggle(ctx, "888333333", "")
		require.NoError(t, err)
		clk.Advance(2 * time.Hour)
		_, err = svc.Toggle(ctx, "888333333", "")
		require.NoError(t, err)
		clk.Advance(22 * time.Hour)
	}

	all, err := svc.HistoryFor(ctx, "888333333", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].TimeIn.Before(all[i].TimeIn), "history ordered by time_in")
	}

	window, err := svc.HistoryFor(ctx, "888333333", day(2016, time.February, 16), day(2016, time.February, 16))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, day(2016, time.February, 16), window[0].Date)

	_, err = svc.HistoryFor(ctx, "000000000", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestToggleEventsPublished(t *testing.T) {
	ctx := context.Background()
	svc, _, clk, feed := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	_, err := svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)

	events := feed.all()
	require.Len(t, events, 2)
	assert.Equal(t, EventSignedIn, events[0].Type)
	assert.Equal(t, EventSignedOut, events[1].Type)
	assert.Equal(t, "888333333", events[0].UserID)
	assert.Equal(t, events[0].EntryUUID, events[1].EntryUUID)
}

func TestTogglePublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUsers(t, store)
	svc := NewService(store, store, clock.NewFake(at(2016, time.February, 17, 10, 0, 0)), failingFeed{}, zerolog.Nop())

	result, err := svc.Toggle(ctx, "888333333", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSignedIn, result.Status)
}

type failingFeed struct{}

func (failingFeed) PublishEvent(context.Context, Event) error {
	return errors.New("feed down")
}

func TestLookupUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, at(2016, time.February, 17, 10, 0, 0))

	u, err := svc.LookupUser(ctx, "888000000")
	require.NoError(t, err)
	assert.Equal(t, "Frodo", u.FirstName)

	_, err = svc.LookupUser(ctx, "000000000")
	assert.ErrorIs(t, err, ErrUnknownUser)
}
