package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// DefaultClosingTime is the center's closing time as an offset from
// midnight, used to stamp forgotten entries.
const DefaultClosingTime = 17 * time.Hour

// Reconciler finds entries left open past their day of creation and
// force-closes them as forgotten. Same-day open entries are left alone:
// the user may legitimately still be present.
type Reconciler struct {
	entries EntryStore
	clock   Clock
	closing time.Duration
	events  EventPublisher
	log     zerolog.Logger
}

// NewReconciler creates a reconciler. closing is the offset from
// midnight of the center's closing time; zero or negative falls back to
// DefaultClosingTime. events may be nil.
func NewReconciler(entries EntryStore, clk Clock, closing time.Duration, events EventPublisher, log zerolog.Logger) *Reconciler {
	if closing <= 0 {
		closing = DefaultClosingTime
	}
	return &Reconciler{entries: entries, clock: clk, closing: closing, events: events, log: log}
}

// Run remediates every stale open entry and returns how many it closed.
// Remediation is best-effort: a failure on one entry is logged and the
// pass continues. Running it again is a no-op for entries already
// closed, so the pass is idempotent.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	now := r.clock.Now()
	today := truncateToDay(now)
	stale, err := r.entries.ListOpenEntriesBefore(ctx, today)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, entry := range stale {
		timeOut := r.forcedTimeOut(entry, now.Location())
		remediated, err := r.entries.CloseEntry(ctx, entry.UUID, timeOut, true)
		if err != nil {
			if errors.Is(err, ErrNoOpenEntry) {
				// Closed since the scan; nothing to do.
				continue
			}
			r.log.Error().Err(err).
				Str("entry", entry.UUID).
				Str("user_id", entry.UserID).
				Msg("forgotten entry remediation failed")
			continue
		}
		closed++
		r.log.Warn().
			Str("entry", remediated.UUID).
			Str("user_id", remediated.UserID).
			Time("date", remediated.Date).
			Msg("closed forgotten entry")
		if r.events != nil {
			evt := Event{
				Type:      EventForgotten,
				UserID:    remediated.UserID,
				Role:      remediated.UserType,
				EntryUUID: remediated.UUID,
				At:        timeOut,
			}
			if err := r.events.PublishEvent(ctx, evt); err != nil {
				r.log.Warn().Err(err).Msg("event publish failed")
			}
		}
	}
	return closed, nil
}

// forcedTimeOut is the closing time of the entry's opening day, clamped
// to time_in so entries opened after hours still close validly. The day
// is rebuilt in the clock's location: a Date scanned from a Postgres
// DATE column arrives as midnight UTC, and adding the closing offset to
// that would stamp the wrong wall-clock time for a non-UTC center.
func (r *Reconciler) forcedTimeOut(entry Entry, loc *time.Location) time.Time {
	y, m, d := entry.Date.Date()
	timeOut := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(r.closing)
	if timeOut.Before(entry.TimeIn) {
		return entry.TimeIn
	}
	return timeOut
}
