package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists users and entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

// storageErr tags infrastructure failures so callers can tell them
// apart from domain errors.
func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// GetUser returns nil when no user has the id.
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, COALESCE(personal_email, ''), COALESCE(major, ''),
		       date_joined, date_left, education_plan, is_student, is_tutor
		FROM users WHERE user_id = $1
	`, userID)
	var u User
	if err := row.Scan(&u.UserID, &u.FirstName, &u.LastName, &u.PersonalEmail, &u.Major,
		&u.DateJoined, &u.DateLeft, &u.EducationPlan, &u.IsStudent, &u.IsTutor); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr(err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, first_name, last_name, COALESCE(personal_email, ''), COALESCE(major, ''),
		       date_joined, date_left, education_plan, is_student, is_tutor
		FROM users ORDER BY user_id
	`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.FirstName, &u.LastName, &u.PersonalEmail, &u.Major,
			&u.DateJoined, &u.DateLeft, &u.EducationPlan, &u.IsStudent, &u.IsTutor); err != nil {
			return nil, storageErr(err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return users, nil
}

// UpsertUser creates or updates a user record. Administrative write
// path; the controller never calls this.
func (r *Repository) UpsertUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, first_name, last_name, personal_email, major,
		                   date_joined, date_left, education_plan, is_student, is_tutor)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			personal_email = EXCLUDED.personal_email,
			major = EXCLUDED.major,
			date_joined = EXCLUDED.date_joined,
			date_left = EXCLUDED.date_left,
			education_plan = EXCLUDED.education_plan,
			is_student = EXCLUDED.is_student,
			is_tutor = EXCLUDED.is_tutor,
			updated_at = NOW()
	`, u.UserID, u.FirstName, u.LastName, u.PersonalEmail, u.Major,
		u.DateJoined, u.DateLeft, u.EducationPlan, u.IsStudent, u.IsTutor)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// DeactivateUser ends the user's eligibility on dateLeft.
func (r *Repository) DeactivateUser(ctx context.Context, userID string, dateLeft time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET date_left = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, dateLeft)
	if err != nil {
		return storageErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// InsertEntry records a new open entry. The partial unique index on
// open entries turns a concurrent double sign-in into a constraint
// violation, reported as ErrDuplicateOpenEntry.
func (r *Repository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entries (uuid, date, time_in, time_out, forgotten, user_id, user_type)
		VALUES ($1,$2,$3,NULL,FALSE,$4,$5)
	`, e.UUID, e.Date, e.TimeIn, e.UserID, string(e.UserType))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOpenEntry
		}
		return storageErr(err)
	}
	return nil
}

// CloseEntry sets time_out on an open entry and returns the closed row.
// The time_out IS NULL guard makes the close idempotent under retries.
func (r *Repository) CloseEntry(ctx context.Context, entryUUID string, timeOut time.Time, forgotten bool) (Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE entries SET time_out = $2, forgotten = $3
		WHERE uuid = $1 AND time_out IS NULL
		RETURNING uuid, date, time_in, time_out, forgotten, user_id, user_type
	`, entryUUID, timeOut, forgotten)
	var e Entry
	if err := row.Scan(&e.UUID, &e.Date, &e.TimeIn, &e.TimeOut, &e.Forgotten, &e.UserID, &e.UserType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNoOpenEntry
		}
		return Entry{}, storageErr(err)
	}
	return e, nil
}

// FindOpenEntry returns the user's open entry, or nil.
func (r *Repository) FindOpenEntry(ctx context.Context, userID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uuid, date, time_in, time_out, forgotten, user_id, user_type
		FROM entries WHERE user_id = $1 AND time_out IS NULL
	`, userID)
	var e Entry
	if err := row.Scan(&e.UUID, &e.Date, &e.TimeIn, &e.TimeOut, &e.Forgotten, &e.UserID, &e.UserType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr(err)
	}
	return &e, nil
}

// ListOpenEntriesBefore returns open entries dated strictly before day.
func (r *Repository) ListOpenEntriesBefore(ctx context.Context, day time.Time) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uuid, date, time_in, time_out, forgotten, user_id, user_type
		FROM entries WHERE time_out IS NULL AND date < $1
		ORDER BY time_in
	`, day)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListEntries streams matching entries ordered by time_in ascending.
// Each range over the sequence runs a fresh query, so the sequence is
// restartable and a cancelled context ends it with ctx.Err.
func (r *Repository) ListEntries(ctx context.Context, f EntryFilter) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		query := `SELECT uuid, date, time_in, time_out, forgotten, user_id, user_type FROM entries`
		var clauses []string
		var args []any
		if f.UserID != "" {
			args = append(args, f.UserID)
			clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
		}
		if f.OpenOnly {
			clauses = append(clauses, "time_out IS NULL")
		}
		if !f.From.IsZero() {
			args = append(args, f.From)
			clauses = append(clauses, fmt.Sprintf("date >= $%d", len(args)))
		}
		if !f.To.IsZero() {
			args = append(args, f.To)
			clauses = append(clauses, fmt.Sprintf("date <= $%d", len(args)))
		}
		for i, clause := range clauses {
			if i == 0 {
				query += " WHERE " + clause
			} else {
				query += " AND " + clause
			}
		}
		query += " ORDER BY time_in"

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(Entry{}, storageErr(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.UUID, &e.Date, &e.TimeIn, &e.TimeOut, &e.Forgotten, &e.UserID, &e.UserType); err != nil {
				yield(Entry{}, storageErr(err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, storageErr(err))
		}
	}
}

// ListPresent joins open entries with their users.
func (r *Repository) ListPresent(ctx context.Context) ([]Presence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.user_id, u.first_name, u.last_name, COALESCE(u.personal_email, ''), COALESCE(u.major, ''),
		       u.date_joined, u.date_left, u.education_plan, u.is_student, u.is_tutor,
		       e.uuid, e.date, e.time_in, e.time_out, e.forgotten, e.user_id, e.user_type
		FROM entries e
		JOIN users u ON u.user_id = e.user_id
		WHERE e.time_out IS NULL
		ORDER BY e.time_in
	`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var present []Presence
	for rows.Next() {
		var p Presence
		if err := rows.Scan(
			&p.User.UserID, &p.User.FirstName, &p.User.LastName, &p.User.PersonalEmail, &p.User.Major,
			&p.User.DateJoined, &p.User.DateLeft, &p.User.EducationPlan, &p.User.IsStudent, &p.User.IsTutor,
			&p.Entry.UUID, &p.Entry.Date, &p.Entry.TimeIn, &p.Entry.TimeOut, &p.Entry.Forgotten,
			&p.Entry.UserID, &p.Entry.UserType,
		); err != nil {
			return nil, storageErr(err)
		}
		present = append(present, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return present, nil
}

// RegisterKiosk ensures a kiosk record exists.
func (r *Repository) RegisterKiosk(ctx context.Context, kioskID string) error {
	if kioskID == "" {
		return errors.New("kiosk id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kiosks (kiosk_id) VALUES ($1)
		ON CONFLICT (kiosk_id) DO NOTHING
	`, kioskID)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, kioskID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, kiosk_id, expires_at) VALUES ($1, $2, $3)
	`, token, kioskID, expiresAt)
	if err != nil {
		return storageErr(err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UUID, &e.Date, &e.TimeIn, &e.TimeOut, &e.Forgotten, &e.UserID, &e.UserType); err != nil {
			return nil, storageErr(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return entries, nil
}
