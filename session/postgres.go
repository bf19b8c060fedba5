package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the sessions table used by [PostgresStore].
const Schema = `
CREATE TABLE IF NOT EXISTS gosession_sessions (
	id                  uuid PRIMARY KEY,
	session_id          text NOT NULL UNIQUE,
	user_id             text NOT NULL,
	device_id           text NOT NULL DEFAULT '',
	origin              text NOT NULL,
	child_id            text,
	type                text NOT NULL,
	status              text NOT NULL DEFAULT 'active',
	expires_at          timestamptz NOT NULL,
	absolute_expires_at timestamptz,
	created_at          timestamptz NOT NULL,
	updated_at          timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS gosession_sessions_owner_idx
	ON gosession_sessions (user_id, origin, device_id);

CREATE INDEX IF NOT EXISTS gosession_sessions_absolute_idx
	ON gosession_sessions (absolute_expires_at)
	WHERE absolute_expires_at IS NOT NULL;
`

const recordColumns = `
	id, session_id, user_id, device_id, origin, child_id, type, status,
	expires_at, absolute_expires_at, created_at, updated_at`

const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a Postgres-backed store. now defaults to time.Now.
func NewPostgresStore(pool *pgxpool.Pool, now func() time.Time) *PostgresStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{pool: pool, now: now}
}

// Migrate applies [Schema]. It is safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return unavailable(err)
	}
	return nil
}

// Create inserts rec. A unique violation on session_id maps to
// ErrDuplicateSessionID.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if err := validateNew(rec); err != nil {
		return nil, err
	}

	stored := rec.Clone()
	now := s.now().UTC()
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = StatusActive
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO gosession_sessions (`+recordColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $11
		)
	`,
		stored.ID, stored.SessionID, stored.UserID, stored.DeviceID, stored.Origin,
		nullIfEmpty(stored.ChildID), string(stored.Type), string(stored.Status),
		stored.ExpiresAt, stored.AbsoluteExpiresAt, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateSessionID
		}
		return nil, unavailable(err)
	}

	return stored, nil
}

// FindBySessionID returns (nil, nil) when no row matches.
func (s *PostgresStore) FindBySessionID(ctx context.Context, sessionID string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM gosession_sessions
		WHERE session_id = $1
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

// UpdateBySessionID sets only the fields present in update.
func (s *PostgresStore) UpdateBySessionID(ctx context.Context, sessionID string, update Update) error {
	args := []any{sessionID, s.now().UTC()}
	sets := []string{"updated_at = $2"}

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.ChildID != nil {
		args = append(args, nullIfEmpty(*update.ChildID))
		sets = append(sets, fmt.Sprintf("child_id = $%d", len(args)))
	}
	if update.ExpiresAt != nil {
		args = append(args, *update.ExpiresAt)
		sets = append(sets, fmt.Sprintf("expires_at = $%d", len(args)))
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE gosession_sessions
		SET `+strings.Join(sets, ", ")+`
		WHERE session_id = $1
	`, args...)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteBySessionID deletes the row if present.
func (s *PostgresStore) DeleteBySessionID(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM gosession_sessions WHERE session_id = $1`, sessionID); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpired deletes rows whose absolute expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM gosession_sessions
		WHERE absolute_expires_at IS NOT NULL AND absolute_expires_at < $1
	`, s.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBy deletes rows matching every non-empty filter field.
func (s *PostgresStore) DeleteBy(ctx context.Context, filter Filter) (int64, error) {
	if filter.Empty() {
		return 0, ErrEmptyFilter
	}

	var (
		args  []any
		conds []string
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", filter.UserID)
	add("origin", filter.Origin)
	add("device_id", filter.DeviceID)

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM gosession_sessions
		WHERE `+strings.Join(conds, " AND "), args...)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// MarkRotated links parent to child with a conditional UPDATE; the row lock taken
// by the UPDATE serializes concurrent rotations of the same parent.
func (s *PostgresStore) MarkRotated(ctx context.Context, parentSessionID, childSessionID string) (*Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		UPDATE gosession_sessions
		SET status = 'rotated', child_id = $2, updated_at = $3
		WHERE session_id = $1 AND child_id IS NULL AND status = 'active'
		RETURNING `+recordColumns,
		parentSessionID, childSessionID, s.now().UTC(),
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	current, err := s.FindBySessionID(ctx, parentSessionID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrRecordNotFound
	}
	return current, ErrRotationConflict
}

// Ping checks pool connectivity.
func (s *PostgresStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec     Record
		childID *string
		typ     string
		status  string
	)
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.UserID,
		&rec.DeviceID,
		&rec.Origin,
		&childID,
		&typ,
		&status,
		&rec.ExpiresAt,
		&rec.AbsoluteExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if childID != nil {
		rec.ChildID = *childID
	}
	rec.Type = Type(typ)
	rec.Status = Status(status)
	return &rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
