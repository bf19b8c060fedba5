package session

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrStoreUnavailable wraps backend connectivity and protocol failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrRecordNotFound is returned by MarkRotated when the parent does not exist.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrRotationConflict is returned by MarkRotated when the parent already has a
	// child or is no longer active. The current parent record is returned with it.
	ErrRotationConflict = errors.New("session already rotated")
	// ErrEmptyFilter rejects DeleteBy calls that would match every record.
	ErrEmptyFilter = errors.New("empty session filter")
	// ErrDuplicateSessionID is returned by Create when the session id is taken.
	ErrDuplicateSessionID = errors.New("duplicate session id")
	// ErrInvalidRecord is returned by Create for records missing required fields.
	ErrInvalidRecord = errors.New("invalid session record")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("session record corrupt")
)

// Store persists session records. Implementations assign ID, CreatedAt and
// UpdatedAt on Create. Lookups and deletes of absent records are not errors.
type Store interface {
	Create(ctx context.Context, rec *Record) (*Record, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Record, error)
	UpdateBySessionID(ctx context.Context, sessionID string, update Update) error
	DeleteBySessionID(ctx context.Context, sessionID string) error
	// DeleteExpired removes records whose AbsoluteExpiresAt is before now.
	DeleteExpired(ctx context.Context) (int64, error)
	DeleteBy(ctx context.Context, filter Filter) (int64, error)
	// MarkRotated sets status=rotated and childId on an active parent that has no
	// child yet, atomically. It is the compare-and-swap that keeps a rotation
	// chain linear under concurrent rotation of the same parent.
	MarkRotated(ctx context.Context, parentSessionID, childSessionID string) (*Record, error)
}

func validateNew(rec *Record) error {
	if rec == nil || rec.SessionID == "" || rec.UserID == "" || rec.Origin == "" {
		return ErrInvalidRecord
	}
	if !rec.Type.Valid() {
		return ErrInvalidRecord
	}
	// NUL separates the owner fields kept by RedisStore.
	if strings.ContainsRune(rec.UserID+rec.Origin+rec.DeviceID, 0) {
		return ErrInvalidRecord
	}
	if len(rec.SessionID) > 255 || len(rec.UserID) > 255 || len(rec.Origin) > 255 || len(rec.DeviceID) > 255 || len(rec.ChildID) > 255 {
		return ErrInvalidRecord
	}
	return nil
}
