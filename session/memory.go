package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It is safe for concurrent use and
// suits tests and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore returns an empty store. now defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     now,
	}
}

// Create stores a copy of rec with a fresh ID and timestamps.
func (s *MemoryStore) Create(_ context.Context, rec *Record) (*Record, error) {
	if err := validateNew(rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.SessionID]; exists {
		return nil, ErrDuplicateSessionID
	}

	stored := rec.Clone()
	now := s.now()
	stored.ID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Status == "" {
		stored.Status = StatusActive
	}
	s.records[stored.SessionID] = stored

	return stored.Clone(), nil
}

// FindBySessionID returns a copy of the record, or (nil, nil) when absent.
func (s *MemoryStore) FindBySessionID(_ context.Context, sessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records[sessionID].Clone(), nil
}

// UpdateBySessionID applies update in place. Absent records are a no-op.
func (s *MemoryStore) UpdateBySessionID(_ context.Context, sessionID string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil
	}
	update.apply(rec, s.now())
	return nil
}

// DeleteBySessionID removes the record if present.
func (s *MemoryStore) DeleteBySessionID(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, sessionID)
	return nil
}

// DeleteExpired removes records whose absolute expiry has passed.
func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for id, rec := range s.records {
		if rec.AbsoluteExpiresAt != nil && rec.AbsoluteExpiresAt.Before(now) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteBy removes every record matching filter.
func (s *MemoryStore) DeleteBy(_ context.Context, filter Filter) (int64, error) {
	if filter.Empty() {
		return 0, ErrEmptyFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.records {
		if filter.Matches(rec) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// MarkRotated links parent to child under the store mutex.
func (s *MemoryStore) MarkRotated(_ context.Context, parentSessionID, childSessionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[parentSessionID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	if rec.ChildID != "" || rec.Status != StatusActive {
		return rec.Clone(), ErrRotationConflict
	}

	rec.Status = StatusRotated
	rec.ChildID = childSessionID
	rec.UpdatedAt = s.now()
	return rec.Clone(), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
