package session

import "time"

// Type selects which lifespan pair of an origin governs a record.
type Type string

const (
	// TypeRefresh records use the origin's refresh-token lifespans.
	TypeRefresh Type = "refresh"
	// TypeSession records use the origin's session lifespans.
	TypeSession Type = "session"
)

// Valid reports whether t is a known record type.
func (t Type) Valid() bool {
	return t == TypeRefresh || t == TypeSession
}

// Status is the lifecycle state of a record. It only moves forward:
// active -> rotated or active -> revoked.
type Status string

const (
	StatusActive  Status = "active"
	StatusRotated Status = "rotated"
	StatusRevoked Status = "revoked"
)

// Record is one persisted link of a rotation chain.
//
// ChildID is empty until the record has been rotated. AbsoluteExpiresAt is set
// when the chain is created and copied unchanged to every descendant.
type Record struct {
	ID                string
	UserID            string
	SessionID         string
	DeviceID          string
	Origin            string
	ChildID           string
	Type              Type
	Status            Status
	ExpiresAt         time.Time
	AbsoluteExpiresAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.AbsoluteExpiresAt != nil {
		abs := *r.AbsoluteExpiresAt
		out.AbsoluteExpiresAt = &abs
	}
	return &out
}

// Rotated reports whether a successor has been recorded for r.
func (r *Record) Rotated() bool {
	return r != nil && r.ChildID != ""
}

// Update is a partial update; nil fields are left untouched.
type Update struct {
	Status    *Status
	ChildID   *string
	ExpiresAt *time.Time
}

func (u Update) apply(r *Record, now time.Time) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.ChildID != nil {
		r.ChildID = *u.ChildID
	}
	if u.ExpiresAt != nil {
		r.ExpiresAt = *u.ExpiresAt
	}
	r.UpdatedAt = now
}

// Filter selects records for bulk deletion. Empty fields match everything;
// at least one field must be set.
type Filter struct {
	UserID   string
	Origin   string
	DeviceID string
}

// Empty reports whether no field is set.
func (f Filter) Empty() bool {
	return f.UserID == "" && f.Origin == "" && f.DeviceID == ""
}

// Matches reports whether r satisfies every set field of f.
func (f Filter) Matches(r *Record) bool {
	if r == nil {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Origin != "" && r.Origin != f.Origin {
		return false
	}
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	return true
}
