package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Binary layout, version 1. The mutable rotation header comes first so the
// Redis compare-and-swap script can rewrite it without parsing the rest:
//
//	[0]     version
//	[1]     status
//	[2:10]  updatedAt (unix nanoseconds, big endian)
//	[10]    len(childId), followed by childId
//	...     id, userId, sessionId, deviceId, origin (each length-prefixed)
//	...     type, createdAt, expiresAt, absolute flag [+ absoluteExpiresAt]
const (
	recordFormatVersionCurrent = 1

	statusByteActive  = 1
	statusByteRotated = 2
	statusByteRevoked = 3

	typeByteRefresh = 1
	typeByteSession = 2
)

var (
	errRecordTooShort   = errors.New("session record too short")
	errRecordVersion    = errors.New("unsupported session record version")
	errRecordFieldValue = errors.New("invalid session record field")
)

// Encode serializes r into the compact binary form stored in Redis.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(96 + len(r.ID) + len(r.UserID) + len(r.SessionID) + len(r.DeviceID) + len(r.Origin) + len(r.ChildID))

	buf.WriteByte(recordFormatVersionCurrent)

	status, err := statusByte(r.Status)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(status)
	writeTime(&buf, r.UpdatedAt)

	for _, s := range []string{r.ChildID, r.ID, r.UserID, r.SessionID, r.DeviceID, r.Origin} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}

	switch r.Type {
	case TypeRefresh:
		buf.WriteByte(typeByteRefresh)
	case TypeSession:
		buf.WriteByte(typeByteSession)
	default:
		return nil, errRecordFieldValue
	}

	writeTime(&buf, r.CreatedAt)
	writeTime(&buf, r.ExpiresAt)
	if r.AbsoluteExpiresAt != nil {
		buf.WriteByte(1)
		writeTime(&buf, *r.AbsoluteExpiresAt)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// Decode parses the output of Encode.
func Decode(data []byte) (*Record, error) {
	if len(data) < 11 {
		return nil, errRecordTooShort
	}
	if data[0] != recordFormatVersionCurrent {
		return nil, errRecordVersion
	}

	r := bytes.NewReader(data[1:])
	rec := &Record{}

	status, err := r.ReadByte()
	if err != nil {
		return nil, errRecordTooShort
	}
	switch status {
	case statusByteActive:
		rec.Status = StatusActive
	case statusByteRotated:
		rec.Status = StatusRotated
	case statusByteRevoked:
		rec.Status = StatusRevoked
	default:
		return nil, errRecordFieldValue
	}

	if rec.UpdatedAt, err = readTime(r); err != nil {
		return nil, err
	}

	fields := []*string{&rec.ChildID, &rec.ID, &rec.UserID, &rec.SessionID, &rec.DeviceID, &rec.Origin}
	for _, f := range fields {
		if *f, err = readString(r); err != nil {
			return nil, err
		}
	}

	typ, err := r.ReadByte()
	if err != nil {
		return nil, errRecordTooShort
	}
	switch typ {
	case typeByteRefresh:
		rec.Type = TypeRefresh
	case typeByteSession:
		rec.Type = TypeSession
	default:
		return nil, errRecordFieldValue
	}

	if rec.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = readTime(r); err != nil {
		return nil, err
	}

	flag, err := r.ReadByte()
	if err != nil {
		return nil, errRecordTooShort
	}
	switch flag {
	case 0:
	case 1:
		abs, err := readTime(r)
		if err != nil {
			return nil, err
		}
		rec.AbsoluteExpiresAt = &abs
	default:
		return nil, errRecordFieldValue
	}

	if r.Len() != 0 {
		return nil, errRecordFieldValue
	}
	return rec, nil
}

func statusByte(s Status) (byte, error) {
	switch s {
	case StatusActive, "":
		return statusByteActive, nil
	case StatusRotated:
		return statusByteRotated, nil
	case StatusRevoked:
		return statusByteRevoked, nil
	default:
		return 0, errRecordFieldValue
	}
}

func encodeTime(t time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.UnixNano()))
	return b[:]
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	buf.Write(encodeTime(t))
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var n int64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return time.Time{}, errRecordTooShort
	}
	return time.Unix(0, n), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errRecordFieldValue
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", errRecordTooShort
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errRecordTooShort
	}
	return string(b), nil
}
