package session

import (
	"testing"
	"time"
)

// FuzzRecordDecode feeds arbitrary bytes to the record decoder. It must never panic,
// and anything it accepts must survive a re-encode unchanged.
func FuzzRecordDecode(f *testing.F) {
	abs := time.Unix(1900000000, 0)
	rec := &Record{
		ID:                "0f0e0d0c-0b0a-4908-8706-050403020100",
		UserID:            "user1",
		SessionID:         "sid-fuzz",
		DeviceID:          "device1",
		Origin:            "web",
		ChildID:           "sid-child",
		Type:              TypeRefresh,
		Status:            StatusRotated,
		ExpiresAt:         time.Unix(1700003600, 0),
		AbsoluteExpiresAt: &abs,
		CreatedAt:         time.Unix(1700000000, 0),
		UpdatedAt:         time.Unix(1700000100, 0),
	}
	encoded, err := Encode(rec)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})
	if len(encoded) > 10 {
		f.Add(encoded[:10])
	}
	if len(encoded) > 30 {
		f.Add(encoded[:30])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		decoded, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(decoded); err != nil {
			t.Fatalf("re-encode of decoded record failed: %v", err)
		}
	})
}
