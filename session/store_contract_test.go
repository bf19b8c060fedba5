package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2031, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *testClock) Store

func newRedisStoreTest(t *testing.T, clock *testClock) (*RedisStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "gs", WithRedisClock(clock.Now)), mr, rdb
}

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *testClock) Store {
			return NewMemoryStore(clock.Now)
		},
		"redis": func(t *testing.T, clock *testClock) Store {
			store, _, _ := newRedisStoreTest(t, clock)
			return store
		},
	}
}

func testRecord(clock *testClock, sid, user, origin, device string) *Record {
	abs := clock.Now().Add(30 * 24 * time.Hour)
	return &Record{
		UserID:            user,
		SessionID:         sid,
		DeviceID:          device,
		Origin:            origin,
		Type:              TypeRefresh,
		ExpiresAt:         clock.Now().Add(14 * 24 * time.Hour),
		AbsoluteExpiresAt: &abs,
	}
}

func runStoreContract(t *testing.T, name string, test func(t *testing.T, store Store, clock *testClock)) {
	for kind, factory := range storeFactories() {
		t.Run(kind+"/"+name, func(t *testing.T) {
			clock := newTestClock()
			test(t, factory(t, clock), clock)
		})
	}
}

func TestStoreCreateAssignsIdentity(t *testing.T) {
	runStoreContract(t, "create", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		rec, err := store.Create(ctx, testRecord(clock, "sid-1", "u-1", "web", "d-1"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("expected storage-assigned id")
		}
		if !rec.CreatedAt.Equal(clock.Now()) || !rec.UpdatedAt.Equal(clock.Now()) {
			t.Fatalf("unexpected timestamps: created=%v updated=%v", rec.CreatedAt, rec.UpdatedAt)
		}
		if rec.Status != StatusActive || rec.ChildID != "" {
			t.Fatalf("expected fresh active record, got status=%q child=%q", rec.Status, rec.ChildID)
		}

		found, err := store.FindBySessionID(ctx, "sid-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found == nil || found.ID != rec.ID || found.UserID != "u-1" || found.DeviceID != "d-1" || found.Origin != "web" {
			t.Fatalf("unexpected record: %+v", found)
		}
		if found.AbsoluteExpiresAt == nil || !found.AbsoluteExpiresAt.Equal(*rec.AbsoluteExpiresAt) {
			t.Fatalf("absolute expiry not persisted: %+v", found.AbsoluteExpiresAt)
		}
		if !found.ExpiresAt.Equal(rec.ExpiresAt) {
			t.Fatalf("expiry mismatch: %v vs %v", found.ExpiresAt, rec.ExpiresAt)
		}

		if _, err := store.Create(ctx, testRecord(clock, "sid-1", "u-2", "web", "")); !errors.Is(err, ErrDuplicateSessionID) {
			t.Fatalf("expected ErrDuplicateSessionID, got %v", err)
		}
		if _, err := store.Create(ctx, &Record{SessionID: "sid-x", Origin: "web", Type: TypeRefresh}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord for missing user, got %v", err)
		}
		if _, err := store.Create(ctx, &Record{SessionID: "sid-y", UserID: "u", Origin: "web", Type: "bogus"}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord for bad type, got %v", err)
		}
		if _, err := store.Create(ctx, testRecord(clock, "sid-z", "u\x00x", "web", "")); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("expected ErrInvalidRecord for NUL in user id, got %v", err)
		}
	})
}

func TestStoreFindAbsentIsNotAnError(t *testing.T) {
	runStoreContract(t, "find-absent", func(t *testing.T, store Store, clock *testClock) {
		rec, err := store.FindBySessionID(context.Background(), "missing")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if rec != nil {
			t.Fatalf("expected nil record, got %+v", rec)
		}
	})
}

func TestStoreUpdateMergesFields(t *testing.T) {
	runStoreContract(t, "update", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		if _, err := store.Create(ctx, testRecord(clock, "sid-1", "u-1", "web", "")); err != nil {
			t.Fatalf("create: %v", err)
		}

		clock.Advance(time.Minute)
		revoked := StatusRevoked
		if err := store.UpdateBySessionID(ctx, "sid-1", Update{Status: &revoked}); err != nil {
			t.Fatalf("update: %v", err)
		}

		rec, err := store.FindBySessionID(ctx, "sid-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if rec.Status != StatusRevoked {
			t.Fatalf("expected revoked, got %q", rec.Status)
		}
		if rec.UserID != "u-1" || rec.Origin != "web" {
			t.Fatalf("update clobbered fields: %+v", rec)
		}
		if !rec.UpdatedAt.Equal(clock.Now()) {
			t.Fatalf("expected updatedAt bump, got %v", rec.UpdatedAt)
		}

		if err := store.UpdateBySessionID(ctx, "missing", Update{Status: &revoked}); err != nil {
			t.Fatalf("update of absent record should be a no-op, got %v", err)
		}
	})
}

func TestStoreDeleteIdempotent(t *testing.T) {
	runStoreContract(t, "delete", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		if _, err := store.Create(ctx, testRecord(clock, "sid-1", "u-1", "web", "d-1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := store.DeleteBySessionID(ctx, "sid-1"); err != nil {
			t.Fatalf("first delete: %v", err)
		}
		if err := store.DeleteBySessionID(ctx, "sid-1"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if rec, _ := store.FindBySessionID(ctx, "sid-1"); rec != nil {
			t.Fatalf("record survived delete: %+v", rec)
		}
		n, err := store.DeleteBy(ctx, Filter{UserID: "u-1"})
		if err != nil {
			t.Fatalf("delete by user: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected no leftover index entries, deleted %d", n)
		}
	})
}

func TestStoreDeleteExpiredUsesAbsoluteExpiry(t *testing.T) {
	runStoreContract(t, "delete-expired", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()

		short := testRecord(clock, "sid-short", "u-1", "web", "")
		shortAbs := clock.Now().Add(time.Hour)
		short.AbsoluteExpiresAt = &shortAbs
		short.ExpiresAt = shortAbs

		long := testRecord(clock, "sid-long", "u-1", "web", "")

		noAbs := testRecord(clock, "sid-noabs", "u-1", "web", "")
		noAbs.AbsoluteExpiresAt = nil
		noAbs.ExpiresAt = clock.Now().Add(time.Minute)

		for _, rec := range []*Record{short, long, noAbs} {
			if _, err := store.Create(ctx, rec); err != nil {
				t.Fatalf("create %s: %v", rec.SessionID, err)
			}
		}

		n, err := store.DeleteExpired(ctx)
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}
		if n != 0 {
			t.Fatalf("nothing should be expired yet, deleted %d", n)
		}

		clock.Advance(2 * time.Hour)
		n, err = store.DeleteExpired(ctx)
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected one expired record, deleted %d", n)
		}
		if rec, _ := store.FindBySessionID(ctx, "sid-short"); rec != nil {
			t.Fatal("expired record still present")
		}
		if rec, _ := store.FindBySessionID(ctx, "sid-long"); rec == nil {
			t.Fatal("unexpired record removed")
		}
		if rec, _ := store.FindBySessionID(ctx, "sid-noabs"); rec == nil {
			t.Fatal("record without absolute expiry removed")
		}
	})
}

func TestStoreDeleteByFilters(t *testing.T) {
	runStoreContract(t, "delete-by", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		seed := []*Record{
			testRecord(clock, "a1", "alice", "web", "laptop"),
			testRecord(clock, "a2", "alice", "web", "phone"),
			testRecord(clock, "a3", "alice", "mobile", "phone"),
			testRecord(clock, "b1", "bob", "web", "laptop"),
		}
		for _, rec := range seed {
			if _, err := store.Create(ctx, rec); err != nil {
				t.Fatalf("create %s: %v", rec.SessionID, err)
			}
		}

		if _, err := store.DeleteBy(ctx, Filter{}); !errors.Is(err, ErrEmptyFilter) {
			t.Fatalf("expected ErrEmptyFilter, got %v", err)
		}

		n, err := store.DeleteBy(ctx, Filter{UserID: "alice", Origin: "web", DeviceID: "phone"})
		if err != nil {
			t.Fatalf("delete by user+origin+device: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 deletion, got %d", n)
		}

		n, err = store.DeleteBy(ctx, Filter{UserID: "alice", Origin: "web"})
		if err != nil {
			t.Fatalf("delete by user+origin: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 deletion, got %d", n)
		}

		for _, sid := range []string{"a3", "b1"} {
			if rec, _ := store.FindBySessionID(ctx, sid); rec == nil {
				t.Fatalf("record %s should survive", sid)
			}
		}

		n, err = store.DeleteBy(ctx, Filter{DeviceID: "laptop"})
		if err != nil {
			t.Fatalf("delete by device: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 deletion, got %d", n)
		}
	})
}

func TestStoreMarkRotatedCompareAndSwap(t *testing.T) {
	runStoreContract(t, "mark-rotated", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		if _, err := store.Create(ctx, testRecord(clock, "parent", "u-1", "web", "")); err != nil {
			t.Fatalf("create: %v", err)
		}

		clock.Advance(time.Second)
		rec, err := store.MarkRotated(ctx, "parent", "child-1")
		if err != nil {
			t.Fatalf("mark rotated: %v", err)
		}
		if rec.Status != StatusRotated || rec.ChildID != "child-1" {
			t.Fatalf("unexpected rotated record: %+v", rec)
		}
		if !rec.UpdatedAt.Equal(clock.Now()) {
			t.Fatalf("expected updatedAt %v, got %v", clock.Now(), rec.UpdatedAt)
		}

		rec, err = store.MarkRotated(ctx, "parent", "child-2")
		if !errors.Is(err, ErrRotationConflict) {
			t.Fatalf("expected ErrRotationConflict, got %v", err)
		}
		if rec == nil || rec.ChildID != "child-1" {
			t.Fatalf("conflict must return the current parent, got %+v", rec)
		}

		found, err := store.FindBySessionID(ctx, "parent")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.ChildID != "child-1" || found.UserID != "u-1" || found.AbsoluteExpiresAt == nil {
			t.Fatalf("rotation damaged record: %+v", found)
		}

		if _, err := store.MarkRotated(ctx, "missing", "child"); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func TestStoreMarkRotatedRejectsRevoked(t *testing.T) {
	runStoreContract(t, "mark-rotated-revoked", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		if _, err := store.Create(ctx, testRecord(clock, "parent", "u-1", "web", "")); err != nil {
			t.Fatalf("create: %v", err)
		}
		revoked := StatusRevoked
		if err := store.UpdateBySessionID(ctx, "parent", Update{Status: &revoked}); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		rec, err := store.MarkRotated(ctx, "parent", "child")
		if !errors.Is(err, ErrRotationConflict) {
			t.Fatalf("expected ErrRotationConflict, got %v", err)
		}
		if rec.ChildID != "" || rec.Status != StatusRevoked {
			t.Fatalf("revoked parent must be untouched: %+v", rec)
		}
	})
}

func TestStoreMarkRotatedSingleWinner(t *testing.T) {
	runStoreContract(t, "mark-rotated-race", func(t *testing.T, store Store, clock *testClock) {
		ctx := context.Background()
		if _, err := store.Create(ctx, testRecord(clock, "parent", "u-1", "web", "")); err != nil {
			t.Fatalf("create: %v", err)
		}

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			child := "child-" + string(rune('a'+i))
			go func() {
				defer wg.Done()
				_, err := store.MarkRotated(ctx, "parent", child)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		success := 0
		for err := range results {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, ErrRotationConflict) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if success != 1 {
			t.Fatalf("expected exactly one winner, got %d", success)
		}
	})
}
