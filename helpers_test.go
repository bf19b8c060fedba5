package goSession

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// adminConfig mirrors a typical admin origin: one-hour access tokens,
// day-long idle refresh window, thirty-day chains.
func adminConfig() OriginConfig {
	return OriginConfig{
		JWTSecret:                "s",
		AccessTokenLifespan:      3600 * time.Second,
		IdleRefreshTokenLifespan: 86400 * time.Second,
		MaxRefreshTokenLifespan:  2592000 * time.Second,
		IdleSessionLifespan:      1800 * time.Second,
		MaxSessionLifespan:       3600 * time.Second,
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *session.MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := session.NewMemoryStore(clock.Now)
	m, err := NewManager(store, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	if err := m.DefineOrigin("admin", adminConfig()); err != nil {
		t.Fatalf("DefineOrigin: %v", err)
	}
	return m, store, clock
}

func newRedisTestManager(t *testing.T, opts ...Option) (*Manager, *redis.Client, *fakeClock) {
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

	clock := newFakeClock()
	store := session.NewRedisStore(rdb, "gs-test", session.WithRedisClock(clock.Now))
	m, err := NewManager(store, append([]Option{WithClock(clock.Now)}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	if err := m.DefineOrigin("admin", adminConfig()); err != nil {
		t.Fatalf("DefineOrigin: %v", err)
	}
	return m, rdb, clock
}

func mustRefresh(t *testing.T, m *Manager, userID, deviceID, origin string, opts ...RefreshOption) *RefreshToken {
	t.Helper()
	rt, err := m.GenerateRefreshToken(context.Background(), userID, deviceID, origin, opts...)
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	return rt
}

func mustRotate(t *testing.T, m *Manager, token, origin string) RotationResult {
	t.Helper()
	res, err := m.RotateRefreshToken(context.Background(), token, origin)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	return res
}

func newRSAPEM(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal rsa public key: %v", err)
	}
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(priv), string(pub)
}

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	return key
}

// faultyStore wraps a Store and injects failures.
type faultyStore struct {
	session.Store
	findErr     error
	panicOnFind bool

	deleteExpiredErr   error
	deleteExpiredCalls atomic.Int64
}

func (s *faultyStore) FindBySessionID(ctx context.Context, sessionID string) (*session.Record, error) {
	if s.panicOnFind {
		panic("store exploded")
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.FindBySessionID(ctx, sessionID)
}

func (s *faultyStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.deleteExpiredCalls.Add(1)
	if s.deleteExpiredErr != nil {
		return 0, s.deleteExpiredErr
	}
	return s.Store.DeleteExpired(ctx)
}
