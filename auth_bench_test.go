package goSession

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkManager(b *testing.B, useRedis bool) *Manager {
	b.Helper()

	var store session.Store = session.NewMemoryStore(nil)
	if useRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis start: %v", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() {
			rdb.Close()
			mr.Close()
		})
		store = session.NewRedisStore(rdb, "bench")
	}

	m, err := NewManager(store, WithCleanupInterval(0))
	if err != nil {
		b.Fatalf("NewManager: %v", err)
	}
	b.Cleanup(m.Close)
	if err := m.DefineOrigin("admin", OriginConfig{
		JWTSecret:                "bench-secret",
		AccessTokenLifespan:      15 * time.Minute,
		IdleRefreshTokenLifespan: time.Hour,
		MaxRefreshTokenLifespan:  24 * time.Hour,
	}); err != nil {
		b.Fatalf("DefineOrigin: %v", err)
	}
	return m
}

func BenchmarkValidateAccessToken(b *testing.B) {
	m := newBenchmarkManager(b, false)
	ctx := context.Background()

	rt, err := m.GenerateRefreshToken(ctx, "alice", "", "admin")
	if err != nil {
		b.Fatalf("GenerateRefreshToken: %v", err)
	}
	access, err := m.GenerateAccessToken(ctx, rt.Token, "admin")
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if v, err := m.ValidateAccessToken(access.Token, "admin"); err != nil || !v.IsValid {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func benchmarkRotate(b *testing.B, useRedis bool) {
	m := newBenchmarkManager(b, useRedis)
	ctx := context.Background()

	rt, err := m.GenerateRefreshToken(ctx, "alice", "", "admin")
	if err != nil {
		b.Fatalf("GenerateRefreshToken: %v", err)
	}
	token := rt.Token

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := m.RotateRefreshToken(ctx, token, "admin")
		if err != nil || !res.OK() {
			b.Fatalf("rotate failed: %+v %v", res, err)
		}
		token = res.Token
	}
}

func BenchmarkRotateMemory(b *testing.B) { benchmarkRotate(b, false) }

func BenchmarkRotateRedis(b *testing.B) { benchmarkRotate(b, true) }

func BenchmarkGenerateRefreshTokenRedis(b *testing.B) {
	m := newBenchmarkManager(b, true)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.GenerateRefreshToken(ctx, "alice", "bench-device", "admin"); err != nil {
			b.Fatalf("GenerateRefreshToken: %v", err)
		}
	}
}
