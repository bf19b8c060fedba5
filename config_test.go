package goSession

import (
	"errors"
	"testing"
	"time"
)

func TestOriginConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     OriginConfig
		wantErr bool
	}{
		{name: "zero value uses defaults", cfg: OriginConfig{}},
		{name: "typical", cfg: adminConfig()},
		{name: "idle equals max", cfg: OriginConfig{IdleRefreshTokenLifespan: time.Hour, MaxRefreshTokenLifespan: time.Hour}},
		{name: "negative access", cfg: OriginConfig{AccessTokenLifespan: -1}, wantErr: true},
		{name: "negative idle session", cfg: OriginConfig{IdleSessionLifespan: -time.Minute}, wantErr: true},
		{name: "idle refresh over max", cfg: OriginConfig{IdleRefreshTokenLifespan: 2 * time.Hour, MaxRefreshTokenLifespan: time.Hour}, wantErr: true},
		{name: "idle refresh over default max", cfg: OriginConfig{IdleRefreshTokenLifespan: 60 * 24 * time.Hour}, wantErr: true},
		{name: "idle session over max", cfg: OriginConfig{IdleSessionLifespan: 3 * time.Hour, MaxSessionLifespan: 2 * time.Hour}, wantErr: true},
		{name: "negative leeway", cfg: OriginConfig{JWTOptions: JWTOptions{Leeway: -time.Second}}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidOriginConfig) {
					t.Fatalf("expected ErrInvalidOriginConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOriginConfigDefaultsDoNotAlias(t *testing.T) {
	claims := map[string]any{"tenant": "a"}
	cfg := OriginConfig{Algorithm: "  HS384 ", JWTOptions: JWTOptions{Claims: claims}}.withDefaults()

	if cfg.Algorithm != "HS384" {
		t.Fatalf("algorithm not trimmed: %q", cfg.Algorithm)
	}
	claims["tenant"] = "b"
	if cfg.JWTOptions.Claims["tenant"] != "a" {
		t.Fatal("custom claims must be copied")
	}
	if got := DefaultOriginConfig(); got.Algorithm != DefaultAlgorithm || got.MaxRefreshTokenLifespan != DefaultMaxRefreshTokenLifespan {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestSessionTypeLifespans(t *testing.T) {
	cfg := adminConfig().withDefaults()

	idle, max := cfg.lifespans("refresh")
	if idle != 86400*time.Second || max != 2592000*time.Second {
		t.Fatalf("refresh lifespans: %v %v", idle, max)
	}
	idle, max = cfg.lifespans("session")
	if idle != 1800*time.Second || max != 3600*time.Second {
		t.Fatalf("session lifespans: %v %v", idle, max)
	}
}
