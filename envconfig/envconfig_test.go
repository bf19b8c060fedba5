package envconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GS_ADMIN_JWT_SECRET", "admin-secret")
	t.Setenv("GS_ADMIN_JWT_ALGORITHM", "HS384")
	t.Setenv("GS_ADMIN_ACCESS_TOKEN_LIFESPAN", "3600")
	t.Setenv("GS_ADMIN_IDLE_REFRESH_TOKEN_LIFESPAN", "24h")
	t.Setenv("GS_ADMIN_JWT_ISSUER", "auth.example")
	t.Setenv("GS_ADMIN_JWT_LEEWAY", "30s")

	l, err := New("gs")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	configs, err := l.Load("admin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := configs["admin"]
	if cfg.JWTSecret != "admin-secret" || cfg.Algorithm != "HS384" {
		t.Fatalf("unexpected signing config: %+v", cfg)
	}
	if cfg.AccessTokenLifespan != time.Hour || cfg.IdleRefreshTokenLifespan != 24*time.Hour {
		t.Fatalf("unexpected lifespans: access=%v idle=%v", cfg.AccessTokenLifespan, cfg.IdleRefreshTokenLifespan)
	}
	if cfg.MaxRefreshTokenLifespan != 0 {
		t.Fatalf("unset lifespan must stay zero, got %v", cfg.MaxRefreshTokenLifespan)
	}
	if cfg.JWTOptions.Issuer != "auth.example" || cfg.JWTOptions.Leeway != 30*time.Second {
		t.Fatalf("unexpected jwt options: %+v", cfg.JWTOptions)
	}
}

func TestLoadOriginsListAndNameMangling(t *testing.T) {
	t.Setenv("APP_ORIGINS", "admin, mobile-app ,")
	t.Setenv("APP_ADMIN_JWT_SECRET", "a")
	t.Setenv("APP_MOBILE_APP_JWT_SECRET", "m")

	l, err := New("app")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	configs, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(configs) != 2 || configs["admin"].JWTSecret != "a" || configs["mobile-app"].JWTSecret != "m" {
		t.Fatalf("unexpected configs: %+v", configs)
	}
}

func TestLoadWithoutOrigins(t *testing.T) {
	l, err := New("nothing_set_here")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Load(); !errors.Is(err, ErrNoOrigins) {
		t.Fatalf("expected ErrNoOrigins, got %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("GS_WEB_MAX_SESSION_LIFESPAN", "forever")

	l, err := New("gs")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Load("web"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestEnvFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	content := "GS_API_JWT_SECRET=from-file\nGS_API_JWT_AUDIENCE=file-aud\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GS_API_JWT_SECRET", "from-env")

	l, err := New("gs", WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	configs, err := l.Load("api")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if configs["api"].JWTSecret != "from-env" {
		t.Fatalf("environment must override file, got %q", configs["api"].JWTSecret)
	}
	if configs["api"].JWTOptions.Audience != "file-aud" {
		t.Fatalf("expected audience from file, got %q", configs["api"].JWTOptions.Audience)
	}

	if _, err := New("gs", WithEnvFile(filepath.Join(dir, "missing.env"))); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}

func TestKeyFilesAndEscapedPEM(t *testing.T) {
	dir := t.TempDir()
	pubPath := filepath.Join(dir, "pub.pem")
	if err := os.WriteFile(pubPath, []byte("PUBLIC"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	t.Setenv("GS_RS_JWT_PRIVATE_KEY", `line1\nline2`)
	t.Setenv("GS_RS_JWT_PUBLIC_KEY_FILE", pubPath)
	t.Setenv("GS_BAD_JWT_PUBLIC_KEY_FILE", filepath.Join(dir, "nope.pem"))

	l, err := New("gs")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	configs, err := l.Load("rs")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := configs["rs"].JWTOptions
	if opts.PrivateKey != "line1\nline2" {
		t.Fatalf("escaped newlines not expanded: %q", opts.PrivateKey)
	}
	if string(opts.PublicKey.([]byte)) != "PUBLIC" {
		t.Fatalf("public key file not read: %v", opts.PublicKey)
	}

	if _, err := l.Load("bad"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for missing key file, got %v", err)
	}
}

func TestApplyDefinesOrigins(t *testing.T) {
	t.Setenv("GS_ADMIN_JWT_SECRET", "s")
	t.Setenv("GS_ADMIN_IDLE_SESSION_LIFESPAN", "30m")

	configs, err := Load("gs", "admin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	m, err := goSession.NewManager(session.NewMemoryStore(nil))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()
	if err := Apply(m, configs); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rt, err := m.GenerateRefreshToken(context.Background(), "u1", "", "admin")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if v, err := m.ValidateRefreshToken(context.Background(), rt.Token, "admin"); err != nil || !v.IsValid {
		t.Fatalf("token from env-configured origin must validate: %+v %v", v, err)
	}

	cfg, _ := m.OriginConfig("admin")
	if cfg.IdleSessionLifespan != 30*time.Minute || cfg.MaxSessionLifespan != goSession.DefaultMaxSessionLifespan {
		t.Fatalf("unexpected effective config: %+v", cfg)
	}
}
