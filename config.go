package goSession

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// DefaultAlgorithm is used when an origin does not name one.
const DefaultAlgorithm = "HS256"

// Lifespan defaults applied to zero fields of an OriginConfig.
const (
	DefaultAccessTokenLifespan      = time.Hour
	DefaultIdleRefreshTokenLifespan = 14 * 24 * time.Hour
	DefaultMaxRefreshTokenLifespan  = 30 * 24 * time.Hour
	DefaultIdleSessionLifespan      = 2 * time.Hour
	DefaultMaxSessionLifespan       = 24 * time.Hour
)

// OriginConfig is the signing and lifetime configuration of one origin.
//
// JWTSecret is used by symmetric algorithms; asymmetric algorithms read
// JWTOptions.PrivateKey and JWTOptions.PublicKey instead. Key presence is not
// checked here: a missing key fails the first sign or verify that needs it.
type OriginConfig struct {
	JWTSecret                string
	Algorithm                string
	AccessTokenLifespan      time.Duration
	MaxRefreshTokenLifespan  time.Duration
	IdleRefreshTokenLifespan time.Duration
	MaxSessionLifespan       time.Duration
	IdleSessionLifespan      time.Duration
	JWTOptions               JWTOptions
}

// JWTOptions are passed through to token signing and verification.
//
// PrivateKey and PublicKey accept PEM text (string or []byte) or parsed crypto
// keys. Claims are added to every token the origin signs.
type JWTOptions struct {
	PrivateKey any
	PublicKey  any
	Issuer     string
	Audience   string
	Subject    string
	KeyID      string
	Leeway     time.Duration
	Claims     map[string]any
}

// DefaultOriginConfig returns an HS256 configuration with default lifespans and
// no key material.
func DefaultOriginConfig() OriginConfig {
	return OriginConfig{
		Algorithm:                DefaultAlgorithm,
		AccessTokenLifespan:      DefaultAccessTokenLifespan,
		MaxRefreshTokenLifespan:  DefaultMaxRefreshTokenLifespan,
		IdleRefreshTokenLifespan: DefaultIdleRefreshTokenLifespan,
		MaxSessionLifespan:       DefaultMaxSessionLifespan,
		IdleSessionLifespan:      DefaultIdleSessionLifespan,
	}
}

func (c OriginConfig) withDefaults() OriginConfig {
	def := DefaultOriginConfig()
	c.Algorithm = strings.TrimSpace(c.Algorithm)
	if c.Algorithm == "" {
		c.Algorithm = def.Algorithm
	}
	if c.AccessTokenLifespan == 0 {
		c.AccessTokenLifespan = def.AccessTokenLifespan
	}
	if c.MaxRefreshTokenLifespan == 0 {
		c.MaxRefreshTokenLifespan = def.MaxRefreshTokenLifespan
	}
	if c.IdleRefreshTokenLifespan == 0 {
		c.IdleRefreshTokenLifespan = def.IdleRefreshTokenLifespan
	}
	if c.MaxSessionLifespan == 0 {
		c.MaxSessionLifespan = def.MaxSessionLifespan
	}
	if c.IdleSessionLifespan == 0 {
		c.IdleSessionLifespan = def.IdleSessionLifespan
	}
	if len(c.JWTOptions.Claims) > 0 {
		claims := make(map[string]any, len(c.JWTOptions.Claims))
		for k, v := range c.JWTOptions.Claims {
			claims[k] = v
		}
		c.JWTOptions.Claims = claims
	}
	return c
}

// Validate checks lifespans after defaults are applied. Key material is
// validated by DefineOrigin when it parses the keys.
func (c OriginConfig) Validate() error {
	c = c.withDefaults()

	lifespans := []struct {
		name  string
		value time.Duration
	}{
		{"access token lifespan", c.AccessTokenLifespan},
		{"max refresh token lifespan", c.MaxRefreshTokenLifespan},
		{"idle refresh token lifespan", c.IdleRefreshTokenLifespan},
		{"max session lifespan", c.MaxSessionLifespan},
		{"idle session lifespan", c.IdleSessionLifespan},
	}
	for _, l := range lifespans {
		if l.value < 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidOriginConfig, l.name)
		}
	}

	if c.IdleRefreshTokenLifespan > c.MaxRefreshTokenLifespan {
		return fmt.Errorf("%w: idle refresh token lifespan exceeds max refresh token lifespan", ErrInvalidOriginConfig)
	}
	if c.IdleSessionLifespan > c.MaxSessionLifespan {
		return fmt.Errorf("%w: idle session lifespan exceeds max session lifespan", ErrInvalidOriginConfig)
	}
	if c.JWTOptions.Leeway < 0 {
		return fmt.Errorf("%w: leeway must not be negative", ErrInvalidOriginConfig)
	}
	return nil
}

// lifespans returns the idle and max lifespan governing records of type t.
func (c OriginConfig) lifespans(t session.Type) (idle, max time.Duration) {
	if t == session.TypeSession {
		return c.IdleSessionLifespan, c.MaxSessionLifespan
	}
	return c.IdleRefreshTokenLifespan, c.MaxRefreshTokenLifespan
}

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}
