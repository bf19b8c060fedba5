package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken wraps every verification failure: malformed input, bad signature,
// wrong algorithm, expired or not-yet-valid tokens, issuer/audience mismatch.
// Missing key material is reported as [*KeyError] instead.
var ErrInvalidToken = errors.New("invalid token")

// TokenType distinguishes refresh tokens from access tokens inside the payload.
type TokenType string

const (
	// TypeRefresh marks a stateful refresh token backed by a session record.
	TypeRefresh TokenType = "refresh"
	// TypeAccess marks a stateless access token.
	TypeAccess TokenType = "access"
)

// Claims is the payload of both token kinds.
//
// Extra holds pass-through custom claims from the origin configuration; they are
// written on sign and ignored on parse. Registered and session fields always win
// over an Extra entry with the same name.
type Claims struct {
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Type      TokenType      `json:"type"`
	Extra     map[string]any `json:"-"`
	jwt.RegisteredClaims
}

// MarshalJSON merges Extra into the encoded payload.
func (c Claims) MarshalJSON() ([]byte, error) {
	type plain Claims
	base, err := json.Marshal(plain(c))
	if err != nil || len(c.Extra) == 0 {
		return base, err
	}

	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]any, len(c.Extra)+len(fields))
	for k, v := range c.Extra {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Config is the per-origin signing configuration.
type Config struct {
	Algorithm string
	Keys      Keys
	Issuer    string
	Audience  string
	Subject   string
	KeyID     string
	Leeway    time.Duration
	Claims    map[string]any
	// Now overrides the clock used for exp/nbf/iat checks. Defaults to time.Now.
	Now func() time.Time
}

// Manager signs and verifies origin tokens. A Manager is immutable; replace it to
// change configuration.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// NewManager validates the algorithm and key family. It does not require key
// presence: missing keys fail on the first Sign or Parse.
func NewManager(cfg Config) (*Manager, error) {
	method, err := lookupMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.Keys == nil {
		keys, err := ResolveKeys(cfg.Algorithm, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		cfg.Keys = keys
	}
	if cfg.Keys.Family() != FamilyOf(cfg.Algorithm) {
		return nil, fmt.Errorf("%w: %s keys for %s algorithm %s", ErrInvalidKey, cfg.Keys.Family(), FamilyOf(cfg.Algorithm), cfg.Algorithm)
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	return &Manager{config: cfg, method: method}, nil
}

// Algorithm returns the configured JWS algorithm name.
func (j *Manager) Algorithm() string {
	return j.config.Algorithm
}

// Sign fills issuer, audience, subject and custom claims from the configuration
// and signs c. IssuedAt and ExpiresAt must already be set by the caller.
func (j *Manager) Sign(c Claims) (string, error) {
	key, err := j.SigningKey()
	if err != nil {
		return "", err
	}

	if j.config.Issuer != "" {
		c.Issuer = j.config.Issuer
	}
	if j.config.Audience != "" {
		c.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	if j.config.Subject != "" {
		c.Subject = j.config.Subject
	}
	if len(j.config.Claims) > 0 {
		extra := make(map[string]any, len(j.config.Claims)+len(c.Extra))
		for k, v := range j.config.Claims {
			extra[k] = v
		}
		for k, v := range c.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}

	token := jwt.NewWithClaims(j.method, c)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(key)
}

// Parse verifies tokenStr and returns its claims. Verification failures wrap
// [ErrInvalidToken]; missing key material returns a [*KeyError] before any parsing.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	key, err := j.VerifyingKey()
	if err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if j.config.Now != nil {
		options = append(options, jwt.WithTimeFunc(j.config.Now))
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}
	if j.config.Subject != "" {
		options = append(options, jwt.WithSubject(j.config.Subject))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// SigningKey selects the key used by Sign. The check runs on every call so a
// corrected configuration takes effect as soon as it is installed.
func (j *Manager) SigningKey() (interface{}, error) {
	switch keys := j.config.Keys.(type) {
	case SymmetricKeys:
		if len(keys.Secret) == 0 {
			return nil, &KeyError{Algorithm: j.config.Algorithm, Err: ErrSecretRequired}
		}
		return keys.Secret, nil
	case AsymmetricKeys:
		if keys.Private == nil {
			return nil, &KeyError{Algorithm: j.config.Algorithm, Err: ErrPrivateKeyRequired}
		}
		return keys.Private, nil
	default:
		return nil, fmt.Errorf("%w: unknown key set %T", ErrInvalidKey, j.config.Keys)
	}
}

// VerifyingKey selects the key used by Parse.
func (j *Manager) VerifyingKey() (interface{}, error) {
	switch keys := j.config.Keys.(type) {
	case SymmetricKeys:
		if len(keys.Secret) == 0 {
			return nil, &KeyError{Algorithm: j.config.Algorithm, Err: ErrSecretRequired}
		}
		return keys.Secret, nil
	case AsymmetricKeys:
		if keys.Public == nil {
			return nil, &KeyError{Algorithm: j.config.Algorithm, Err: ErrPublicKeyRequired}
		}
		return keys.Public, nil
	default:
		return nil, fmt.Errorf("%w: unknown key set %T", ErrInvalidKey, j.config.Keys)
	}
}

// Decode returns the claims of tokenStr without verifying anything. It must not be
// used for trust decisions.
func Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// NumericDate converts t to a JWT timestamp.
func NumericDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}

// Window returns registered claims carrying only iat and exp.
func Window(issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}
