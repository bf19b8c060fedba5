package goSession

import (
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// TokenError is the value-typed failure reported by token exchange operations.
// Callers branch on it; it is never returned as an error.
type TokenError string

const (
	// ErrorInvalidRefreshToken covers malformed, forged, expired, revoked and
	// unknown refresh tokens.
	ErrorInvalidRefreshToken TokenError = "invalid_refresh_token"
	// ErrorIdleWindowElapsed is reported by rotation when the token sat unused
	// longer than the idle lifespan.
	ErrorIdleWindowElapsed TokenError = "idle_window_elapsed"
	// ErrorMaxWindowElapsed is reported by rotation when the chain outlived its
	// absolute lifespan.
	ErrorMaxWindowElapsed TokenError = "max_window_elapsed"
)

// RefreshToken is the result of GenerateRefreshToken.
type RefreshToken struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	// AbsoluteExpiresAt is the chain's hard expiry as an ISO-8601 UTC timestamp
	// with millisecond precision.
	AbsoluteExpiresAt string `json:"absoluteExpiresAt"`
}

// AccessValidation is the verdict of ValidateAccessToken. Payload is nil when
// the token is not valid.
type AccessValidation struct {
	IsValid bool        `json:"isValid"`
	Payload *jwt.Claims `json:"payload"`
}

// RefreshValidation is the verdict of ValidateRefreshToken.
type RefreshValidation struct {
	IsValid   bool   `json:"isValid"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// AccessToken is the result of GenerateAccessToken. Exactly one of Token and
// Error is set.
type AccessToken struct {
	Token string     `json:"token,omitempty"`
	Error TokenError `json:"error,omitempty"`
}

// RotationResult is the result of RotateRefreshToken. Error is empty on success.
type RotationResult struct {
	Token             string     `json:"token,omitempty"`
	SessionID         string     `json:"sessionId,omitempty"`
	AbsoluteExpiresAt string     `json:"absoluteExpiresAt,omitempty"`
	Error             TokenError `json:"error,omitempty"`
}

// OK reports whether the rotation produced a token.
func (r RotationResult) OK() bool {
	return r.Error == "" && r.Token != ""
}

type refreshOptions struct {
	sessionType session.Type
}

// RefreshOption customizes GenerateRefreshToken.
type RefreshOption func(*refreshOptions)

// WithSessionType selects which lifespan pair governs the new chain. The default
// is session.TypeRefresh. Any value other than session.TypeRefresh or
// session.TypeSession makes GenerateRefreshToken fail with ErrInvalidSessionType.
func WithSessionType(t session.Type) RefreshOption {
	return func(o *refreshOptions) {
		o.sessionType = t
	}
}
