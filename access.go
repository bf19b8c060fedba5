package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/jwt"
)

// GenerateAccessToken validates refreshToken and, when it is usable, signs a
// short-lived access token for the same user and session. An unusable refresh
// token is reported as ErrorInvalidRefreshToken in the result.
//
// Access tokens are not persisted; their iat and exp come from the current time.
func (m *Manager) GenerateAccessToken(ctx context.Context, refreshToken, origin string) (AccessToken, error) {
	st, err := m.lookup(origin)
	if err != nil {
		return AccessToken{}, err
	}

	_, rec, _, err := m.validateRefresh(ctx, st, refreshToken)
	if err != nil {
		return AccessToken{}, err
	}
	if rec == nil {
		m.metrics.Inc(MetricRefreshInvalid)
		return AccessToken{Error: ErrorInvalidRefreshToken}, nil
	}

	now := m.now()
	token, err := st.tokens.Sign(jwt.Claims{
		UserID:           rec.UserID,
		SessionID:        rec.SessionID,
		Type:             jwt.TypeAccess,
		RegisteredClaims: jwt.Window(now, now.Add(st.config.AccessTokenLifespan)),
	})
	if err != nil {
		return AccessToken{}, err
	}

	m.metrics.Inc(MetricAccessIssued)
	m.emit(ctx, AuditAccessIssued, st, func(e *AuditEvent) {
		e.UserID = rec.UserID
		e.SessionID = rec.SessionID
		e.DeviceID = rec.DeviceID
	})
	return AccessToken{Token: token}, nil
}

// ValidateAccessToken verifies an access token without touching the store.
//
// Any verification failure, or a token of another type, yields IsValid false.
// The error is reserved for configuration problems: an unknown origin or
// missing verification key.
func (m *Manager) ValidateAccessToken(token, origin string) (AccessValidation, error) {
	st, err := m.lookup(origin)
	if err != nil {
		return AccessValidation{}, err
	}

	claims, ok, err := parseToken(st, token, jwt.TypeAccess)
	if err != nil {
		return AccessValidation{}, err
	}
	if !ok {
		m.metrics.Inc(MetricAccessInvalid)
		return AccessValidation{IsValid: false}, nil
	}

	m.metrics.Inc(MetricAccessValid)
	return AccessValidation{IsValid: true, Payload: claims}, nil
}
