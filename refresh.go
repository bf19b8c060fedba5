package goSession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// GenerateRefreshToken starts a new rotation chain for userID on origin.
//
// The record is persisted before signing and the token's iat and exp are taken
// from the stored record. deviceID may be empty. The signing key is checked
// first so a misconfigured origin never leaves an orphan record behind.
func (m *Manager) GenerateRefreshToken(ctx context.Context, userID, deviceID, origin string, opts ...RefreshOption) (*RefreshToken, error) {
	st, err := m.lookup(origin)
	if err != nil {
		return nil, err
	}
	m.tickCleanup(ctx)

	if userID == "" {
		return nil, ErrUserIDRequired
	}
	o := refreshOptions{sessionType: session.TypeRefresh}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.sessionType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionType, o.sessionType)
	}
	if _, err := st.tokens.SigningKey(); err != nil {
		return nil, err
	}
	idle, max := st.config.lifespans(o.sessionType)

	sid, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	abs := now.Add(max)

	rec, err := m.store.Create(ctx, &session.Record{
		UserID:            userID,
		SessionID:         sid,
		DeviceID:          deviceID,
		Origin:            st.name,
		Type:              o.sessionType,
		Status:            session.StatusActive,
		ExpiresAt:         now.Add(idle),
		AbsoluteExpiresAt: &abs,
	})
	if err != nil {
		return nil, err
	}

	token, err := m.signRefresh(st, rec)
	if err != nil {
		return nil, err
	}

	m.metrics.Inc(MetricRefreshIssued)
	m.emit(ctx, AuditSessionCreated, st, func(e *AuditEvent) {
		e.UserID = rec.UserID
		e.SessionID = rec.SessionID
		e.DeviceID = rec.DeviceID
		e.Metadata = map[string]string{"type": string(rec.Type)}
	})

	return &RefreshToken{
		Token:             token,
		SessionID:         rec.SessionID,
		AbsoluteExpiresAt: formatTimestamp(rec.AbsoluteExpiresAt),
	}, nil
}

func (m *Manager) signRefresh(st *originState, rec *session.Record) (string, error) {
	return st.tokens.Sign(jwt.Claims{
		UserID:           rec.UserID,
		SessionID:        rec.SessionID,
		Type:             jwt.TypeRefresh,
		RegisteredClaims: jwt.Window(rec.CreatedAt, rec.ExpiresAt),
	})
}

// parseToken verifies token and checks its type. ok is false for any
// verification failure; err is reserved for configuration problems.
func parseToken(st *originState, token string, want jwt.TokenType) (claims *jwt.Claims, ok bool, err error) {
	claims, err = st.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if claims.Type != want {
		return nil, false, nil
	}
	return claims, true, nil
}

// ValidateRefreshToken verifies token and cross-checks the stored record: it
// must exist, belong to origin and the token's user, be active, and be inside
// both its idle and absolute windows.
//
// Invalid tokens are reported through the result. Store failures are returned
// as errors wrapping session.ErrStoreUnavailable.
func (m *Manager) ValidateRefreshToken(ctx context.Context, token, origin string) (RefreshValidation, error) {
	st, err := m.lookup(origin)
	if err != nil {
		return RefreshValidation{}, err
	}

	start := time.Now()
	_, rec, reason, err := m.validateRefresh(ctx, st, token)
	if m.metrics.LatencyEnabled() {
		m.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return RefreshValidation{}, err
	}
	if rec == nil {
		m.metrics.Inc(MetricRefreshInvalid)
		m.logger.Debug("refresh token rejected", zap.String("origin", st.name), zap.String("reason", reason))
		return RefreshValidation{IsValid: false}, nil
	}

	m.metrics.Inc(MetricRefreshValid)
	return RefreshValidation{IsValid: true, UserID: rec.UserID, SessionID: rec.SessionID}, nil
}

// validateRefresh returns the stored record when token is currently usable,
// otherwise a nil record and a short reason for logs.
func (m *Manager) validateRefresh(ctx context.Context, st *originState, token string) (*jwt.Claims, *session.Record, string, error) {
	claims, ok, err := parseToken(st, token, jwt.TypeRefresh)
	if err != nil {
		return nil, nil, "", err
	}
	if !ok {
		return nil, nil, "token", nil
	}

	rec, err := m.store.FindBySessionID(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, "", err
	}
	if rec == nil {
		return nil, nil, "not_found", nil
	}

	now := m.now()
	switch {
	case rec.Origin != st.name:
		return nil, nil, "origin_mismatch", nil
	case !now.Before(rec.ExpiresAt):
		return nil, nil, "idle_expired", nil
	case rec.AbsoluteExpiresAt != nil && !now.Before(*rec.AbsoluteExpiresAt):
		return nil, nil, "absolute_expired", nil
	case rec.Status != session.StatusActive:
		return nil, nil, "status_" + string(rec.Status), nil
	case rec.UserID != claims.UserID:
		return nil, nil, "user_mismatch", nil
	}
	return claims, rec, "", nil
}

// RotateRefreshToken exchanges refreshToken for the next token of its chain.
//
// Presenting an already rotated token returns a fresh signature for the child
// it was rotated to, so retries and concurrent callers converge on one child.
// Only an unknown or empty origin is returned as an error; every other failure,
// store errors and panics included, is reported as ErrorInvalidRefreshToken.
func (m *Manager) RotateRefreshToken(ctx context.Context, refreshToken, origin string) (result RotationResult, err error) {
	st, err := m.lookup(origin)
	if err != nil {
		return RotationResult{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("refresh rotation panicked", zap.String("origin", st.name), zap.Any("panic", r))
			m.metrics.Inc(MetricRotationRejected)
			result, err = RotationResult{Error: ErrorInvalidRefreshToken}, nil
		}
	}()

	result, rerr := m.rotate(ctx, st, refreshToken)
	if rerr != nil {
		m.logger.Warn("refresh rotation failed", zap.String("origin", st.name), zap.Error(rerr))
		result = RotationResult{Error: ErrorInvalidRefreshToken}
	}

	switch result.Error {
	case "":
	case ErrorIdleWindowElapsed:
		m.metrics.Inc(MetricIdleWindowElapsed)
	case ErrorMaxWindowElapsed:
		m.metrics.Inc(MetricMaxWindowElapsed)
	default:
		m.metrics.Inc(MetricRotationRejected)
	}
	if result.Error != "" {
		m.emit(ctx, AuditRotationRejected, st, func(e *AuditEvent) {
			e.Success = false
			e.Error = string(result.Error)
		})
	}
	return result, nil
}

func rejected(reason TokenError) RotationResult {
	return RotationResult{Error: reason}
}

func (m *Manager) rotate(ctx context.Context, st *originState, token string) (RotationResult, error) {
	claims, ok, err := parseToken(st, token, jwt.TypeRefresh)
	if err != nil {
		return RotationResult{}, err
	}
	if !ok {
		return rejected(ErrorInvalidRefreshToken), nil
	}

	parent, err := m.store.FindBySessionID(ctx, claims.SessionID)
	if err != nil {
		return RotationResult{}, err
	}
	if parent == nil || parent.Origin != st.name || parent.UserID != claims.UserID {
		return rejected(ErrorInvalidRefreshToken), nil
	}

	if parent.Rotated() {
		return m.replay(ctx, st, parent)
	}

	idle, _ := st.config.lifespans(parent.Type)
	now := m.now()
	if now.Sub(parent.CreatedAt) > idle {
		return rejected(ErrorIdleWindowElapsed), nil
	}
	if parent.AbsoluteExpiresAt != nil && !parent.AbsoluteExpiresAt.After(now) {
		return rejected(ErrorMaxWindowElapsed), nil
	}
	if parent.Status != session.StatusActive {
		return rejected(ErrorInvalidRefreshToken), nil
	}

	sid, err := GenerateSessionID()
	if err != nil {
		return RotationResult{}, err
	}
	// The child keeps the chain's absolute expiry; its idle expiry never passes it.
	expiresAt := now.Add(idle)
	var abs *time.Time
	if parent.AbsoluteExpiresAt != nil {
		a := *parent.AbsoluteExpiresAt
		abs = &a
		if expiresAt.After(a) {
			expiresAt = a
		}
	}

	child, err := m.store.Create(ctx, &session.Record{
		UserID:            parent.UserID,
		SessionID:         sid,
		DeviceID:          parent.DeviceID,
		Origin:            parent.Origin,
		Type:              parent.Type,
		Status:            session.StatusActive,
		ExpiresAt:         expiresAt,
		AbsoluteExpiresAt: abs,
	})
	if err != nil {
		return RotationResult{}, err
	}

	current, err := m.store.MarkRotated(ctx, parent.SessionID, child.SessionID)
	if err != nil {
		m.discardOrphan(ctx, st, child.SessionID)
		if errors.Is(err, session.ErrRotationConflict) {
			m.metrics.Inc(MetricRotationRaceLost)
			if current.Rotated() {
				return m.replay(ctx, st, current)
			}
			return rejected(ErrorInvalidRefreshToken), nil
		}
		if errors.Is(err, session.ErrRecordNotFound) {
			return rejected(ErrorInvalidRefreshToken), nil
		}
		return RotationResult{}, err
	}

	signed, err := m.signRefresh(st, child)
	if err != nil {
		return RotationResult{}, err
	}

	m.metrics.Inc(MetricRotationSuccess)
	m.emit(ctx, AuditSessionRotated, st, func(e *AuditEvent) {
		e.UserID = child.UserID
		e.SessionID = child.SessionID
		e.DeviceID = child.DeviceID
		e.Metadata = map[string]string{"parent_session_id": parent.SessionID}
	})

	return RotationResult{
		Token:             signed,
		SessionID:         child.SessionID,
		AbsoluteExpiresAt: formatTimestamp(child.AbsoluteExpiresAt),
	}, nil
}

// replay re-signs the child an already rotated parent points to.
func (m *Manager) replay(ctx context.Context, st *originState, parent *session.Record) (RotationResult, error) {
	child, err := m.store.FindBySessionID(ctx, parent.ChildID)
	if err != nil {
		return RotationResult{}, err
	}
	if child == nil {
		return rejected(ErrorInvalidRefreshToken), nil
	}

	signed, err := m.signRefresh(st, child)
	if err != nil {
		return RotationResult{}, err
	}

	m.metrics.Inc(MetricRotationReplay)
	m.logger.Debug("refresh rotation replayed",
		zap.String("origin", st.name),
		zap.String("parent_session_id", parent.SessionID),
		zap.String("child_session_id", child.SessionID),
	)
	m.emit(ctx, AuditSessionReplay, st, func(e *AuditEvent) {
		e.UserID = child.UserID
		e.SessionID = child.SessionID
		e.DeviceID = child.DeviceID
		e.Metadata = map[string]string{"parent_session_id": parent.SessionID}
	})

	return RotationResult{
		Token:             signed,
		SessionID:         child.SessionID,
		AbsoluteExpiresAt: formatTimestamp(child.AbsoluteExpiresAt),
	}, nil
}

func (m *Manager) discardOrphan(ctx context.Context, st *originState, sessionID string) {
	if err := m.store.DeleteBySessionID(ctx, sessionID); err != nil {
		m.logger.Warn("failed to discard orphaned child session",
			zap.String("origin", st.name),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// InvalidateRefreshToken deletes every record of userID on origin, narrowed to
// deviceID when it is not empty.
func (m *Manager) InvalidateRefreshToken(ctx context.Context, origin, userID, deviceID string) error {
	st, err := m.lookup(origin)
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrUserIDRequired
	}

	n, err := m.store.DeleteBy(ctx, session.Filter{
		UserID:   userID,
		Origin:   st.name,
		DeviceID: deviceID,
	})
	if err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}

	m.metrics.Add(MetricSessionInvalidated, uint64(n))
	m.emit(ctx, AuditSessionInvalidated, st, func(e *AuditEvent) {
		e.UserID = userID
		e.DeviceID = deviceID
		e.Metadata = map[string]string{"deleted": fmt.Sprint(n)}
	})
	return nil
}

// IsSessionActive reports whether sessionID exists on origin and its idle
// expiry has not passed. An expired record found here is deleted.
func (m *Manager) IsSessionActive(ctx context.Context, sessionID, origin string) (bool, error) {
	st, err := m.lookup(origin)
	if err != nil {
		return false, err
	}

	rec, err := m.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Origin != st.name {
		return false, nil
	}

	if !rec.ExpiresAt.After(m.now()) {
		if err := m.store.DeleteBySessionID(ctx, sessionID); err != nil {
			return false, err
		}
		m.metrics.Inc(MetricSessionExpiredOnRead)
		m.emit(ctx, AuditSessionExpired, st, func(e *AuditEvent) {
			e.UserID = rec.UserID
			e.SessionID = rec.SessionID
			e.DeviceID = rec.DeviceID
		})
		return false, nil
	}
	return true, nil
}
