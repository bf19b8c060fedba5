package goSession

import "context"

// Origin binds a Manager to one origin name so callers need not repeat it.
// It adds no behavior of its own.
type Origin struct {
	manager *Manager
	name    string
}

// Origin returns a facade for name. The origin does not have to be defined yet;
// calls fail with ErrOriginNotConfigured until it is.
func (m *Manager) Origin(name string) *Origin {
	return &Origin{manager: m, name: name}
}

// Name returns the bound origin name.
func (o *Origin) Name() string { return o.name }

// Define calls DefineOrigin for the bound origin.
func (o *Origin) Define(cfg OriginConfig) error {
	return o.manager.DefineOrigin(o.name, cfg)
}

// Defined reports whether the bound origin has a configuration.
func (o *Origin) Defined() bool {
	return o.manager.HasOrigin(o.name)
}

// GenerateRefreshToken starts a new chain. See Manager.GenerateRefreshToken.
func (o *Origin) GenerateRefreshToken(ctx context.Context, userID, deviceID string, opts ...RefreshOption) (*RefreshToken, error) {
	return o.manager.GenerateRefreshToken(ctx, userID, deviceID, o.name, opts...)
}

// ValidateAccessToken verifies an access token signed for this origin.
func (o *Origin) ValidateAccessToken(token string) (AccessValidation, error) {
	return o.manager.ValidateAccessToken(token, o.name)
}

// ValidateRefreshToken checks the token signature and its stored record.
func (o *Origin) ValidateRefreshToken(ctx context.Context, token string) (RefreshValidation, error) {
	return o.manager.ValidateRefreshToken(ctx, token, o.name)
}

// GenerateAccessToken exchanges a valid refresh token for an access token.
func (o *Origin) GenerateAccessToken(ctx context.Context, refreshToken string) (AccessToken, error) {
	return o.manager.GenerateAccessToken(ctx, refreshToken, o.name)
}

// RotateRefreshToken advances the chain. See Manager.RotateRefreshToken.
func (o *Origin) RotateRefreshToken(ctx context.Context, refreshToken string) (RotationResult, error) {
	return o.manager.RotateRefreshToken(ctx, refreshToken, o.name)
}

// InvalidateRefreshToken deletes the user's sessions on this origin, optionally
// narrowed to one device.
func (o *Origin) InvalidateRefreshToken(ctx context.Context, userID, deviceID string) error {
	return o.manager.InvalidateRefreshToken(ctx, o.name, userID, deviceID)
}

// IsSessionActive reports whether sessionID is within its idle window.
func (o *Origin) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	return o.manager.IsSessionActive(ctx, sessionID, o.name)
}
