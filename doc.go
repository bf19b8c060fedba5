// Package goSession issues and validates origin-scoped JWT refresh and access
// tokens backed by persisted session records.
//
// An origin is a named context ("admin", "api", ...) with its own algorithm,
// keys and lifespans. A [Manager] serves any number of origins; each is
// registered with [Manager.DefineOrigin] or [Builder.WithOrigin].
//
// # Token lifecycle
//
// [Manager.GenerateRefreshToken] starts a rotation chain and persists its first
// record. [Manager.RotateRefreshToken] replaces a refresh token with the next
// link of the chain; presenting a superseded token again returns the same
// child, so retries and concurrent callers never fork a chain.
// [Manager.GenerateAccessToken] mints stateless access tokens from a valid
// refresh token, checked with [Manager.ValidateAccessToken] without store I/O.
//
// Every record has an idle expiry, renewed on rotation, and an absolute expiry
// shared by the whole chain and never extended.
//
// # Errors
//
// Configuration problems (unknown origin, missing key material) are returned
// as errors. Token validation failures are values: IsValid false, or a
// [TokenError] in the result. Store failures are returned as errors wrapping
// session.ErrStoreUnavailable, except in rotation, which reports them as
// [ErrorInvalidRefreshToken].
//
// # Cleanup
//
// Every 50th GenerateRefreshToken call deletes chains past their absolute
// expiry in the background. [Manager.Close] waits for those runs.
package goSession
