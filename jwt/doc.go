// Package jwt signs and verifies origin session tokens on top of golang-jwt.
//
// # Key selection
//
// RS*, ES*, PS* and EdDSA are asymmetric: signing needs a private key and
// verification a public key. Everything else is symmetric and uses a shared
// secret for both. Key presence is checked on every call and reported as a
// [*KeyError]; verification failures wrap [ErrInvalidToken].
//
// # What this package must NOT do
//
//   - Access session storage or any I/O.
//   - Decide whether a session is still alive; the session record is authoritative.
package jwt
