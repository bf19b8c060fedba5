// Package session persists the records behind refresh tokens.
//
// A [Record] is one link of a rotation chain: it carries the owner, the origin it
// was issued for, an idle expiry, the chain's absolute expiry and, once rotated,
// the session id of its successor.
//
// # Stores
//
// Three [Store] implementations ship with the package:
//
//   - [MemoryStore] keeps records in a map; for tests and single-process use.
//   - [RedisStore] keeps each record as a compact binary blob (see [Encode]) with
//     per-user, per-origin and per-device index sets. Rotation is a Lua
//     compare-and-swap over the blob header.
//   - [PostgresStore] keeps records in one table (see [Schema]); rotation is a
//     conditional UPDATE.
//
// # Rotation
//
// [Store.MarkRotated] is the only write that links a parent to a child. It
// succeeds once per parent; later callers receive [ErrRotationConflict] along
// with the parent as it is now stored, so they can hand out the existing child.
//
// This package does not sign or verify tokens; that belongs to the jwt package
// and the session manager in the module root.
package session
