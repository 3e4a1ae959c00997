// Package permission provides the role to permission-set registry used by
// goGuard authorization checks.
//
// # Model
//
// Permission names are interned into bit positions by a [Catalog]; each
// role holds a fixed-width [Mask]. HasPermission is a single map lookup plus
// a bit test. The distinguished super role is resolved inside
// [Registry.HasPermission] and nowhere else.
//
// A module table maps UI or API module keys to the permission that guards
// them. Modules without a mapping are public.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. It is
// populated once by the goGuard builder and frozen before first use.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goGuard, session, or jwt.
//   - Mutate role sets after Freeze.
package permission
