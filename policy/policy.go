// Package policy answers role and permission questions about an identity
// snapshot. Every function is pure: no I/O, no mutation, nil identity is
// always denied.
package policy

import "github.com/jrsteele09/go-card-console/identity"

func HasRole(id *identity.Identity, role identity.Role) bool {
	if id == nil {
		return false
	}
	return id.Role == role
}

func HasPermission(id *identity.Identity, perm identity.Permission) bool {
	if id == nil {
		return false
	}
	return id.Permissions.Has(perm)
}

// HasAnyPermission is OR semantics; an empty list grants nothing.
func HasAnyPermission(id *identity.Identity, perms ...identity.Permission) bool {
	if id == nil {
		return false
	}
	for _, p := range perms {
		if id.Permissions.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is AND semantics; an empty list is vacuously satisfied.
func HasAllPermissions(id *identity.Identity, perms ...identity.Permission) bool {
	if id == nil {
		return false
	}
	for _, p := range perms {
		if !id.Permissions.Has(p) {
			return false
		}
	}
	return true
}

// SnapshotSource yields the current identity, or nil when logged out.
type SnapshotSource interface {
	CurrentIdentity() *identity.Identity
}

// Evaluator binds the checks to a live identity source for view code.
type Evaluator struct {
	source SnapshotSource
}

func NewEvaluator(source SnapshotSource) Evaluator {
	return Evaluator{source: source}
}

func (e Evaluator) identity() *identity.Identity {
	if e.source == nil {
		return nil
	}
	return e.source.CurrentIdentity()
}

func (e Evaluator) Is(role identity.Role) bool {
	return HasRole(e.identity(), role)
}

func (e Evaluator) Can(perm identity.Permission) bool {
	return HasPermission(e.identity(), perm)
}

func (e Evaluator) CanAny(perms ...identity.Permission) bool {
	return HasAnyPermission(e.identity(), perms...)
}

func (e Evaluator) CanAll(perms ...identity.Permission) bool {
	return HasAllPermissions(e.identity(), perms...)
}
