// Package authz decides whether a resolved caller may perform a booking
// operation. Policies are plain values checked by pure functions.
package authz

import (
	"context"

	"storage-booking-backend/internal/domain"
)

// AuthContext is the caller identity resolved once per request.
type AuthContext struct {
	UserID      string
	Roles       []domain.RoleAssignment
	ActiveOrgID string
	ActiveRole  domain.RoleName
}

// Permission is the role requirement of one operation.
type Permission struct {
	Roles   []domain.RoleName
	SameOrg bool // role must be held in the target organization
}

// IsGlobal reports whether the caller holds a role that bypasses org scoping.
func (a AuthContext) IsGlobal() bool {
	for _, r := range a.Roles {
		if r.Role.IsGlobal() {
			return true
		}
	}
	return false
}

// HasRoleIn reports whether the caller holds any of roles in orgID.
func (a AuthContext) HasRoleIn(orgID string, roles ...domain.RoleName) bool {
	for _, r := range a.Roles {
		if r.OrgID == orgID && contains(roles, r.Role) {
			return true
		}
	}
	return false
}

// Authorize evaluates perm for the caller. targetOrgID is only consulted when
// perm.SameOrg is set; an empty target then denies.
func Authorize(caller AuthContext, perm Permission, targetOrgID string) bool {
	if caller.UserID == "" {
		return false
	}
	if caller.IsGlobal() {
		return true
	}
	if perm.SameOrg && targetOrgID == "" {
		return false
	}
	for _, r := range caller.Roles {
		if !contains(perm.Roles, r.Role) {
			continue
		}
		if perm.SameOrg && r.OrgID != targetOrgID {
			continue
		}
		return true
	}
	return false
}

// HoldsAnywhere reports whether perm holds for the caller in at least one
// organization. It is checked before a target resource is read.
func HoldsAnywhere(caller AuthContext, perm Permission) bool {
	if caller.UserID == "" {
		return false
	}
	if caller.IsGlobal() {
		return true
	}
	for _, r := range caller.Roles {
		if contains(perm.Roles, r.Role) {
			return true
		}
	}
	return false
}

// AuthorizeAll requires perm to hold for every target organization.
func AuthorizeAll(caller AuthContext, perm Permission, targetOrgIDs []string) bool {
	if len(targetOrgIDs) == 0 {
		return caller.IsGlobal() && caller.UserID != ""
	}
	for _, org := range targetOrgIDs {
		if !Authorize(caller, perm, org) {
			return false
		}
	}
	return true
}

// AuthorizeAny requires perm to hold for at least one target organization.
func AuthorizeAny(caller AuthContext, perm Permission, targetOrgIDs []string) bool {
	if caller.IsGlobal() && caller.UserID != "" {
		return true
	}
	for _, org := range targetOrgIDs {
		if Authorize(caller, perm, org) {
			return true
		}
	}
	return false
}

// Require returns a Forbidden error when Authorize denies.
func Require(caller AuthContext, perm Permission, targetOrgID string, message string) error {
	if !Authorize(caller, perm, targetOrgID) {
		return domain.Forbidden(message)
	}
	return nil
}

func contains(roles []domain.RoleName, r domain.RoleName) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithAuthContext(ctx context.Context, a AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the caller attached by the HTTP middleware.
func FromContext(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(ctxKey{}).(AuthContext)
	return a, ok
}
