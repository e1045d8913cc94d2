package identity

import (
	"strings"

	"github.com/jrsteele09/go-card-console/internal/utils"
)

// RoleResolver decides the Role of a freshly authenticated user.
type RoleResolver interface {
	ResolveRole(profile Profile, tokens TokenPair) Role
}

type RoleResolverFunc func(profile Profile, tokens TokenPair) Role

func (f RoleResolverFunc) ResolveRole(profile Profile, tokens TokenPair) Role {
	return f(profile, tokens)
}

// UsernameHeuristicResolver grants ADMIN to any username containing "admin".
// Fallback used when the provider sends no role claim.
var UsernameHeuristicResolver = RoleResolverFunc(func(profile Profile, _ TokenPair) Role {
	if strings.Contains(strings.ToLower(profile.Username), "admin") {
		return RoleAdmin
	}
	return RoleRegular
})

// ClaimsResolver reads roles from the profile, then from the access token's
// "roles"/"role" claim. ADMIN wins when several roles are present. ok is
// false when no recognised role was found.
func ClaimsResolver(profile Profile, tokens TokenPair) (Role, bool) {
	roles := append([]string{}, profile.Roles...)
	if claims, ok := tokens.Claims(); ok {
		roles = append(roles, utils.ToStringSlice(claims["roles"])...)
		roles = append(roles, utils.ToStringSlice(claims["role"])...)
	}
	var resolved Role
	for _, r := range roles {
		role, ok := ParseRole(r)
		if !ok {
			continue
		}
		if role == RoleAdmin {
			return RoleAdmin, true
		}
		resolved = role
	}
	return resolved, resolved != ""
}

// ClaimsOrUsernameResolver prefers server issued roles and only falls back to
// the username heuristic when none are present.
var ClaimsOrUsernameResolver = RoleResolverFunc(func(profile Profile, tokens TokenPair) Role {
	if role, ok := ClaimsResolver(profile, tokens); ok {
		return role
	}
	return UsernameHeuristicResolver(profile, tokens)
})

func DefaultRoleResolver() RoleResolver {
	return ClaimsOrUsernameResolver
}
