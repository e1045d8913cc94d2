package identity

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-card-console/internal/utils"
	"github.com/pkg/errors"
)

// Role is the coarse grained user classification.
type Role string

const (
	RoleRegular Role = "REGULAR"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleRegular || r == RoleAdmin
}

// ParseRole maps a server supplied role name onto a Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADMIN", "ADMINISTRATOR", "ROLE_ADMIN":
		return RoleAdmin, true
	case "REGULAR", "USER", "ROLE_USER":
		return RoleRegular, true
	}
	return "", false
}

// Identity is the authenticated user's profile and authorization snapshot.
type Identity struct {
	ID               string        `json:"id"`
	Username         string        `json:"username"`
	DisplayName      string        `json:"displayName"`
	Role             Role          `json:"role"`
	Permissions      PermissionSet `json:"permissions"`
	Language         string        `json:"language,omitempty"`
	LastLogin        *time.Time    `json:"lastLogin,omitempty"`
	SessionTimeoutMs *int64        `json:"sessionTimeoutMs,omitempty"`
}

// Clone returns a deep copy so readers can never mutate the owner's state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Permissions = i.Permissions.Clone()
	c.LastLogin = utils.Clone(i.LastLogin)
	c.SessionTimeoutMs = utils.Clone(i.SessionTimeoutMs)
	return &c
}

func (i *Identity) Validate() error {
	if i == nil {
		return errors.New("identity is nil")
	}
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("identity id is required")
	}
	if !i.Role.Valid() {
		return errors.Errorf("invalid role %q", i.Role)
	}
	return nil
}

// SessionTimeout returns the profile's explicit timeout, if any.
func (i *Identity) SessionTimeout() (time.Duration, bool) {
	ms := utils.Value(i.SessionTimeoutMs)
	if ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Profile is the user object returned by the identity provider.
type Profile struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"displayName,omitempty"`
	Language         string     `json:"language,omitempty"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	SessionTimeoutMs *int64     `json:"sessionTimeoutMs,omitempty"`
	Roles            []string   `json:"roles,omitempty"`
}

// New derives an Identity from a provider profile. The role comes from the
// resolver and the permission set from the role table.
func New(profile Profile, tokens TokenPair, resolver RoleResolver) *Identity {
	if resolver == nil {
		resolver = DefaultRoleResolver()
	}
	role := resolver.ResolveRole(profile, tokens)
	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.Username
	}
	language := profile.Language
	if language == "" {
		language = "en"
	}
	return &Identity{
		ID:               profile.ID,
		Username:         profile.Username,
		DisplayName:      displayName,
		Role:             role,
		Permissions:      PermissionsForRole(role),
		Language:         language,
		LastLogin:        utils.Clone(profile.LastLogin),
		SessionTimeoutMs: utils.Clone(profile.SessionTimeoutMs),
	}
}

// Refreshed is the identity to publish alongside a refreshed token pair. A
// role claim on the new access token replaces the current role; otherwise
// role and permissions carry over.
func (i *Identity) Refreshed(tokens TokenPair) *Identity {
	c := i.Clone()
	if c == nil {
		return nil
	}
	if role, ok := ClaimsResolver(Profile{}, tokens); ok && role != c.Role {
		c.Role = role
		c.Permissions = PermissionsForRole(role)
	}
	return c
}
