package config

import "time"

type SessionConfig interface {
	GetForcedLogoutDelay() time.Duration
	GetDefaultSessionTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetForcedLogoutDelay is how long the "session expired" notice stays visible before the login redirect.
func (Session) GetForcedLogoutDelay() time.Duration {
	return GetEnvDuration("FORCED_LOGOUT_DELAY", 2*time.Second)
}

// GetDefaultSessionTimeout applies when the provider omits expires_in.
func (Session) GetDefaultSessionTimeout() time.Duration {
	return GetEnvDuration("DEFAULT_SESSION_TIMEOUT", 30*time.Minute)
}

type Routes struct{}

var _ RouteConfig = Routes{}

func (Routes) GetLoginRoute() string {
	return "/login"
}

func (Routes) GetRegularLandingRoute() string {
	return "/dashboard"
}

func (Routes) GetAdminLandingRoute() string {
	return "/admin/dashboard"
}
