// Package guard decides whether a navigation into a protected view may
// proceed, using only the latest identity snapshot.
package guard

import (
	"net/http"

	"github.com/jrsteele09/go-card-console/identity"
	"github.com/jrsteele09/go-card-console/internal/config"
	"github.com/jrsteele09/go-card-console/internal/metrics"
	"github.com/jrsteele09/go-card-console/policy"
	"github.com/rs/zerolog/log"
)

// Route is the per-destination metadata the guard evaluates.
type Route struct {
	Path                  string
	RequiredRole          *identity.Role
	RequiredPermissions   []identity.Permission // any-of unless RequireAllPermissions
	RequireAllPermissions bool
}

// Source is the identity state the guard reads. Implementations must not do I/O.
type Source interface {
	CurrentIdentity() *identity.Identity
	IsAuthenticated() bool
}

type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonRole            Reason = "role"
	ReasonPermission      Reason = "permission"
)

// Decision is either Allow or a redirect target.
type Decision struct {
	Allow      bool
	RedirectTo string
	Reason     Reason
}

type Guard struct {
	source         Source
	loginRoute     string
	regularLanding string
	adminLanding   string
	metrics        *metrics.Metrics
}

type Option func(*Guard)

func WithRoutes(cfg config.RouteConfig) Option {
	return func(g *Guard) {
		g.loginRoute = cfg.GetLoginRoute()
		g.regularLanding = cfg.GetRegularLandingRoute()
		g.adminLanding = cfg.GetAdminLandingRoute()
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func New(source Source, options ...Option) *Guard {
	routes := config.Routes{}
	g := &Guard{
		source:         source,
		loginRoute:     routes.GetLoginRoute(),
		regularLanding: routes.GetRegularLandingRoute(),
		adminLanding:   routes.GetAdminLandingRoute(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *Guard) LoginRoute() string {
	return g.loginRoute
}

// LandingRoute is the default page for the identity's role.
func (g *Guard) LandingRoute(id *identity.Identity) string {
	if policy.HasRole(id, identity.RoleAdmin) {
		return g.adminLanding
	}
	return g.regularLanding
}

// Check evaluates route for the navigation to attemptedURL.
func (g *Guard) Check(route Route, attemptedURL string) Decision {
	decision := g.check(route, attemptedURL)
	if decision.Allow {
		g.metrics.GuardDecision("allow")
	} else {
		g.metrics.GuardDecision(string(decision.Reason))
		log.Debug().
			Str("route", route.Path).
			Str("reason", string(decision.Reason)).
			Str("redirect", decision.RedirectTo).
			Msg("navigation redirected")
	}
	return decision
}

func (g *Guard) check(route Route, attemptedURL string) Decision {
	var id *identity.Identity
	if g.source != nil && g.source.IsAuthenticated() {
		id = g.source.CurrentIdentity()
	}
	if id == nil {
		return Decision{RedirectTo: LoginURL(g.loginRoute, attemptedURL), Reason: ReasonUnauthenticated}
	}

	if reason := unmet(id, route); reason != ReasonAllowed {
		return g.deny(id, route, reason)
	}
	return Decision{Allow: true, Reason: ReasonAllowed}
}

// Permits reports whether id meets route's role and permission requirements.
// It records nothing, so it suits building menus.
func Permits(id *identity.Identity, route Route) bool {
	return id != nil && unmet(id, route) == ReasonAllowed
}

func unmet(id *identity.Identity, route Route) Reason {
	if route.RequiredRole != nil && !policy.HasRole(id, *route.RequiredRole) {
		return ReasonRole
	}
	if len(route.RequiredPermissions) > 0 {
		granted := policy.HasAnyPermission(id, route.RequiredPermissions...)
		if route.RequireAllPermissions {
			granted = policy.HasAllPermissions(id, route.RequiredPermissions...)
		}
		if !granted {
			return ReasonPermission
		}
	}
	return ReasonAllowed
}

// deny sends the user to their landing page. If the landing page is the
// route being denied, the login page is the only non-looping target.
func (g *Guard) deny(id *identity.Identity, route Route, reason Reason) Decision {
	landing := g.LandingRoute(id)
	if landing == route.Path {
		landing = g.loginRoute
	}
	return Decision{RedirectTo: landing, Reason: reason}
}

// Middleware enforces route in front of an HTTP view handler.
func (g *Guard) Middleware(route Route) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := g.Check(route, r.URL.RequestURI())
			if !decision.Allow {
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
				return
			}
			next(w, r)
		}
	}
}
