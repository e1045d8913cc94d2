package server

import "net/http"

func (s *Server) initRoutes() {
	loginRoute := s.config.GetLoginRoute()

	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// LOGIN
	s.RegisterRouteFunc("GET "+loginRoute, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+loginRoute, ChainMiddleware(s.LoginSubmissionHandler(), s.FormMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.FormMiddleware()...))

	// Guarded views
	for _, view := range s.Views() {
		s.RegisterRouteFunc("GET "+view.Route.Path, ChainMiddleware(s.ViewHandler(view),
			s.HTMLMiddleWare(s.RefreshExpiredSession, s.console.Guard.Middleware(view.Route), s.TrackVisit)...))
	}

	// API routes
	s.RegisterRouteFunc("GET "+RouteAPIProfile, ChainMiddleware(s.ProfileHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPINotifications, ChainMiddleware(s.NotificationsHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, s.console.Metrics.Handler())
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}

var _ http.Handler = (*Server)(nil)
