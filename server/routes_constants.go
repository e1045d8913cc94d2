package server

// Route path constants
// The login route and the two landing pages come from configuration.
const (
	RouteIndex  = "/"
	RouteLogout = "/logout"

	// Console views
	RouteAccounts   = "/accounts"
	RouteCards      = "/cards"
	RoutePayments   = "/payments"
	RouteReports    = "/reports"
	RouteAdminUsers = "/admin/users"

	// API Routes
	RouteAPIProfile       = "/api/me"
	RouteAPISession       = "/api/session"
	RouteAPINotifications = "/api/notifications"

	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
