package server

import (
	"github.com/jrsteele09/go-card-console/guard"
	"github.com/jrsteele09/go-card-console/identity"
	"github.com/jrsteele09/go-card-console/internal/utils"
)

// View is a guarded console page.
type View struct {
	Name  string
	Title string
	Route guard.Route
}

// Views is the console's page table. The dashboards live at the configured
// landing routes.
func (s *Server) Views() []View {
	return []View{
		{
			Name:  "dashboard",
			Title: "Dashboard",
			Route: guard.Route{Path: s.config.GetRegularLandingRoute(), RequiredRole: utils.Ptr(identity.RoleRegular)},
		},
		{
			Name:  "admin-dashboard",
			Title: "Administration",
			Route: guard.Route{Path: s.config.GetAdminLandingRoute(), RequiredRole: utils.Ptr(identity.RoleAdmin)},
		},
		{
			Name:  "accounts",
			Title: "Accounts",
			Route: guard.Route{Path: RouteAccounts, RequiredPermissions: []identity.Permission{identity.PermViewAccounts}},
		},
		{
			Name:  "cards",
			Title: "Cards",
			Route: guard.Route{Path: RouteCards, RequiredPermissions: []identity.Permission{identity.PermViewCards}},
		},
		{
			Name:  "payments",
			Title: "Payments",
			Route: guard.Route{
				Path:                  RoutePayments,
				RequiredPermissions:   []identity.Permission{identity.PermViewPayments, identity.PermMakePayments},
				RequireAllPermissions: true,
			},
		},
		{
			Name:  "reports",
			Title: "Reports",
			Route: guard.Route{Path: RouteReports, RequiredPermissions: []identity.Permission{identity.PermViewReports}},
		},
		{
			Name:  "user-management",
			Title: "User Management",
			Route: guard.Route{
				Path:                RouteAdminUsers,
				RequiredRole:        utils.Ptr(identity.RoleAdmin),
				RequiredPermissions: []identity.Permission{identity.PermManageUsers},
			},
		},
	}
}
