package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/jrsteele09/go-card-console/credentials/memstore"
	"github.com/jrsteele09/go-card-console/internal/config"
	"github.com/jrsteele09/go-card-console/internal/utils"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/provider/fakeprovider"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/jrsteele09/go-card-console/server"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	clock   *clock.Mock
	idp     *fakeprovider.Server
	cfg     config.Static
	store   *memstore.Store
	console *server.Console
	server  *server.Server
	client  *http.Client
	baseURL string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{clock: clock.NewMock(), store: memstore.New()}
	f.clock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	f.idp = fakeprovider.New(fakeprovider.WithClock(f.clock))
	require.NoError(t, f.idp.SeedDemoUsers())
	idpServer := httptest.NewServer(f.idp)
	t.Cleanup(idpServer.Close)

	f.cfg = config.Static{
		Env:                   "TEST",
		APIBaseURL:            idpServer.URL,
		MaxRetries:            1,
		RetryBaseDelay:        time.Millisecond,
		RetryMultiplier:       2,
		RetryMaxDelay:         time.Second,
		ForcedLogoutDelay:     0,
		DefaultSessionTimeout: 30 * time.Minute,
		LoginRoute:            "/login",
		RegularLandingRoute:   "/dashboard",
		AdminLandingRoute:     "/admin/dashboard",
	}
	f.start(t, f.store)
	return f
}

// start wires a console and HTTP server over store.
func (f *testFixture) start(t *testing.T, store credentials.Store) {
	t.Helper()

	console, err := server.NewConsole(f.cfg, store,
		server.WithClock(f.clock),
		server.WithResilienceOptions(resilience.WithSleeper(func(context.Context, time.Duration) error { return nil })),
	)
	require.NoError(t, err)
	f.console = console

	f.server, err = server.New(f.cfg, console)
	require.NoError(t, err)
	ts := httptest.NewServer(f.server)
	t.Cleanup(ts.Close)

	f.baseURL = ts.URL
	f.client = &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}

func (f *testFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.baseURL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := f.client.PostForm(f.baseURL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *testFixture) login(t *testing.T, username, password, returnURL string) *http.Response {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	if returnURL != "" {
		form.Set("returnUrl", returnURL)
	}
	return f.post(t, "/login", form)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func requireRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, location, resp.Header.Get("Location"))
}

func navNames(items []server.NavItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}

func TestAnonymousViewRedirectsToLogin(t *testing.T) {
	f := setupTestFixture(t)

	requireRedirect(t, f.get(t, "/accounts?page=2"), "/login?returnUrl=%2Faccounts%3Fpage%3D2")
	requireRedirect(t, f.get(t, "/"), "/login")

	page := decode[server.LoginPageData](t, f.get(t, "/login?returnUrl=%2Faccounts%3Fpage%3D2"))
	require.Equal(t, "login", page.View)
	require.Equal(t, "/accounts?page=2", page.ReturnURL)
}

func TestLoginContinuesToReturnURL(t *testing.T) {
	f := setupTestFixture(t)

	requireRedirect(t, f.login(t, "jane", "password123", "/accounts?page=2"), "/accounts?page=2")

	resp := f.get(t, "/accounts?page=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[server.ViewResponse](t, resp)
	require.Equal(t, "accounts", view.View)
	require.Equal(t, "/accounts?page=2", view.Path)
	require.Equal(t, "jane", view.User.Username)
	require.Equal(t, []string{"dashboard", "accounts", "cards", "payments", "reports"}, navNames(view.Navigation))
}

func TestLoginLandsByRole(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		landing  string
	}{
		{name: "regular user", username: "jane", password: "password123", landing: "/dashboard"},
		{name: "admin", username: "admin", password: "admin123", landing: "/admin/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			requireRedirect(t, f.login(t, tt.username, tt.password, ""), tt.landing)
			requireRedirect(t, f.get(t, "/"), tt.landing)
			require.Equal(t, http.StatusOK, f.get(t, tt.landing).StatusCode)
		})
	}
}

func TestLoginIgnoresOffSiteReturnURL(t *testing.T) {
	for _, returnURL := range []string{"https://evil.example/steal", "//evil.example", "javascript:alert(1)"} {
		t.Run(returnURL, func(t *testing.T) {
			f := setupTestFixture(t)
			requireRedirect(t, f.login(t, "jane", "password123", returnURL), "/dashboard")
		})
	}
}

func TestLoginAcceptsJSON(t *testing.T) {
	f := setupTestFixture(t)

	body := strings.NewReader(`{"username":"admin","password":"admin123","returnUrl":"/reports"}`)
	resp, err := f.client.Post(f.baseURL+"/login", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	requireRedirect(t, resp, "/reports")
}

func TestInvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.login(t, "jane", "wrong-password", "/accounts")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	failure := decode[server.ErrorResponse](t, resp)
	require.Equal(t, "InvalidCredentials", failure.Kind)
	require.Equal(t, "Invalid username or password.", failure.Message)

	status := decode[server.SessionResponse](t, f.get(t, "/api/session"))
	require.False(t, status.Authenticated)
	require.Equal(t, "idle", status.Monitor)
	require.Empty(t, decode[[]resilience.Notification](t, f.get(t, "/api/notifications")))
}

func TestBlockedUserCannotSignIn(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.idp.Users().SetBlocked("jane", true))

	resp := f.login(t, "jane", "password123", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRoleGuardRedirectsToLanding(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")

	requireRedirect(t, f.get(t, "/admin/users"), "/dashboard")
	requireRedirect(t, f.get(t, "/admin/dashboard"), "/dashboard")

	a := setupTestFixture(t)
	a.login(t, "admin", "admin123", "")
	requireRedirect(t, a.get(t, "/dashboard"), "/admin/dashboard")

	view := decode[server.ViewResponse](t, a.get(t, "/admin/users"))
	require.Equal(t, "user-management", view.View)
	require.Contains(t, navNames(view.Navigation), "user-management")
	require.NotContains(t, navNames(view.Navigation), "dashboard")
}

func TestLoginPageRedirectsWhenAuthenticated(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")

	requireRedirect(t, f.get(t, "/login?returnUrl=%2Fcards"), "/cards")
	requireRedirect(t, f.get(t, "/login"), "/dashboard")
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")

	requireRedirect(t, f.post(t, "/logout", nil), "/login")
	require.Equal(t, 1, f.idp.Calls(provider.LogoutPath))
	requireRedirect(t, f.get(t, "/accounts"), "/login?returnUrl=%2Faccounts")

	_, ok := f.store.Load()
	require.False(t, ok)

	// Nothing left to revoke.
	requireRedirect(t, f.post(t, "/logout", nil), "/login")
	require.Equal(t, 1, f.idp.Calls(provider.LogoutPath))
}

func TestRejectedTokenForcesLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")
	require.Equal(t, http.StatusOK, f.get(t, "/accounts").StatusCode)

	profile := decode[map[string]any](t, f.get(t, "/api/me"))
	require.Equal(t, "u-jane", profile["id"])

	f.idp.RevokeAll()
	resp := f.get(t, "/api/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, string(resilience.KindTokenExpired), decode[server.ErrorResponse](t, resp).Kind)
	require.False(t, f.console.Session.IsAuthenticated())

	// The next page load lands on login with the page the user was on.
	requireRedirect(t, f.get(t, "/cards"), "/login?returnUrl=%2Faccounts")
	page := decode[server.LoginPageData](t, f.get(t, "/login?returnUrl=%2Faccounts"))
	require.Equal(t, "/accounts", page.ReturnURL)
	require.Empty(t, page.Notifications)

	requireRedirect(t, f.login(t, "jane", "password123", page.ReturnURL), "/accounts")
}

func TestProfileRequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, "/api/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 0, f.idp.Calls(provider.ProfilePath))
}

func TestExpiredTokenRefreshedOnNavigation(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.idp.AddUser(fakeprovider.User{
		ID:               "u-kim",
		Username:         "kim",
		SessionTimeoutMs: utils.Ptr((2 * time.Hour).Milliseconds()),
	}, "secret123")
	require.NoError(t, err)

	requireRedirect(t, f.login(t, "kim", "secret123", "/cards"), "/cards")

	f.clock.Add(61 * time.Minute)
	require.False(t, f.console.Session.IsAuthenticated())

	resp := f.get(t, "/cards")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.idp.Calls(provider.RefreshPath))
	require.True(t, f.console.Session.IsAuthenticated())
}

func TestFailedRefreshSendsToLogin(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.idp.AddUser(fakeprovider.User{
		ID:               "u-kim",
		Username:         "kim",
		SessionTimeoutMs: utils.Ptr((2 * time.Hour).Milliseconds()),
	}, "secret123")
	require.NoError(t, err)
	f.login(t, "kim", "secret123", "")

	f.idp.RevokeAll()
	f.clock.Add(61 * time.Minute)

	requireRedirect(t, f.get(t, "/cards"), "/login?returnUrl=%2Fcards")
	require.Nil(t, f.console.Session.CurrentIdentity())
}

func TestBackendFailureIsNotified(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")
	f.idp.FailNext(provider.ProfilePath, http.StatusServiceUnavailable, 2)

	resp := f.get(t, "/api/me")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	failure := decode[server.ErrorResponse](t, resp)
	require.Equal(t, string(resilience.KindServerUnavailable), failure.Kind)
	require.Equal(t, 2, f.idp.Calls(provider.ProfilePath))
	require.True(t, f.console.Session.IsAuthenticated())

	notifications := decode[[]resilience.Notification](t, f.get(t, "/api/notifications"))
	require.Len(t, notifications, 1)
	require.Equal(t, resilience.KindServerUnavailable, notifications[0].Kind)
	require.Equal(t, failure.Message, notifications[0].Message)

	require.Empty(t, decode[[]resilience.Notification](t, f.get(t, "/api/notifications")))
	require.Zero(t, f.console.Loading.Active())
}

func TestSessionEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "admin", "admin123", "")

	status := decode[server.SessionResponse](t, f.get(t, "/api/session"))
	require.True(t, status.Authenticated)
	require.Equal(t, "admin", status.User.Username)
	require.Equal(t, "armed", status.Monitor)
	require.Equal(t, time.Hour.Milliseconds(), status.RemainingMs)
	require.NotNil(t, status.ExpiresAt)
	require.True(t, status.ExpiresAt.Equal(f.clock.Now().Add(time.Hour)))
}

func TestSessionSurvivesRestart(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")

	f.start(t, f.store)
	require.True(t, f.console.Session.IsAuthenticated())
	require.Equal(t, http.StatusOK, f.get(t, "/cards").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "jane", "password123", "")
	f.get(t, "/admin/users")

	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `card_console_session_events_total{event="login"} 1`)
	require.Contains(t, string(body), `card_console_guard_decisions_total{outcome="role"} 1`)
}

func TestSecurityHeaders(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.get(t, "/login")
	require.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, http.StatusOK, f.get(t, "/healthz").StatusCode)
}
