package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jrsteele09/go-card-console/identity"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/provider/fakeprovider"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	clock         *clock.Mock
	idp           *fakeprovider.Server
	notifications *resilience.NotificationLog
	client        *provider.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		clock:         clock.NewMock(),
		notifications: &resilience.NotificationLog{},
	}
	f.clock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f.idp = fakeprovider.New(fakeprovider.WithClock(f.clock))
	require.NoError(t, f.idp.SeedDemoUsers())

	srv := httptest.NewServer(f.idp)
	t.Cleanup(srv.Close)

	rc, err := resilience.New(srv.URL,
		resilience.WithPolicy(resilience.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2}),
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		resilience.WithNotifier(f.notifications),
	)
	require.NoError(t, err)
	f.client = provider.New(rc, provider.WithClock(f.clock))
	return f
}

func TestLoginReturnsProfileAndTokens(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.client.Login(context.Background(), provider.Credentials{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	require.Equal(t, "u-admin", result.Profile.ID)
	require.Equal(t, "Administrator", result.Profile.DisplayName)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	require.EqualValues(t, 3600, result.Tokens.ExpiresInSeconds)
	require.Equal(t, f.clock.Now(), result.Tokens.IssuedAt)
	require.True(t, result.Tokens.ValidAt(f.clock.Now()))

	exp, ok := result.Tokens.ExpiryClaim()
	require.True(t, ok)
	require.Equal(t, f.clock.Now().Add(time.Hour).Unix(), exp.Unix())
}

func TestLoginWithWrongPasswordIsInvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.Login(context.Background(), provider.Credentials{Username: "admin", Password: "nope"})
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidCredentials))
	require.Equal(t, 1, f.idp.Calls(provider.LoginPath))
	require.Empty(t, f.notifications.All())
}

func TestLoginRequiresBothFields(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.Login(context.Background(), provider.Credentials{Username: "admin"})
	require.True(t, apperrors.Is(err, apperrors.ErrInvalidCredentials))
	require.Zero(t, f.idp.Calls(provider.LoginPath))
}

func TestLoginRetriedOnlyWhenUnavailable(t *testing.T) {
	f := setupTestFixture(t)

	f.idp.FailNext(provider.LoginPath, http.StatusServiceUnavailable, 1)
	_, err := f.client.Login(context.Background(), provider.Credentials{Username: "jane", Password: "password123"})
	require.NoError(t, err)
	require.Equal(t, 2, f.idp.Calls(provider.LoginPath))

	f.idp.FailNext(provider.LoginPath, http.StatusInternalServerError, 1)
	_, err = f.client.Login(context.Background(), provider.Credentials{Username: "jane", Password: "password123"})
	require.True(t, apperrors.Is(err, apperrors.ErrServerUnavailable))
	require.Equal(t, 3, f.idp.Calls(provider.LoginPath))
}

func TestBlockedUserIsForbidden(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.idp.Users().SetBlocked("jane", true))

	_, err := f.client.Login(context.Background(), provider.Credentials{Username: "jane", Password: "password123"})
	require.True(t, apperrors.Is(err, apperrors.ErrForbidden))
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.client.Login(context.Background(), provider.Credentials{Username: "jane", Password: "password123"})
	require.NoError(t, err)

	f.clock.Add(30 * time.Minute)
	tokens, err := f.client.Refresh(context.Background(), result.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, result.Tokens.AccessToken, tokens.AccessToken)
	require.NotEqual(t, result.Tokens.RefreshToken, tokens.RefreshToken)
	require.Equal(t, f.clock.Now(), tokens.IssuedAt)

	// refresh tokens are single use
	_, err = f.client.Refresh(context.Background(), result.Tokens.RefreshToken)
	require.True(t, apperrors.Is(err, apperrors.ErrTokenExpired))
}

func TestRefreshWithoutTokenFailsImmediately(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.Refresh(context.Background(), "")
	require.True(t, apperrors.Is(err, apperrors.ErrNoRefreshToken))
	require.Zero(t, f.idp.Calls(provider.RefreshPath))
}

func TestLogoutSendsBearerAndRevokesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.client.Login(context.Background(), provider.Credentials{Username: "jane", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, f.client.Logout(context.Background(), result.Tokens))
	require.Equal(t, "Bearer "+result.Tokens.AccessToken, f.idp.LastAuthorization(provider.LogoutPath))

	_, err = f.client.Refresh(context.Background(), result.Tokens.RefreshToken)
	require.Error(t, err)
}

func TestRolesFromProviderDriveIdentity(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.idp.AddUser(fakeprovider.User{ID: "u-ops", Username: "ops", Roles: []string{"ADMIN"}}, "opspass")
	require.NoError(t, err)

	result, err := f.client.Login(context.Background(), provider.Credentials{Username: "ops", Password: "opspass"})
	require.NoError(t, err)

	id := identity.New(result.Profile, result.Tokens, nil)
	require.Equal(t, identity.RoleAdmin, id.Role)
}
