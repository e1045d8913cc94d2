package fakeprovider_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/provider/fakeprovider"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("test-signing-key")

func setupServer(t *testing.T) (*fakeprovider.Server, *httptest.Server, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	idp := fakeprovider.New(
		fakeprovider.WithClock(mock),
		fakeprovider.WithAccessTokenTTL(10*time.Minute),
		fakeprovider.WithSigningKey(signingKey),
	)
	require.NoError(t, idp.SeedDemoUsers())
	ts := httptest.NewServer(idp)
	t.Cleanup(ts.Close)
	return idp, ts, mock
}

func postJSON(t *testing.T, url string, body any, bearer string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getProfile(t *testing.T, url, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+provider.ProfilePath, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, url string, creds provider.Credentials) provider.LoginResponse {
	t.Helper()
	resp := postJSON(t, url+provider.LoginPath, creds, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body provider.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestLoginIssuesSignedToken(t *testing.T) {
	_, ts, mock := setupServer(t)

	body := login(t, ts.URL, provider.Credentials{Username: "JANE", Password: "password123"})
	require.Equal(t, "Bearer", body.TokenType)
	require.Equal(t, int64(600), body.ExpiresIn)
	require.NotEmpty(t, body.RefreshToken)
	require.Equal(t, "u-jane", body.User.ID)
	require.Equal(t, "Jane Doe", body.User.DisplayName)

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(body.AccessToken, claims, func(*jwtlib.Token) (interface{}, error) {
		return signingKey, nil
	}, jwtlib.WithTimeFunc(mock.Now))
	require.NoError(t, err)
	require.Equal(t, "u-jane", claims["sub"])
	require.Equal(t, "jane", claims["username"])
	require.Equal(t, float64(mock.Now().Add(10*time.Minute).Unix()), claims["exp"])
}

func TestLoginRecordsLastLogin(t *testing.T) {
	idp, ts, mock := setupServer(t)

	first := login(t, ts.URL, provider.Credentials{Username: "jane", Password: "password123"})
	require.Nil(t, first.User.LastLogin)

	second := login(t, ts.URL, provider.Credentials{Username: "jane", Password: "password123"})
	require.NotNil(t, second.User.LastLogin)
	require.True(t, second.User.LastLogin.Equal(mock.Now()))

	user, err := idp.Users().GetByUsername("jane")
	require.NoError(t, err)
	require.NotNil(t, user.LastLogin)
}

func TestLoginRejections(t *testing.T) {
	idp, ts, _ := setupServer(t)
	require.NoError(t, idp.Users().SetBlocked("admin", true))

	tests := []struct {
		name   string
		creds  provider.Credentials
		status int
	}{
		{"wrong password", provider.Credentials{Username: "jane", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", provider.Credentials{Username: "ghost", Password: "password123"}, http.StatusUnauthorized},
		{"blocked user", provider.Credentials{Username: "admin", Password: "admin123"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+provider.LoginPath, tt.creds, "")
			require.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NotEmpty(t, body["message"])
		})
	}
}

func TestFailNext(t *testing.T) {
	idp, ts, _ := setupServer(t)
	idp.FailNext(provider.LoginPath, http.StatusServiceUnavailable, 1)

	creds := provider.Credentials{Username: "jane", Password: "password123"}
	require.Equal(t, http.StatusServiceUnavailable, postJSON(t, ts.URL+provider.LoginPath, creds, "").StatusCode)
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+provider.LoginPath, creds, "").StatusCode)
	require.Equal(t, 2, idp.Calls(provider.LoginPath))
}

func TestProfileRequiresLiveToken(t *testing.T) {
	idp, ts, mock := setupServer(t)
	body := login(t, ts.URL, provider.Credentials{Username: "jane", Password: "password123"})

	require.Equal(t, http.StatusUnauthorized, getProfile(t, ts.URL, "").StatusCode)
	require.Equal(t, http.StatusOK, getProfile(t, ts.URL, body.AccessToken).StatusCode)
	require.Equal(t, "Bearer "+body.AccessToken, idp.LastAuthorization(provider.ProfilePath))

	mock.Add(11 * time.Minute)
	require.Equal(t, http.StatusUnauthorized, getProfile(t, ts.URL, body.AccessToken).StatusCode)
}

func TestLogoutRevokesTokens(t *testing.T) {
	_, ts, _ := setupServer(t)
	body := login(t, ts.URL, provider.Credentials{Username: "jane", Password: "password123"})

	resp := postJSON(t, ts.URL+provider.LogoutPath, provider.LogoutRequest{RefreshToken: body.RefreshToken}, body.AccessToken)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Equal(t, http.StatusUnauthorized, getProfile(t, ts.URL, body.AccessToken).StatusCode)
	refresh := postJSON(t, ts.URL+provider.RefreshPath, provider.RefreshRequest{RefreshToken: body.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, refresh.StatusCode)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	_, ts, _ := setupServer(t)
	body := login(t, ts.URL, provider.Credentials{Username: "jane", Password: "password123"})

	resp := postJSON(t, ts.URL+provider.RefreshPath, provider.RefreshRequest{RefreshToken: body.RefreshToken}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated provider.RefreshResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rotated))
	require.NotEmpty(t, rotated.Token)
	require.NotEqual(t, body.RefreshToken, rotated.RefreshToken)
	require.Equal(t, int64(600), rotated.ExpiresIn)

	again := postJSON(t, ts.URL+provider.RefreshPath, provider.RefreshRequest{RefreshToken: body.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, again.StatusCode)
	require.Equal(t, http.StatusOK, getProfile(t, ts.URL, rotated.Token).StatusCode)
}

func TestUserRepo(t *testing.T) {
	repo := fakeprovider.NewUserRepo()
	require.Error(t, repo.Upsert(&fakeprovider.User{}))

	zed := &fakeprovider.User{Username: "zed", Roles: []string{"USER"}}
	require.NoError(t, repo.Upsert(zed))
	require.NotEmpty(t, zed.ID)
	require.NoError(t, repo.Upsert(&fakeprovider.User{ID: "u-amy", Username: "amy"}))

	got, err := repo.GetByUsername("ZED")
	require.NoError(t, err)
	require.Equal(t, zed.ID, got.ID)

	got.Roles[0] = "ADMIN"
	again, err := repo.GetByID(zed.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"USER"}, again.Roles)

	list := repo.List()
	require.Len(t, list, 2)
	require.Equal(t, "amy", list[0].Username)
	require.Equal(t, "zed", list[1].Username)

	_, err = repo.GetByUsername("nobody")
	require.ErrorIs(t, err, fakeprovider.ErrUserNotFound)
	require.ErrorIs(t, repo.SetBlocked("nobody", true), fakeprovider.ErrUserNotFound)
}

func TestPasswordHash(t *testing.T) {
	hash, err := fakeprovider.HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, fakeprovider.CheckPasswordHash("s3cret", hash))
	require.False(t, fakeprovider.CheckPasswordHash("wrong", hash))
}
