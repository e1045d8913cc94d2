// Package provider is the client side of the identity provider's /auth
// endpoints. Every call goes through the resilience layer.
package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/jrsteele09/go-card-console/identity"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/pkg/errors"
)

const (
	LoginPath   = "/auth/login"
	LogoutPath  = "/auth/logout"
	RefreshPath = "/auth/refresh"
	// ProfilePath is an authenticated endpoint returning the caller's profile.
	ProfilePath = "/api/me"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return errors.Wrap(apperrors.ErrInvalidCredentials, "username and password are required")
	}
	return nil
}

// LoginResult is the outcome of a credential exchange.
type LoginResult struct {
	Profile identity.Profile
	Tokens  identity.TokenPair
}

// Provider is the identity provider as seen by the session.
type Provider interface {
	Login(ctx context.Context, credentials Credentials) (*LoginResult, error)
	// Logout revokes tokens server side. Callers treat failures as advisory.
	Logout(ctx context.Context, tokens identity.TokenPair) error
	Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error)
}

var _ Provider = (*Client)(nil)

type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	User         identity.Profile `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type LogoutRequest = RefreshRequest

// Client talks to the identity provider over HTTP.
type Client struct {
	http  *resilience.Client
	clock clock.Clock
}

type Option func(*Client)

// WithClock sets the clock stamping IssuedAt on new token pairs (primarily for testing)
func WithClock(c clock.Clock) Option {
	return func(p *Client) {
		p.clock = c
	}
}

func New(httpClient *resilience.Client, options ...Option) *Client {
	p := &Client{
		http:  httpClient,
		clock: clock.New(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *Client) Login(ctx context.Context, credentials Credentials) (*LoginResult, error) {
	if err := credentials.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}

	resp, err := p.http.Do(ctx, &resilience.Request{
		Method:           http.MethodPost,
		Path:             LoginPath,
		Body:             credentials,
		Anonymous:        true,
		SkipAuthRecovery: true,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrTokenExpired) {
			return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[Client.Login] rejected by identity provider")
		}
		return nil, errors.Wrap(err, "[Client.Login]")
	}

	var body LoginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, errors.Wrap(apperrors.ErrUnknown, "[Client.Login] unreadable login response")
	}
	if body.AccessToken == "" || body.User.ID == "" || body.ExpiresIn <= 0 {
		return nil, errors.Wrap(apperrors.ErrUnknown, "[Client.Login] incomplete login response")
	}

	return &LoginResult{
		Profile: body.User,
		Tokens: identity.TokenPair{
			AccessToken:      body.AccessToken,
			RefreshToken:     body.RefreshToken,
			TokenType:        body.TokenType,
			ExpiresInSeconds: body.ExpiresIn,
			IssuedAt:         p.clock.Now(),
		},
	}, nil
}

// Logout carries its own bearer header so it still works after local state
// has been cleared.
func (p *Client) Logout(ctx context.Context, tokens identity.TokenPair) error {
	header := http.Header{}
	if tokens.AccessToken != "" {
		tokens.OAuth2Token().SetAuthHeader(&http.Request{Header: header})
	}
	_, err := p.http.Do(ctx, &resilience.Request{
		Method:           http.MethodPost,
		Path:             LogoutPath,
		Body:             LogoutRequest{RefreshToken: tokens.RefreshToken},
		Header:           header,
		Anonymous:        true,
		SkipAuthRecovery: true,
		Silent:           true,
	})
	return errors.Wrap(err, "[Client.Logout]")
}

func (p *Client) Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, error) {
	if refreshToken == "" {
		return identity.TokenPair{}, errors.Wrap(apperrors.ErrNoRefreshToken, "[Client.Refresh]")
	}

	resp, err := p.http.Do(ctx, &resilience.Request{
		Method:           http.MethodPost,
		Path:             RefreshPath,
		Body:             RefreshRequest{RefreshToken: refreshToken},
		Anonymous:        true,
		SkipAuthRecovery: true,
		Silent:           true,
	})
	if err != nil {
		return identity.TokenPair{}, errors.Wrap(err, "[Client.Refresh]")
	}

	var body RefreshResponse
	if err := resp.DecodeJSON(&body); err != nil || body.Token == "" || body.ExpiresIn <= 0 {
		return identity.TokenPair{}, errors.Wrap(apperrors.ErrUnknown, "[Client.Refresh] incomplete refresh response")
	}

	return identity.TokenPair{
		AccessToken:      body.Token,
		RefreshToken:     body.RefreshToken,
		TokenType:        "Bearer",
		ExpiresInSeconds: body.ExpiresIn,
		IssuedAt:         p.clock.Now(),
	}, nil
}

// Profile fetches the signed-in user's profile with the session's bearer
// token. A 401 here is a real session expiry and triggers recovery.
func (p *Client) Profile(ctx context.Context) (identity.Profile, error) {
	var profile identity.Profile
	if err := p.http.GetJSON(ctx, ProfilePath, &profile); err != nil {
		return identity.Profile{}, errors.Wrap(err, "[Client.Profile]")
	}
	return profile, nil
}
