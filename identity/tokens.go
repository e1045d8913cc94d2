package identity

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenPair is the bearer material issued by the identity provider. It is
// replaced, never mutated, on refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	TokenType        string    `json:"tokenType,omitempty"`
	ExpiresInSeconds int64     `json:"expiresIn"`
	IssuedAt         time.Time `json:"issuedAt"`
}

// Claims parses the access token as a JWT without verifying it. Opaque
// tokens yield ok == false.
func (t TokenPair) Claims() (jwtlib.MapClaims, bool) {
	if t.AccessToken == "" {
		return nil, false
	}
	token, _, err := jwtlib.NewParser().ParseUnverified(t.AccessToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	return claims, ok
}

// ExpiryClaim returns the JWT "exp" claim when the access token carries one.
func (t TokenPair) ExpiryClaim() (time.Time, bool) {
	claims, ok := t.Claims()
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiresAt is IssuedAt + ExpiresInSeconds, or the JWT exp claim if earlier.
func (t TokenPair) ExpiresAt() time.Time {
	expiresAt := t.IssuedAt.Add(time.Duration(t.ExpiresInSeconds) * time.Second)
	if claimed, ok := t.ExpiryClaim(); ok && claimed.Before(expiresAt) {
		return claimed
	}
	return expiresAt
}

func (t TokenPair) ValidAt(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt())
}

// Lifetime is the configured validity window.
func (t TokenPair) Lifetime() time.Duration {
	return time.Duration(t.ExpiresInSeconds) * time.Second
}

func (t TokenPair) OAuth2Token() *oauth2.Token {
	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    tokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
	}
}
