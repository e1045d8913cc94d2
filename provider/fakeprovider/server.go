// Package fakeprovider is an in-process identity provider speaking the
// /auth wire protocol. It backs tests and the console's demo mode.
package fakeprovider

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-card-console/identity"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type refreshGrant struct {
	UserID string
	Issued time.Time
}

type fault struct {
	status    int
	remaining int
}

// Server implements http.Handler.
type Server struct {
	users          *UserRepo
	clock          clock.Clock
	signingKey     []byte
	accessTokenTTL time.Duration

	mu       sync.Mutex
	grants   map[string]refreshGrant // refresh token -> grant, single use
	revoked  map[string]struct{}     // access token jti
	faults   map[string]*fault
	calls    map[string]int
	lastAuth map[string]string // path -> Authorization header of the latest call

	mux *http.ServeMux
}

type Option func(*Server)

// WithClock sets the clock (primarily for testing)
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithAccessTokenTTL sets expires_in for issued tokens. Defaults to one hour.
func WithAccessTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTokenTTL = d
	}
}

func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = key
	}
}

func New(options ...Option) *Server {
	s := &Server{
		users:          NewUserRepo(),
		clock:          clock.New(),
		accessTokenTTL: time.Hour,
		grants:         make(map[string]refreshGrant),
		revoked:        make(map[string]struct{}),
		faults:         make(map[string]*fault),
		calls:          make(map[string]int),
		lastAuth:       make(map[string]string),
	}
	for _, opt := range options {
		opt(s)
	}
	if len(s.signingKey) == 0 {
		s.signingKey = []byte(uuid.NewString())
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST "+provider.LoginPath, s.track(provider.LoginPath, s.handleLogin))
	s.mux.HandleFunc("POST "+provider.RefreshPath, s.track(provider.RefreshPath, s.handleRefresh))
	s.mux.HandleFunc("POST "+provider.LogoutPath, s.track(provider.LogoutPath, s.handleLogout))
	s.mux.HandleFunc("GET "+provider.ProfilePath, s.track(provider.ProfilePath, s.handleMe))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Users() *UserRepo {
	return s.users
}

// AddUser registers username with a bcrypt hash of password.
func (s *Server) AddUser(user User, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Server.AddUser] HashPassword")
	}
	user.PasswordHash = hash
	if err := s.users.Upsert(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SeedDemoUsers adds "admin"/"admin123" and "jane"/"password123".
func (s *Server) SeedDemoUsers() error {
	if _, err := s.AddUser(User{ID: "u-admin", Username: "admin", DisplayName: "Administrator"}, "admin123"); err != nil {
		return err
	}
	_, err := s.AddUser(User{ID: "u-jane", Username: "jane", DisplayName: "Jane Doe"}, "password123")
	return err
}

// FailNext makes the next n calls to path answer with status.
func (s *Server) FailNext(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = &fault{status: status, remaining: n}
}

// Calls counts requests received on path, including injected failures.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// LastAuthorization is the Authorization header of the latest call to path.
func (s *Server) LastAuthorization(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[path]
}

// RevokeAll invalidates every outstanding refresh token and access token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = make(map[string]refreshGrant)
	s.signingKey = []byte(uuid.NewString())
}

func (s *Server) track(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[path]++
		s.lastAuth[path] = r.Header.Get("Authorization")
		var status int
		if f, ok := s.faults[path]; ok && f.remaining > 0 {
			f.remaining--
			status = f.status
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds provider.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed login request.")
		return
	}

	user, err := s.users.GetByUsername(creds.Username)
	if err != nil || !CheckPasswordHash(creds.Password, user.PasswordHash) {
		log.Debug().Str("username", creds.Username).Msg("fake provider rejected credentials")
		writeError(w, http.StatusUnauthorized, "Invalid username or password.")
		return
	}
	if user.Blocked {
		writeError(w, http.StatusForbidden, "This account is blocked.")
		return
	}

	accessToken, refreshToken, err := s.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue tokens.")
		return
	}
	lastLogin := user.LastLogin
	s.users.SetLastLogin(user.ID, s.clock.Now())

	writeJSON(w, http.StatusOK, provider.LoginResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenTTL / time.Second),
		RefreshToken: refreshToken,
		User: identity.Profile{
			ID:               user.ID,
			Username:         user.Username,
			DisplayName:      user.DisplayName,
			Language:         user.Language,
			LastLogin:        lastLogin,
			SessionTimeoutMs: user.SessionTimeoutMs,
			Roles:            user.Roles,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req provider.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "A refresh token is required.")
		return
	}

	s.mu.Lock()
	grant, ok := s.grants[req.RefreshToken]
	delete(s.grants, req.RefreshToken)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Refresh token is invalid or already used.")
		return
	}

	user, err := s.users.GetByID(grant.UserID)
	if err != nil || user.Blocked {
		writeError(w, http.StatusUnauthorized, "Refresh token is invalid or already used.")
		return
	}

	accessToken, refreshToken, err := s.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue tokens.")
		return
	}
	writeJSON(w, http.StatusOK, provider.RefreshResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL / time.Second),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req provider.LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.grants, req.RefreshToken)
	s.mu.Unlock()

	if claims, err := s.verify(r); err == nil {
		if jti, _ := claims["jti"].(string); jti != "" {
			s.mu.Lock()
			s.revoked[jti] = struct{}{}
			s.mu.Unlock()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, err := s.verify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	sub, _ := claims["sub"].(string)
	user, err := s.users.GetByID(sub)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	writeJSON(w, http.StatusOK, identity.Profile{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Language:    user.Language,
		LastLogin:   user.LastLogin,
		Roles:       user.Roles,
	})
}

func (s *Server) issue(user *User) (string, string, error) {
	now := s.clock.Now()
	claims := jwtlib.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTokenTTL).Unix(),
		"jti":      uuid.New().String(),
	}
	if len(user.Roles) > 0 {
		claims["roles"] = user.Roles
	}

	s.mu.Lock()
	key := s.signingKey
	s.mu.Unlock()
	accessToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", "", errors.Wrap(err, "[Server.issue] SignedString")
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", errors.Wrap(err, "[Server.issue] rand.Read")
	}
	refreshToken := hex.EncodeToString(tokenBytes)

	s.mu.Lock()
	s.grants[refreshToken] = refreshGrant{UserID: user.ID, Issued: now}
	s.mu.Unlock()
	return accessToken, refreshToken, nil
}

func (s *Server) verify(r *http.Request) (jwtlib.MapClaims, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing bearer token")
	}

	s.mu.Lock()
	key := s.signingKey
	s.mu.Unlock()

	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	}, jwtlib.WithTimeFunc(s.clock.Now), jwtlib.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(err, "[Server.verify] Parse")
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[Server.verify] unexpected claims type")
	}

	jti, _ := claims["jti"].(string)
	s.mu.Lock()
	_, revoked := s.revoked[jti]
	s.mu.Unlock()
	if revoked {
		return nil, errors.New("[Server.verify] token revoked")
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("fake provider failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
