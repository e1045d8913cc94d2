// Package session owns the live authenticated-user state: the current
// identity, its token pair, the persisted record and the timeout countdown.
// No other package mutates identity state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/jrsteele09/go-card-console/guard"
	"github.com/jrsteele09/go-card-console/identity"
	"github.com/jrsteele09/go-card-console/internal/config"
	apperrors "github.com/jrsteele09/go-card-console/internal/errors"
	"github.com/jrsteele09/go-card-console/internal/metrics"
	"github.com/jrsteele09/go-card-console/policy"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/jrsteele09/go-card-console/session/timeout"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var (
	_ guard.Source                  = (*Session)(nil)
	_ policy.SnapshotSource         = (*Session)(nil)
	_ resilience.AuthFailureHandler = (*Session)(nil)
)

// Session events, as counted in metrics.
const (
	EventLogin         = "login"
	EventLoginFailed   = "login_failed"
	EventLogout        = "logout"
	EventForcedLogout  = "forced_logout"
	EventTimeout       = "timeout"
	EventRefresh       = "refresh"
	EventRefreshFailed = "refresh_failed"
	EventRestored      = "restored"
	EventDiscarded     = "discarded"
)

type Session struct {
	mu       sync.Mutex
	identity *identity.Identity
	tokens   *identity.TokenPair

	store     credentials.Store
	provider  provider.Provider
	monitor   *timeout.Monitor
	navigator guard.Navigator
	resolver  identity.RoleResolver
	clock     clock.Clock
	metrics   *metrics.Metrics

	loginRoute     string
	defaultTimeout time.Duration

	refreshGroup singleflight.Group

	subscribers map[uint64]*subscriber
	nextSubID   uint64
}

type Option func(*Session)

// WithClock sets the clock used for token validity and the timeout monitor (primarily for testing)
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithRoleResolver(r identity.RoleResolver) Option {
	return func(s *Session) {
		s.resolver = r
	}
}

// WithNavigator is told to show the login route after a logout.
func WithNavigator(n guard.Navigator) Option {
	return func(s *Session) {
		s.navigator = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithRoutes(cfg config.RouteConfig) Option {
	return func(s *Session) {
		s.loginRoute = cfg.GetLoginRoute()
	}
}

// WithSessionConfig sets the countdown used when a token carries no lifetime.
func WithSessionConfig(cfg config.SessionConfig) Option {
	return func(s *Session) {
		s.defaultTimeout = cfg.GetDefaultSessionTimeout()
	}
}

// New returns an empty session. Call Restore to pick up a persisted record.
func New(store credentials.Store, idp provider.Provider, options ...Option) *Session {
	s := &Session{
		store:          store,
		provider:       idp,
		resolver:       identity.DefaultRoleResolver(),
		clock:          clock.New(),
		loginRoute:     config.Routes{}.GetLoginRoute(),
		defaultTimeout: config.Session{}.GetDefaultSessionTimeout(),
		subscribers:    make(map[uint64]*subscriber),
	}
	for _, opt := range options {
		opt(s)
	}
	s.monitor = timeout.New(s.expire, timeout.WithClock(s.clock))
	return s
}

// Monitor exposes the countdown for inspection.
func (s *Session) Monitor() *timeout.Monitor {
	return s.monitor
}

// Restore loads the persisted record. An absent, malformed or expired record
// leaves the session empty and the store cleared.
func (s *Session) Restore() bool {
	record, ok := s.store.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.clearLocked(EventDiscarded)
		return false
	}
	now := s.clock.Now()
	if err := record.Identity.Validate(); err != nil || !record.Tokens.ValidAt(now) {
		log.Info().Msg("discarding expired or invalid session record")
		s.clearLocked(EventDiscarded)
		return false
	}

	id := record.Identity.Clone()
	if len(id.Permissions) == 0 {
		id.Permissions = identity.PermissionsForRole(id.Role)
	}
	tokens := record.Tokens
	s.commitLocked(id, &tokens)
	s.monitor.Arm(tokens.ExpiresAt().Sub(now))
	s.metrics.SessionEvent(EventRestored)

	log.Info().Str("user_id", id.ID).Str("role", string(id.Role)).Msg("session restored")
	return true
}

// Login exchanges credentials for a token pair. On failure the session is
// left exactly as it was.
func (s *Session) Login(ctx context.Context, creds provider.Credentials) (identity.Identity, error) {
	result, err := s.provider.Login(ctx, creds)
	if err != nil {
		s.metrics.SessionEvent(EventLoginFailed)
		log.Info().Err(err).Str("username", creds.Username).Msg("login failed")
		return identity.Identity{}, errors.Wrap(err, "[Session.Login]")
	}

	id := identity.New(result.Profile, result.Tokens, s.resolver)
	if err := id.Validate(); err != nil {
		s.metrics.SessionEvent(EventLoginFailed)
		return identity.Identity{}, errors.Wrap(apperrors.ErrUnknown, "[Session.Login] "+err.Error())
	}
	tokens := result.Tokens

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(credentials.SessionRecord{Identity: *id, Tokens: tokens}); err != nil {
		s.restoreStoreLocked()
		s.metrics.SessionEvent(EventLoginFailed)
		return identity.Identity{}, errors.Wrap(err, "[Session.Login] persist session")
	}

	s.commitLocked(id, &tokens)
	s.monitor.Arm(s.countdown(id, tokens))
	s.metrics.SessionEvent(EventLogin)

	log.Info().Str("user_id", id.ID).Str("role", string(id.Role)).Msg("login succeeded")
	return *id.Clone(), nil
}

// Logout clears local state and navigates to the login route, then tells
// the provider on a best effort basis. Repeated or concurrent calls are safe.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	tokens := s.tokens
	s.clearLocked(EventLogout)
	s.mu.Unlock()

	if s.navigator != nil {
		s.navigator.Navigate(s.loginRoute)
	}

	if tokens != nil {
		if err := s.provider.Logout(ctx, *tokens); err != nil {
			log.Warn().Err(err).Msg("identity provider logout failed; local session already cleared")
		}
	}
	return nil
}

// ForceLogout clears local state after the server rejected the token. The
// caller owns navigation. A rejected token the session no longer holds
// belongs to an earlier session and is ignored, as is a bearerless request
// while the held token is still valid. It reports whether the rejection
// applies to the current state.
func (s *Session) ForceLogout(_ context.Context, rejected string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return rejected == ""
	}
	if rejected == "" {
		if s.authenticatedLocked() {
			return false
		}
	} else if s.tokens.AccessToken != rejected {
		return false
	}

	if s.identity != nil {
		log.Warn().Str("user_id", s.identity.ID).Msg("session rejected by server; logging out")
	}
	s.clearLocked(EventForcedLogout)
	return true
}

// Refresh swaps the token pair. Concurrent callers share one provider call.
// Any failure clears the session.
func (s *Session) Refresh(ctx context.Context) (identity.TokenPair, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return identity.TokenPair{}, err
	}
	return v.(identity.TokenPair), nil
}

func (s *Session) refresh(ctx context.Context) (identity.TokenPair, error) {
	s.mu.Lock()
	if s.identity == nil || s.tokens == nil || s.tokens.RefreshToken == "" {
		s.mu.Unlock()
		return identity.TokenPair{}, errors.Wrap(apperrors.ErrNoRefreshToken, "[Session.Refresh]")
	}
	previous := *s.tokens
	s.mu.Unlock()

	tokens, err := s.provider.Refresh(ctx, previous.RefreshToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil || s.tokens.RefreshToken != previous.RefreshToken {
		return identity.TokenPair{}, errors.Wrap(apperrors.ErrNotAuthenticated, "[Session.Refresh] session changed during refresh")
	}
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed; clearing session")
		s.clearLocked(EventRefreshFailed)
		return identity.TokenPair{}, errors.Wrap(err, "[Session.Refresh]")
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = previous.RefreshToken
	}

	id := s.identity.Refreshed(tokens)
	if err := s.store.Save(credentials.SessionRecord{Identity: *id, Tokens: tokens}); err != nil {
		s.clearLocked(EventRefreshFailed)
		return identity.TokenPair{}, errors.Wrap(err, "[Session.Refresh] persist session")
	}

	s.commitLocked(id, &tokens)
	s.monitor.Arm(s.countdown(id, tokens))
	s.metrics.SessionEvent(EventRefresh)
	log.Debug().Str("user_id", id.ID).Msg("token refreshed")
	return tokens, nil
}

// IsAuthenticated is true while an identity and an unexpired token are held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedLocked()
}

// CurrentIdentity returns a copy of the current identity, or nil.
func (s *Session) CurrentIdentity() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone()
}

// Tokens returns a copy of the current token pair.
func (s *Session) Tokens() (identity.TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return identity.TokenPair{}, false
	}
	return *s.tokens, true
}

// Subscribe calls fn with the current identity and then with every change,
// in commit order, until the returned func is called. fn runs on its own
// goroutine.
func (s *Session) Subscribe(fn func(*identity.Identity)) func() {
	return s.subscribe(fn, nil)
}

// IdentityChanges is Subscribe as a channel. The channel is closed once the
// cancel func has been called.
func (s *Session) IdentityChanges() (<-chan *identity.Identity, func()) {
	ch := make(chan *identity.Identity)
	done := make(chan struct{})
	var once sync.Once

	unsubscribe := s.subscribe(func(id *identity.Identity) {
		select {
		case ch <- id:
		case <-done:
		}
	}, func() { close(ch) })

	return ch, func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}
}

func (s *Session) subscribe(fn func(*identity.Identity), onStop func()) func() {
	sub := newSubscriber(fn, onStop)

	s.mu.Lock()
	s.nextSubID++
	subID := s.nextSubID
	s.subscribers[subID] = sub
	sub.push(s.identity.Clone())
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, subID)
		s.mu.Unlock()
		sub.stop()
	}
}

// TokenSource yields the current access token for outbound requests.
func (s *Session) TokenSource() oauth2.TokenSource {
	return tokenSource{session: s}
}

type tokenSource struct {
	session *Session
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	s := t.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		return nil, errors.Wrap(apperrors.ErrNotAuthenticated, "[Session.Token]")
	}
	if !s.authenticatedLocked() {
		return nil, errors.Wrap(apperrors.ErrTokenExpired, "[Session.Token]")
	}
	return s.tokens.OAuth2Token(), nil
}

func (s *Session) expire() {
	log.Info().Msg("session timed out")
	s.metrics.SessionEvent(EventTimeout)
	_ = s.Logout(context.Background())
}

func (s *Session) authenticatedLocked() bool {
	return s.identity != nil && s.tokens != nil && s.tokens.ValidAt(s.clock.Now())
}

// countdown prefers the profile's own session timeout, then the token
// lifetime, then the configured default.
func (s *Session) countdown(id *identity.Identity, tokens identity.TokenPair) time.Duration {
	if d, ok := id.SessionTimeout(); ok {
		return d
	}
	if d := tokens.Lifetime(); d > 0 {
		return d
	}
	return s.defaultTimeout
}

// commitLocked installs new state and queues the snapshot for every
// subscriber. Queuing under the lock keeps delivery in commit order.
func (s *Session) commitLocked(id *identity.Identity, tokens *identity.TokenPair) {
	s.identity = id
	s.tokens = tokens
	for _, sub := range s.subscribers {
		sub.push(id.Clone())
	}
}

// clearLocked always re-issues the store clear; subscribers only hear about
// an actual transition to logged out.
func (s *Session) clearLocked(event string) {
	s.monitor.Disarm()
	if err := s.store.Clear(); err != nil {
		log.Err(err).Msg("failed to clear credential store")
	}
	if s.identity == nil && s.tokens == nil {
		return
	}
	s.commitLocked(nil, nil)
	s.metrics.SessionEvent(event)
}

// restoreStoreLocked puts the store back in line with memory after a failed save.
func (s *Session) restoreStoreLocked() {
	if s.identity == nil || s.tokens == nil {
		if err := s.store.Clear(); err != nil {
			log.Err(err).Msg("failed to clear credential store")
		}
		return
	}
	if err := s.store.Save(credentials.SessionRecord{Identity: *s.identity, Tokens: *s.tokens}); err != nil {
		log.Err(err).Msg("failed to restore previous session record")
	}
}
