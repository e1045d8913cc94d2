package server

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/jrsteele09/go-card-console/credentials"
	"github.com/jrsteele09/go-card-console/guard"
	"github.com/jrsteele09/go-card-console/identity"
	"github.com/jrsteele09/go-card-console/internal/config"
	"github.com/jrsteele09/go-card-console/internal/metrics"
	"github.com/jrsteele09/go-card-console/provider"
	"github.com/jrsteele09/go-card-console/resilience"
	"github.com/jrsteele09/go-card-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Console is the auth core wired together: one session, the request layer
// that recovers from its expiry, and the guard reading it.
type Console struct {
	Metrics       *metrics.Metrics
	Navigator     *Navigator
	Notifications *resilience.NotificationLog
	Loading       *resilience.LoadingCounter
	API           *resilience.Client
	Provider      *provider.Client
	Session       *session.Session
	Guard         *guard.Guard
}

type consoleOptions struct {
	clock             clock.Clock
	httpClient        *http.Client
	resolver          identity.RoleResolver
	resilienceOptions []resilience.Option
}

type ConsoleOption func(*consoleOptions)

func WithClock(c clock.Clock) ConsoleOption {
	return func(o *consoleOptions) {
		o.clock = c
	}
}

func WithHTTPClient(hc *http.Client) ConsoleOption {
	return func(o *consoleOptions) {
		o.httpClient = hc
	}
}

func WithRoleResolver(r identity.RoleResolver) ConsoleOption {
	return func(o *consoleOptions) {
		o.resolver = r
	}
}

// WithResilienceOptions appends options to the request layer, after the
// configured ones.
func WithResilienceOptions(options ...resilience.Option) ConsoleOption {
	return func(o *consoleOptions) {
		o.resilienceOptions = append(o.resilienceOptions, options...)
	}
}

// NewConsole wires the console against cfg and restores any session left
// in store.
func NewConsole(cfg config.Config, store credentials.Store, options ...ConsoleOption) (*Console, error) {
	opts := consoleOptions{clock: clock.New()}
	for _, opt := range options {
		opt(&opts)
	}

	c := &Console{
		Metrics:       metrics.New(),
		Navigator:     NewNavigator(cfg.GetLoginRoute()),
		Notifications: &resilience.NotificationLog{},
		Loading:       &resilience.LoadingCounter{},
	}

	rcOptions := []resilience.Option{
		resilience.WithClock(opts.clock),
		resilience.WithNotifier(c.Notifications),
		resilience.WithLoadingTracker(c.Loading),
		resilience.WithNavigator(c.Navigator),
		resilience.WithMetrics(c.Metrics),
	}
	if opts.httpClient != nil {
		rcOptions = append(rcOptions, resilience.WithHTTPClient(opts.httpClient))
	}
	api, err := resilience.NewFromConfig(cfg, append(rcOptions, opts.resilienceOptions...)...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewConsole] request layer")
	}
	c.API = api
	c.Provider = provider.New(api, provider.WithClock(opts.clock))

	sessionOptions := []session.Option{
		session.WithClock(opts.clock),
		session.WithNavigator(c.Navigator),
		session.WithMetrics(c.Metrics),
		session.WithRoutes(cfg),
		session.WithSessionConfig(cfg),
	}
	if opts.resolver != nil {
		sessionOptions = append(sessionOptions, session.WithRoleResolver(opts.resolver))
	}
	c.Session = session.New(store, c.Provider, sessionOptions...)
	api.SetAuthFailureHandler(c.Session)
	api.SetTokenSource(c.Session.TokenSource())

	c.Guard = guard.New(c.Session, guard.WithRoutes(cfg), guard.WithMetrics(c.Metrics))

	if c.Session.Restore() {
		log.Info().Msg("resumed previous session")
	}
	return c, nil
}
