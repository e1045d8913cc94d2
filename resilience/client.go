// Package resilience wraps every outbound request: transient failures are
// retried with exponential backoff, terminal failures are classified and
// surfaced as user messages, and a 401 forces the session back to login.
package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-card-console/guard"
	"github.com/jrsteele09/go-card-console/internal/config"
	"github.com/jrsteele09/go-card-console/internal/metrics"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// Request describes one logical call; the client may send it several times.
type Request struct {
	Method string
	Path   string // joined to the base URL unless absolute
	Query  url.Values
	Body   any // JSON encoded when non-nil
	Header http.Header

	// Idempotent overrides the method based default.
	Idempotent *bool
	// Anonymous suppresses the bearer token.
	Anonymous bool
	// SkipAuthRecovery turns a 401 into a plain error. Credential exchange
	// calls use it: a 401 there means bad credentials, not an expired session.
	SkipAuthRecovery bool
	// Silent suppresses the user notification; the error is still returned.
	Silent bool
}

func (r *Request) idempotent() bool {
	if r.Idempotent != nil {
		return *r.Idempotent
	}
	return IsIdempotentMethod(r.Method)
}

// Response is a successful (status < 400) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
	RequestID  string
}

func (r *Response) DecodeJSON(v any) error {
	if len(r.Body) == 0 {
		return errors.New("[resilience.Response.DecodeJSON] empty body")
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "[resilience.Response.DecodeJSON]")
}

// Client is the generic send-request entry point used by every domain service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	policy     Policy
	clock      clock.Clock
	sleep      func(ctx context.Context, d time.Duration) error
	limiter    *rate.Limiter
	tokens     oauth2.TokenSource

	notifier          Notifier
	loading           LoadingTracker
	navigator         guard.Navigator
	authFailure       AuthFailureHandler
	loginRoute        string
	forcedLogoutDelay time.Duration
	redirectPending   atomic.Bool

	onTransition func(Transition)
	metrics      *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithClock sets the clock used for backoff waits and the forced logout delay.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

// WithSleeper replaces the backoff wait entirely (primarily for testing).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithRateLimit throttles outbound attempts client side. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTokenSource attaches the bearer token to non-anonymous requests.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

func WithLoadingTracker(l LoadingTracker) Option {
	return func(c *Client) {
		c.loading = l
	}
}

func WithNavigator(n guard.Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

func WithAuthFailureHandler(h AuthFailureHandler) Option {
	return func(c *Client) {
		c.authFailure = h
	}
}

func WithLoginRoute(route string) Option {
	return func(c *Client) {
		c.loginRoute = route
	}
}

func WithForcedLogoutDelay(d time.Duration) Option {
	return func(c *Client) {
		c.forcedLogoutDelay = d
	}
}

func WithTransitionHook(fn func(Transition)) Option {
	return func(c *Client) {
		c.onTransition = fn
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[resilience.New] invalid base URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[resilience.New] base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:           u,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		policy:            DefaultPolicy(),
		clock:             clock.New(),
		loginRoute:        config.Routes{}.GetLoginRoute(),
		forcedLogoutDelay: config.Session{}.GetForcedLogoutDelay(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// NewFromConfig wires policy, limiter, login route and logout delay from cfg.
func NewFromConfig(cfg config.Config, options ...Option) (*Client, error) {
	base := []Option{
		WithPolicy(PolicyFromConfig(cfg)),
		WithRateLimit(cfg.GetRequestRateLimit(), 1),
		WithLoginRoute(cfg.GetLoginRoute()),
		WithForcedLogoutDelay(cfg.GetForcedLogoutDelay()),
	}
	return New(cfg.GetAPIBaseURL(), append(base, options...)...)
}

// SetAuthFailureHandler wires the session after construction; the session
// itself needs a client to reach the identity provider.
func (c *Client) SetAuthFailureHandler(h AuthFailureHandler) {
	c.authFailure = h
}

func (c *Client) SetTokenSource(ts oauth2.TokenSource) {
	c.tokens = ts
}

func (c *Client) Policy() Policy {
	return c.policy
}

// Do sends req, retrying per the policy. Errors are *Error unless the
// context was cancelled or the request could not be built.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("[resilience.Client.Do] request is nil")
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	done := c.beginLoading()
	defer done()

	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if req.Body != nil {
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, errors.Wrap(err, "[resilience.Client.Do] marshal body")
		}
	}

	requestID := uuid.NewString()
	idempotent := req.idempotent()
	started := c.clock.Now()
	defer func() { c.metrics.ObserveDuration(req.Method, c.clock.Since(started)) }()

	for attempt := 0; ; attempt++ {
		c.transition(Transition{RequestID: requestID, Method: req.Method, URL: target, Attempt: attempt, State: StatePending})

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "[resilience.Client.Do] rate limiter")
			}
		}

		res, sendErr := c.send(ctx, req.Method, target, payload, req, requestID)
		status := res.status
		if sendErr == nil && status < 400 {
			c.metrics.ObserveAttempt(req.Method, "success")
			c.transition(Transition{RequestID: requestID, Method: req.Method, URL: target, Attempt: attempt, State: StateSucceeded, Status: status})
			return &Response{StatusCode: status, Header: res.header, Body: res.body, Attempts: attempt + 1, RequestID: requestID}, nil
		}
		c.metrics.ObserveAttempt(req.Method, "failure")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "[resilience.Client.Do] request cancelled")
		}

		if attempt < c.policy.MaxRetries && c.policy.ShouldRetry(idempotent, status) {
			delay := c.policy.Delay(attempt)
			if status == http.StatusTooManyRequests {
				if after, ok := retryAfter(res.header, c.clock.Now()); ok {
					delay = max(delay, c.policy.Cap(after))
				}
			}
			c.metrics.ObserveRetry(req.Method)
			c.transition(Transition{RequestID: requestID, Method: req.Method, URL: target, Attempt: attempt, State: StateRetrying, Status: status, Delay: delay})
			log.Debug().
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("url", target).
				Int("status", status).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("retrying request")
			if err := c.wait(ctx, delay); err != nil {
				return nil, errors.Wrap(err, "[resilience.Client.Do] backoff interrupted")
			}
			continue
		}

		failure := Classify(status, res.body, sendErr)
		failure.Attempts = attempt + 1
		c.transition(Transition{RequestID: requestID, Method: req.Method, URL: target, Attempt: attempt, State: StateFailed, Status: status, Kind: failure.Kind})
		log.Warn().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("url", target).
			Int("status", status).
			Int("attempts", failure.Attempts).
			Str("kind", string(failure.Kind)).
			Msg("request failed")
		c.handleFailure(ctx, req, failure, res.bearer)
		return nil, failure
	}
}

// GetJSON is Do(GET) decoding the reply into out (which may be nil).
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.SendJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.SendJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.Do(ctx, &Request{Method: method, Path: path, Body: in})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.DecodeJSON(out)
}

func (c *Client) resolve(req *Request) (string, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return "", errors.Wrap(err, "[resilience.Client.Do] invalid path")
	}
	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.baseURL.JoinPath(ref.Path)
		u.RawQuery = ref.RawQuery
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// reply is one attempt's outcome. bearer is the access token that was sent.
type reply struct {
	status int
	header http.Header
	body   []byte
	bearer string
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, req *Request, requestID string) (reply, error) {
	var out reply
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return out, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if !req.Anonymous && c.tokens != nil {
		if tok, err := c.tokens.Token(); err == nil && tok.AccessToken != "" {
			tok.SetAuthHeader(httpReq)
			out.bearer = tok.AccessToken
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, err
	}
	out.status, out.header, out.body = resp.StatusCode, resp.Header, data
	return out, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) handleFailure(ctx context.Context, req *Request, failure *Error, bearer string) {
	c.metrics.ObserveFailure(string(failure.Kind))

	if failure.Kind == KindTokenExpired {
		if !req.SkipAuthRecovery {
			c.recoverSession(ctx, bearer)
		}
		return
	}

	if req.Silent || c.notifier == nil {
		return
	}
	c.notifier.Notify(Notification{
		Kind:    failure.Kind,
		Status:  failure.Status,
		Message: failure.Message,
		Fields:  failure.Fields,
	})
}

// recoverSession clears the session at once and sends the user to login
// after the forced logout delay, returning them to the URL active now.
// A 401 for a token the session no longer holds changes nothing.
func (c *Client) recoverSession(ctx context.Context, rejected string) {
	var returnURL string
	if c.navigator != nil {
		returnURL = c.navigator.CurrentURL()
	}

	if c.authFailure != nil && !c.authFailure.ForceLogout(context.WithoutCancel(ctx), rejected) {
		log.Debug().Msg("ignoring 401 for a superseded session")
		return
	}
	log.Warn().Str("return_url", returnURL).Msg("request unauthenticated; forcing logout")
	if c.navigator == nil {
		return
	}
	if !c.redirectPending.CompareAndSwap(false, true) {
		return
	}

	target := guard.LoginURL(c.loginRoute, returnURL)
	navigate := func() {
		c.redirectPending.Store(false)
		c.navigator.Navigate(target)
	}
	if c.forcedLogoutDelay <= 0 {
		navigate()
		return
	}
	c.clock.AfterFunc(c.forcedLogoutDelay, navigate)
}

func (c *Client) beginLoading() func() {
	if c.loading == nil {
		return func() {}
	}
	var once sync.Once
	done := c.loading.Begin()
	return func() {
		once.Do(func() {
			if done != nil {
				done()
			}
		})
	}
}

func (c *Client) transition(t Transition) {
	if c.onTransition != nil {
		c.onTransition(t)
	}
}
