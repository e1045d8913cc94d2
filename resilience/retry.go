package resilience

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-card-console/internal/config"
)

// Policy is the retry-with-backoff configuration for one client.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration // 0 means uncapped
	Jitter     bool
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Resilience{})
}

func PolicyFromConfig(cfg config.ResilienceConfig) Policy {
	return Policy{
		MaxRetries: cfg.GetMaxRetries(),
		BaseDelay:  cfg.GetRetryBaseDelay(),
		Multiplier: cfg.GetRetryMultiplier(),
		MaxDelay:   cfg.GetRetryMaxDelay(),
		Jitter:     cfg.GetRetryJitter(),
	}
}

// Delay is BaseDelay * Multiplier^attempt, attempt counting from 0. The
// sequence grows strictly while Multiplier > 1 and the result stays under
// MaxDelay; once capped, later delays are equal.
func (p Policy) Delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt)))
	if d < 0 && p.MaxDelay <= 0 {
		d = time.Duration(math.MaxInt64)
	}
	d = p.Cap(d)
	if p.Jitter && d > 0 {
		// up to +25%
		d += time.Duration(rand.Int64N(int64(d)/4 + 1))
	}
	return d
}

// Cap limits d to MaxDelay when one is set.
func (p Policy) Cap(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		return p.MaxDelay
	}
	return d
}

// IsRetryableStatus: no response, 408, 429 or any 5xx.
func IsRetryableStatus(status int) bool {
	return status == 0 ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		(status >= 500 && status < 600)
}

// ShouldRetry applies the idempotency rule: mutations only retry when the
// request never arrived or the service said it was unavailable.
func (p Policy) ShouldRetry(idempotent bool, status int) bool {
	if !IsRetryableStatus(status) {
		return false
	}
	if idempotent {
		return true
	}
	return status == 0 || status == http.StatusServiceUnavailable
}

func IsIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 || secs > maxRetryAfterSeconds {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
	}
	return 0, false
}
