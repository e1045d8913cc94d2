package config

import "time"

type ResilienceConfig interface {
	GetMaxRetries() int
	GetRetryBaseDelay() time.Duration
	GetRetryMultiplier() float64
	GetRetryMaxDelay() time.Duration
	GetRetryJitter() bool
	GetRequestRateLimit() float64
}

type Resilience struct{}

var _ ResilienceConfig = Resilience{}

func (Resilience) GetMaxRetries() int {
	return GetEnvInt("MAX_RETRIES", 3)
}

func (Resilience) GetRetryBaseDelay() time.Duration {
	return GetEnvDuration("RETRY_BASE_DELAY", 1*time.Second)
}

func (Resilience) GetRetryMultiplier() float64 {
	return GetEnvFloat("RETRY_MULTIPLIER", 2)
}

func (Resilience) GetRetryMaxDelay() time.Duration {
	return GetEnvDuration("RETRY_MAX_DELAY", 30*time.Second)
}

func (Resilience) GetRetryJitter() bool {
	return GetEnvBool("RETRY_JITTER", false)
}

// GetRequestRateLimit is requests per second for outbound calls; 0 disables the limiter.
func (Resilience) GetRequestRateLimit() float64 {
	return GetEnvFloat("REQUEST_RATE_LIMIT", 0)
}
