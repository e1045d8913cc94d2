package config

import "time"

type Config interface {
	EnvConfig
	ResilienceConfig
	SessionConfig
	RouteConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
	GetCredentialsDir() string
}

type RouteConfig interface {
	GetLoginRoute() string
	GetRegularLandingRoute() string
	GetAdminLandingRoute() string
}

type mainConfig struct {
	EnvVars
	Resilience
	Session
	Routes
}

func New() Config {
	return mainConfig{}
}

// Static is a fixed Config, used by tests and by callers that build their
// configuration from flags rather than the environment.
type Static struct {
	Port                  string
	AppName               string
	Env                   string
	LogLevel              string
	APIBaseURL            string
	CredentialsDir        string
	MaxRetries            int
	RetryBaseDelay        time.Duration
	RetryMultiplier       float64
	RetryMaxDelay         time.Duration
	RetryJitter           bool
	RequestRateLimit      float64
	ForcedLogoutDelay     time.Duration
	DefaultSessionTimeout time.Duration
	LoginRoute            string
	RegularLandingRoute   string
	AdminLandingRoute     string
}

var _ Config = Static{}

func (s Static) GetPort() string                         { return s.Port }
func (s Static) GetAppName() string                      { return s.AppName }
func (s Static) GetEnv() string                          { return s.Env }
func (s Static) GetLogLevel() string                     { return s.LogLevel }
func (s Static) GetAPIBaseURL() string                   { return s.APIBaseURL }
func (s Static) GetCredentialsDir() string               { return s.CredentialsDir }
func (s Static) GetMaxRetries() int                      { return s.MaxRetries }
func (s Static) GetRetryBaseDelay() time.Duration        { return s.RetryBaseDelay }
func (s Static) GetRetryMultiplier() float64             { return s.RetryMultiplier }
func (s Static) GetRetryMaxDelay() time.Duration         { return s.RetryMaxDelay }
func (s Static) GetRetryJitter() bool                    { return s.RetryJitter }
func (s Static) GetRequestRateLimit() float64            { return s.RequestRateLimit }
func (s Static) GetForcedLogoutDelay() time.Duration     { return s.ForcedLogoutDelay }
func (s Static) GetDefaultSessionTimeout() time.Duration { return s.DefaultSessionTimeout }
func (s Static) GetLoginRoute() string                   { return s.LoginRoute }
func (s Static) GetRegularLandingRoute() string          { return s.RegularLandingRoute }
func (s Static) GetAdminLandingRoute() string            { return s.AdminLandingRoute }

// Defaults snapshots the environment backed configuration into a Static so
// command line flags can override individual fields.
func Defaults() Static {
	env := EnvVars{}
	res := Resilience{}
	ses := Session{}
	rts := Routes{}
	return Static{
		Port:                  env.GetPort(),
		AppName:               env.GetAppName(),
		Env:                   env.GetEnv(),
		LogLevel:              env.GetLogLevel(),
		APIBaseURL:            env.GetAPIBaseURL(),
		CredentialsDir:        env.GetCredentialsDir(),
		MaxRetries:            res.GetMaxRetries(),
		RetryBaseDelay:        res.GetRetryBaseDelay(),
		RetryMultiplier:       res.GetRetryMultiplier(),
		RetryMaxDelay:         res.GetRetryMaxDelay(),
		RetryJitter:           res.GetRetryJitter(),
		RequestRateLimit:      res.GetRequestRateLimit(),
		ForcedLogoutDelay:     ses.GetForcedLogoutDelay(),
		DefaultSessionTimeout: ses.GetDefaultSessionTimeout(),
		LoginRoute:            rts.GetLoginRoute(),
		RegularLandingRoute:   rts.GetRegularLandingRoute(),
		AdminLandingRoute:     rts.GetAdminLandingRoute(),
	}
}
