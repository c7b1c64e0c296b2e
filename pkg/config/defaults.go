package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultProxyTimeout    = 30 * time.Second

	DefaultTokenFormat    = "opaque"
	DefaultTokenTTL       = time.Hour
	DefaultTransactionTTL = 5 * time.Minute
	DefaultSessionTTL     = 30 * time.Minute
	DefaultSessionCookie  = "meridian_session"

	DefaultStoreBackend  = "memory"
	DefaultSweepSchedule = "*/5 * * * *"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills zero-value fields with their documented defaults.
// It is called by Load before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.HTTP.ListenAddress == "" {
		cfg.HTTP.ListenAddress = DefaultListenAddress
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	for name, svc := range cfg.ServiceEndpoints {
		if svc.Timeout == 0 {
			svc.Timeout = Duration(DefaultProxyTimeout)
			cfg.ServiceEndpoints[name] = svc
		}
	}

	if cfg.OAuth2.TokenFormat == "" {
		cfg.OAuth2.TokenFormat = DefaultTokenFormat
	}
	if cfg.OAuth2.TokenTTL == 0 {
		cfg.OAuth2.TokenTTL = Duration(DefaultTokenTTL)
	}
	if cfg.OAuth2.TransactionTTL == 0 {
		cfg.OAuth2.TransactionTTL = Duration(DefaultTransactionTTL)
	}
	if cfg.OAuth2.SessionTTL == 0 {
		cfg.OAuth2.SessionTTL = Duration(DefaultSessionTTL)
	}
	if cfg.OAuth2.SessionCookie == "" {
		cfg.OAuth2.SessionCookie = DefaultSessionCookie
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = DefaultStoreBackend
	}
	if cfg.Store.SweepSchedule == "" {
		cfg.Store.SweepSchedule = DefaultSweepSchedule
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}
