// Package policies wires the built-in policy factories into a registry.
package policies

import (
	"log/slog"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/policies/expression"
	"meridian-hq/meridian/pkg/policies/log"
	"meridian-hq/meridian/pkg/policies/oauth2"
	"meridian-hq/meridian/pkg/policies/proxy"
	"meridian-hq/meridian/pkg/policies/ratelimit"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Options carries the collaborators the built-in policies depend on.
type Options struct {
	// Config supplies the service endpoints the proxy policy resolves.
	Config *config.Config

	// Store backs the rate limiter.
	Store store.Store

	// OAuth2 is the authorization server the oauth2 policy validates
	// against.
	OAuth2 *oauth2.Server

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics collectors; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// NewRegistry builds a registry holding every built-in policy: oauth2,
// expression, log, rate-limit, and proxy.
func NewRegistry(opts Options) *gateway.Registry {
	reg := gateway.NewRegistry()
	reg.MustRegister(oauth2.NewFactory(opts.OAuth2))
	reg.MustRegister(expression.NewFactory())
	reg.MustRegister(log.NewFactory(opts.Logger))
	reg.MustRegister(ratelimit.NewFactory(opts.Store, opts.Metrics))
	reg.MustRegister(proxy.NewFactory(opts.Config.ServiceEndpoints, opts.Logger, opts.Metrics))
	return reg
}
