// Package ratelimit implements the rate-limit policy: fixed-window request
// counting over the shared store, keyed by a rendered template.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// DefaultWindow is the counting window applied when an action does not
// configure one.
const DefaultWindow = time.Minute

// DefaultKey buckets requests per client host when an action does not
// configure a key template.
const DefaultKey = "${req.host}"

// Factory builds rate-limit policies bound to a shared store.
type Factory struct {
	store   store.Store
	metrics *metrics.Metrics
}

// NewFactory creates the rate-limit policy factory.
func NewFactory(s store.Store, m *metrics.Metrics) *Factory {
	return &Factory{store: s, metrics: m}
}

// Name returns the policy name.
func (f *Factory) Name() string { return "rate-limit" }

type params struct {
	// Max is the number of requests admitted per window.
	Max int64 `yaml:"max"`

	// Window is the fixed counting window. Default: 1m
	Window config.Duration `yaml:"window"`

	// Key is the bucket key template. Default: "${req.host}"
	Key string `yaml:"key"`
}

// Compile validates the action params and binds the limiter.
func (f *Factory) Compile(raw map[string]any) (gateway.Policy, error) {
	if f.store == nil {
		return nil, fmt.Errorf("rate-limit policy requires a store")
	}

	p := params{Window: config.Duration(DefaultWindow), Key: DefaultKey}
	if err := gateway.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Max <= 0 {
		return nil, fmt.Errorf("rate-limit policy requires max > 0")
	}
	if p.Window.Std() <= 0 {
		return nil, fmt.Errorf("rate-limit window must be positive")
	}
	if p.Key == "" {
		return nil, fmt.Errorf("rate-limit key cannot be empty")
	}

	return gateway.PolicyFunc(func(ctx context.Context, ec *gateway.Context) gateway.Outcome {
		key := "ratelimit:" + ec.Endpoint + ":" + eval.Render(ec, p.Key)

		result, err := f.store.IncrWindow(ctx, key, p.Max, p.Window.Std())
		if err != nil {
			return gateway.Fail(fmt.Errorf("rate-limit policy: %w", err))
		}
		if !result.Allowed {
			f.metrics.ObserveRateLimitRejection(ec.Endpoint)
			header := http.Header{}
			if retry := time.Until(result.ExpiresAt); retry > 0 {
				header.Set("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())+1))
			}
			return gateway.HaltWithHeader(http.StatusTooManyRequests, header,
				[]byte("Too Many Requests"))
		}
		return gateway.Continue()
	}), nil
}
