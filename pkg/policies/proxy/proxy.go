// Package proxy implements the proxy policy: it forwards the request, with
// any mutations earlier steps applied, to a configured service endpoint and
// returns the backend response as the pipeline's final outcome.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// Factory builds proxy policies bound to the configured service endpoints.
type Factory struct {
	services map[string]config.ServiceEndpoint
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// newClient is swapped in tests to intercept transport construction.
	newClient func(timeout time.Duration) *http.Client
}

// NewFactory creates the proxy policy factory.
func NewFactory(services map[string]config.ServiceEndpoint, logger *slog.Logger, m *metrics.Metrics) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		services:  services,
		logger:    logger.With("policy", "proxy"),
		metrics:   m,
		newClient: defaultClient,
	}
}

func defaultClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Name returns the policy name.
func (f *Factory) Name() string { return "proxy" }

type params struct {
	// ServiceEndpoint names the backend from serviceEndpoints to forward
	// to.
	ServiceEndpoint string `yaml:"serviceEndpoint"`
}

// Compile resolves the named service endpoint at startup; an unknown name
// is a configuration error.
func (f *Factory) Compile(raw map[string]any) (gateway.Policy, error) {
	var p params
	if err := gateway.DecodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ServiceEndpoint == "" {
		return nil, fmt.Errorf("proxy policy requires a serviceEndpoint")
	}
	service, ok := f.services[p.ServiceEndpoint]
	if !ok {
		return nil, fmt.Errorf("unknown serviceEndpoint %q", p.ServiceEndpoint)
	}

	timeout := service.Timeout.Std()
	if timeout <= 0 {
		timeout = config.DefaultProxyTimeout
	}
	client := f.newClient(timeout)
	base := strings.TrimRight(service.URL, "/")
	name := p.ServiceEndpoint

	return gateway.PolicyFunc(func(ctx context.Context, ec *gateway.Context) gateway.Outcome {
		return f.forward(ctx, ec, client, name, base)
	}), nil
}

func (f *Factory) forward(ctx context.Context, ec *gateway.Context, client *http.Client, service, base string) gateway.Outcome {
	target := base + ec.Req.URL

	req, err := http.NewRequestWithContext(ctx, ec.Req.Method, target, ec.Req.Body)
	if err != nil {
		return gateway.Fail(fmt.Errorf("proxy policy: building request: %w", err))
	}
	copyProxyHeaders(req.Header, ec.Req.Header)
	req.Header.Set("X-Forwarded-Host", ec.Req.Host)
	if clientIP := addrHost(ec.Req.RemoteAddr); clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	start := time.Now()
	resp, err := client.Do(req)
	f.metrics.ObserveBackend(service, time.Since(start).Seconds())
	if err != nil {
		f.logger.Warn("backend request failed",
			"service", service,
			"url", target,
			"error", err,
		)
		return gateway.Halt(http.StatusBadGateway, []byte("Bad Gateway"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn("backend response read failed",
			"service", service,
			"error", err,
		)
		return gateway.Halt(http.StatusBadGateway, []byte("Bad Gateway"))
	}

	header := http.Header{}
	copyProxyHeaders(header, resp.Header)
	return gateway.HaltWithHeader(resp.StatusCode, header, body)
}

// hopByHop headers are connection-scoped and must not be forwarded.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyProxyHeaders(dst, src http.Header) {
	for name, values := range src {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func addrHost(remoteAddr string) string {
	if i := strings.LastIndexByte(remoteAddr, ':'); i > 0 && !strings.Contains(remoteAddr[i:], "]") {
		return strings.Trim(remoteAddr[:i], "[]")
	}
	return remoteAddr
}
