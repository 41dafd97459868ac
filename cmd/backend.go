package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/resilience"
	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// newHTTPClient returns an instrumented client for backend calls. A zero
// timeout leaves requests bounded only by their context.
func newHTTPClient(m *metrics.Metrics, timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 10
	base.IdleConnTimeout = 90 * time.Second

	return &http.Client{
		Transport: m.InstrumentTransport(base),
		Timeout:   timeout,
	}
}

// newBackend builds the detection backend client from the loaded config.
func newBackend(m *metrics.Metrics) finder.Client {
	timeout := time.Duration(cfg.Backend.TimeoutSecs) * time.Second
	return finder.NewClient(cfg.Backend.BaseURL,
		finder.WithHTTPClient(newHTTPClient(m, timeout)),
		finder.WithUserAgent(cfg.Backend.UserAgent),
	)
}

// retryingGateway applies the configured retry policy to the idempotent
// backend calls. Analyze and StartCamera go through unchanged.
type retryingGateway struct {
	finder.Client
	policy resilience.RetryConfig
}

func withRetry(c finder.Client) *retryingGateway {
	return &retryingGateway{Client: c, policy: resilience.FromConfig(cfg.Retry)}
}

func (g *retryingGateway) FetchHistory(ctx context.Context, opts ...finder.HistoryOption) ([]finder.HistoryRecord, error) {
	policy := g.policy
	policy.OnRetry = resilience.RetryLogger("history")
	return resilience.DoVal(ctx, policy, func(ctx context.Context) ([]finder.HistoryRecord, error) {
		return g.Client.FetchHistory(ctx, opts...)
	})
}

func (g *retryingGateway) StopCamera(ctx context.Context) error {
	policy := g.policy
	policy.OnRetry = resilience.RetryLogger("stop_camera")
	return resilience.Do(ctx, policy, g.Client.StopCamera)
}
