// Package presence reports how many users are connected to the session.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

const DefaultPollInterval = 10 * time.Second

type Counter interface {
	ConnectedUsers() int
}

// Static always reports n connected users.
type Static int

func (s Static) ConnectedUsers() int { return int(s) }

// HTTPPoller periodically fetches the connected user count from a JSON
// endpoint shaped like {"connectedUsers": n}. Until the first successful
// poll it reports one user, the local one.
type HTTPPoller struct {
	url      string
	client   *http.Client
	interval time.Duration
	count    atomic.Int64

	logger *slog.Logger
}

type PollerOption func(*HTTPPoller)

func WithHTTPClient(client *http.Client) PollerOption {
	return func(p *HTTPPoller) {
		if client != nil {
			p.client = client
		}
	}
}

func WithInterval(interval time.Duration) PollerOption {
	return func(p *HTTPPoller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithLogger(l *slog.Logger) PollerOption {
	return func(p *HTTPPoller) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewHTTPPoller(url string, opts ...PollerOption) *HTTPPoller {
	p := &HTTPPoller{
		url:      url,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		interval: DefaultPollInterval,
		logger:   logger,
	}
	p.count.Store(1)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HTTPPoller) ConnectedUsers() int {
	return int(p.count.Load())
}

// Run polls until ctx is done. Failed polls keep the last known count.
func (p *HTTPPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("failed to poll presence", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the current count once.
func (p *HTTPPoller) Poll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "poll presence")
	defer span.End()

	count, err := p.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	p.count.Store(int64(count))
	return nil
}

func (p *HTTPPoller) fetch(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create presence request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to request presence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("presence request failed with status %s", resp.Status)
	}

	var body struct {
		ConnectedUsers *int `json:"connectedUsers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode presence response: %w", err)
	}
	if body.ConnectedUsers == nil || *body.ConnectedUsers < 0 {
		return 0, fmt.Errorf("presence response has no valid connectedUsers")
	}
	return *body.ConnectedUsers, nil
}
