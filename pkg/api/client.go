package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"quorumgate/pkg/models"
	"quorumgate/pkg/participant"
	"quorumgate/pkg/resilience"
)

// ClientConfig configures the participant side of the HTTP transport.
type ClientConfig struct {
	BaseURL string
	Breaker resilience.CircuitBreakerConfig
	// HTTPClient must not set a Timeout: ready calls block until release.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client sends ready tags to a coordinator over HTTP. It implements
// participant.Transport.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

var _ participant.Transport = (*Client)(nil)

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		breaker: resilience.NewCircuitBreaker("http-coordinator", cfg.Breaker, nil, cfg.Logger),
		logger:  cfg.Logger.Named("http-client"),
	}
}

// BreakerMetrics reports the state of the client's circuit breaker.
func (c *Client) BreakerMetrics() map[string]interface{} {
	return c.breaker.Metrics()
}

// Request sends p's ready tag and blocks until the coordinator answers.
func (c *Client) Request(ctx context.Context, p models.Participant) (participant.Outcome, error) {
	outcome := participant.OutcomeRejected
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = c.ready(ctx, p)
		return err
	})
	return outcome, err
}

func (c *Client) ready(ctx context.Context, p models.Participant) (participant.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/ready",
		strings.NewReader(string(p.Role.ReadyTag())))
	if err != nil {
		return participant.OutcomeRejected, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return participant.OutcomeRejected, fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return participant.OutcomeRejected, fmt.Errorf("failed to read reply: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		role, err := models.ParseStatus(string(body))
		if err != nil {
			return participant.OutcomeRejected, fmt.Errorf("invalid reply: %w", err)
		}
		if role != p.Role {
			c.logger.Warn("released with another role's status",
				zap.String("participant", p.ID),
				zap.String("status", string(body)))
		}
		return participant.OutcomeReleased, nil
	case http.StatusConflict:
		return participant.OutcomeRejected, nil
	case http.StatusBadRequest:
		return participant.OutcomeRejected, fmt.Errorf("coordinator refused tag %q: %w", p.Role.ReadyTag(), models.ErrUnknownTag)
	default:
		return participant.OutcomeRejected, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
