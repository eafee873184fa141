package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
	"quorumgate/pkg/participant"
	"quorumgate/pkg/resilience"
)

// Client is the participant side of the Redis transport. It implements
// participant.Transport.
type Client struct {
	client  *redis.Client
	inbox   string
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
}

var _ participant.Transport = (*Client)(nil)

func NewClient(client *redis.Client, inbox string, logger *zap.Logger) *Client {
	if inbox == "" {
		inbox = DefaultInbox
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:  client,
		inbox:   inbox,
		breaker: resilience.NewCircuitBreaker("redis-coordinator", resilience.DefaultCircuitBreakerConfig(), nil, logger),
		logger:  logger.Named("redis-client"),
	}
}

// BreakerMetrics reports the state of the client's circuit breaker.
func (c *Client) BreakerMetrics() map[string]interface{} {
	return c.breaker.Metrics()
}

// Request pushes p's ready tag and blocks until the coordinator replies.
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
	replyTo := ReplyPrefix(c.inbox) + uuid.NewString()
	payload, err := json.Marshal(Envelope{Sender: p.ID, ReplyTo: replyTo, Tag: string(p.Role.ReadyTag())})
	if err != nil {
		return participant.OutcomeRejected, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := c.client.LPush(ctx, c.inbox, payload).Err(); err != nil {
		return participant.OutcomeRejected, fmt.Errorf("failed to push to inbox: %w", err)
	}

	reply, err := c.await(ctx, replyTo)
	if err != nil {
		return participant.OutcomeRejected, err
	}

	switch err := reply.Err(); {
	case err == nil:
		if _, perr := models.ParseStatus(string(reply.Status)); perr != nil {
			return participant.OutcomeRejected, fmt.Errorf("invalid reply: %w", perr)
		}
		return participant.OutcomeReleased, nil
	case errors.Is(err, endpoint.ErrLateArrival):
		return participant.OutcomeRejected, nil
	default:
		return participant.OutcomeRejected, err
	}
}

// await polls the reply list until a reply arrives or ctx ends.
func (c *Client) await(ctx context.Context, key string) (Reply, error) {
	for {
		res, err := c.client.BRPop(ctx, pollBlock, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return Reply{}, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return Reply{}, ctx.Err()
			}
			return Reply{}, fmt.Errorf("failed to wait for reply: %w", err)
		}
		if len(res) != 2 {
			continue
		}

		var reply Reply
		if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
			return Reply{}, fmt.Errorf("failed to unmarshal reply: %w", err)
		}
		return reply, nil
	}
}
