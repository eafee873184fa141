package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/metrics"
	"quorumgate/pkg/models"
)

// Submitter accepts messages for the coordinator endpoint.
type Submitter interface {
	Submit(ctx context.Context, msg endpoint.Message) error
}

// Replier answers senders by pushing onto their reply list. Each reply key
// expires, so answering a participant that has gone away costs one short-lived key.
type Replier struct {
	client *redis.Client
	ttl    time.Duration
}

var _ endpoint.Replier = (*Replier)(nil)

func NewReplier(client *redis.Client, ttl time.Duration) *Replier {
	if ttl <= 0 {
		ttl = DefaultReplyTTL
	}
	return &Replier{client: client, ttl: ttl}
}

func (r *Replier) Reply(ctx context.Context, addr string, status models.Status) error {
	return r.push(ctx, addr, Reply{Status: status})
}

func (r *Replier) Reject(ctx context.Context, addr string, err error) error {
	return r.push(ctx, addr, Reply{Error: errorCode(err)})
}

func (r *Replier) push(ctx context.Context, addr string, reply Reply) error {
	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, addr, payload)
		pipe.Expire(ctx, addr, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push reply to %s: %w", addr, err)
	}
	return nil
}

// Listener pops envelopes off the inbox and submits them to the endpoint.
type Listener struct {
	client    *redis.Client
	inbox     string
	submitter Submitter
	logger    *zap.Logger
}

func NewListener(client *redis.Client, inbox string, submitter Submitter, logger *zap.Logger) *Listener {
	if inbox == "" {
		inbox = DefaultInbox
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		client:    client,
		inbox:     inbox,
		submitter: submitter,
		logger:    logger.Named("redis-listener").With(zap.String("inbox", inbox)),
	}
}

// Run polls the inbox until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("listening")
	for {
		if ctx.Err() != nil {
			l.logger.Info("listener shutting down")
			return nil
		}

		raw, err := l.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Error("failed to read inbox", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if raw == "" {
			continue
		}

		env, err := decodeEnvelope(raw)
		if err != nil {
			// No usable reply address, so nobody can be told.
			metrics.ProtocolViolations.Inc()
			l.logger.Warn("discarding malformed envelope", zap.Error(err))
			continue
		}

		if err := l.submitter.Submit(ctx, endpoint.Message{Sender: env.ReplyTo, Tag: env.Tag}); err != nil {
			if errors.Is(err, endpoint.ErrStopped) {
				return err
			}
			l.logger.Warn("failed to submit message", zap.String("sender", env.Sender), zap.Error(err))
		}
	}
}

// pop waits up to pollBlock for one envelope; an empty string means none arrived.
func (l *Listener) pop(ctx context.Context) (string, error) {
	res, err := l.client.BRPop(ctx, pollBlock, l.inbox).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to pop from inbox: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", nil
	}
	return res[1], nil
}
