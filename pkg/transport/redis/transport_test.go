package redis_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"quorumgate/pkg/endpoint"
	"quorumgate/pkg/models"
	"quorumgate/pkg/participant"
	"quorumgate/pkg/quorum"
	qredis "quorumgate/pkg/transport/redis"
)

// TransportSuite runs the coordinator endpoint over a real Redis.
type TransportSuite struct {
	suite.Suite
	client *redis.Client
	inbox  string
	ep     *endpoint.Endpoint
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *TransportSuite) SetupSuite() {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		s.T().Skip("Skipping integration tests (SKIP_INTEGRATION_TESTS=true)")
	}

	addr := fmt.Sprintf("%s:%s", getEnv("TEST_REDIS_HOST", "localhost"), getEnv("TEST_REDIS_PORT", "6379"))
	cfg := qredis.DefaultConfig(addr)
	cfg.DialTimeout = time.Second
	client, err := qredis.Connect(cfg)
	if err != nil {
		s.T().Skipf("Skipping integration tests: %v", err)
	}
	s.client = client
}

func (s *TransportSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

func (s *TransportSuite) SetupTest() {
	logger := zaptest.NewLogger(s.T())
	s.inbox = "quorumgate:test:" + uuid.NewString()

	cfg := endpoint.DefaultConfig()
	cfg.Quorum = quorum.Config{PrimaryCapacity: 2, SecondaryCapacity: 3}
	ep, err := endpoint.NewEndpoint(cfg, qredis.NewReplier(s.client, 10*time.Second), logger)
	s.Require().NoError(err)
	s.ep = ep

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	listener := qredis.NewListener(s.client, s.inbox, ep, logger)

	s.wg.Add(2)
	go func() { defer s.wg.Done(); _ = ep.Run(ctx) }()
	go func() { defer s.wg.Done(); _ = listener.Run(ctx) }()
}

func (s *TransportSuite) TearDownTest() {
	s.cancel()
	s.wg.Wait()
	_ = s.client.Del(context.Background(), s.inbox).Err()
}

func (s *TransportSuite) request(role models.Role, id string) (participant.Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := qredis.NewClient(s.client, s.inbox, zaptest.NewLogger(s.T()))
	return c.Request(ctx, models.Participant{ID: id, Role: role})
}

func (s *TransportSuite) TestQuorumReleasesEveryMember() {
	var wg sync.WaitGroup
	outcomes := make([]participant.Outcome, 3)
	errs := make([]error, 3)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = s.request(models.RoleSecondary, fmt.Sprintf("s%d", i))
		}(i)
	}
	wg.Wait()

	for i := range outcomes {
		s.NoError(errs[i])
		s.Equal(participant.OutcomeReleased, outcomes[i])
	}
}

func (s *TransportSuite) TestUnknownTagGetsErrorReply() {
	ctx := context.Background()
	replyTo := s.inbox + ":reply:bogus"
	s.Require().NoError(s.client.LPush(ctx, s.inbox,
		fmt.Sprintf(`{"sender":"x","reply_to":%q,"tag":"HELLO"}`, replyTo)).Err())

	res, err := s.client.BRPop(ctx, 5*time.Second, replyTo).Result()
	s.Require().NoError(err)
	s.JSONEq(`{"error":"UNKNOWN_TAG"}`, res[1])

	ttl, err := s.client.TTL(ctx, replyTo).Result()
	s.Require().NoError(err)
	s.LessOrEqual(ttl, 10*time.Second)
}

func (s *TransportSuite) TestDrainAnswersWaitingMember() {
	done := make(chan participant.Outcome, 1)
	go func() {
		out, _ := s.request(models.RolePrimary, "p0")
		done <- out
	}()

	s.Eventually(func() bool {
		snap, err := s.ep.Snapshot(context.Background())
		return err == nil && snap.Primary.Waiting == 1
	}, 5*time.Second, 10*time.Millisecond)

	drained, err := s.ep.Drain(context.Background(), models.RolePrimary)
	s.Require().NoError(err)
	s.Len(drained, 1)
	s.Equal(participant.OutcomeReleased, <-done)
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
