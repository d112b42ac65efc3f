package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *captureSink) Append(ctx context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

type AuditSuite struct {
	suite.Suite
	logger *slog.Logger
}

func (s *AuditSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}

func (s *AuditSuite) TestEventsReachEverySink() {
	pub := NewPublisher(16, s.logger)
	first := &captureSink{}
	second := &captureSink{}
	worker := NewWorker(pub.Inbox(), s.logger, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	pub.Emit(ctx, Event{Actor: "op-1", Action: ActionDecided, RequestID: uuid.New(), Decision: "approved"})
	pub.Emit(ctx, Event{Actor: "auto-approval-engine", Action: ActionAutoRuled, RequestID: uuid.New()})

	s.Eventually(func() bool { return len(second.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := first.snapshot()
	s.Require().Len(got, 2)
	s.Equal(ActionDecided, got[0].Action)
	s.False(got[0].Timestamp.IsZero())
}

func (s *AuditSuite) TestFailingSinkDoesNotStarveOthers() {
	pub := NewPublisher(16, s.logger)
	broken := &captureSink{err: errors.New("kafka down")}
	healthy := &captureSink{}
	worker := NewWorker(pub.Inbox(), s.logger, broken, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()

	pub.Emit(ctx, Event{Action: ActionCreated, RequestID: uuid.New()})

	s.Eventually(func() bool { return len(healthy.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func (s *AuditSuite) TestOverflowDropsInsteadOfBlocking() {
	pub := NewPublisher(1, s.logger)

	ctx := context.Background()
	for range 5 {
		pub.Emit(ctx, Event{Action: ActionCreated})
	}
	s.Len(pub.Inbox(), 1)
}
