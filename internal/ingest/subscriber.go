package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/pipeline"
	"faultline/internal/retrieval"
)

type ReportHandler interface {
	Report(ctx context.Context, rep pipeline.Report) (pipeline.Result, error)
}

type ActionHandler interface {
	HandleAction(ctx context.Context, action retrieval.Action, responder channel.Responder) error
}

type SubscriberOptions struct {
	Queue string
	// Timeout bounds the handling of one envelope.
	Timeout     time.Duration
	MaxInFlight int
}

type Subscriber struct {
	nc        *nats.Conn
	reports   ReportHandler
	actions   ActionHandler
	responder channel.Responder
	logger    *zap.Logger
	queue     string
	timeout   time.Duration

	sem  chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewSubscriber handles reports with reports and, when actions is non-nil,
// button actions with actions answering through responder.
func NewSubscriber(logger *zap.Logger, nc *nats.Conn, reports ReportHandler, actions ActionHandler, responder channel.Responder, opts SubscriberOptions) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Queue == "" {
		opts.Queue = QueueGroup
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	return &Subscriber{
		nc:        nc,
		reports:   reports,
		actions:   actions,
		responder: responder,
		logger:    logger.Named("ingest"),
		queue:     opts.Queue,
		timeout:   opts.Timeout,
		sem:       make(chan struct{}, opts.MaxInFlight),
	}
}

func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.nc.QueueSubscribe(SubjectReports, s.queue, s.dispatch(s.handleReport))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectReports, err)
	}
	s.subs = append(s.subs, sub)

	if s.actions != nil && s.responder != nil {
		sub, err := s.nc.QueueSubscribe(SubjectActions, s.queue, s.dispatch(s.handleAction))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", SubjectActions, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Info("Subscribed to ingest subjects", zap.String("queue", s.queue), zap.Int("subjects", len(s.subs)))
	return nil
}

// Stop unsubscribes and waits for envelopes in flight.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight envelopes: %w", ctx.Err())
	}
}

func (s *Subscriber) dispatch(handle func(context.Context, *nats.Msg) Ack) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer func() {
				<-s.sem
				s.wg.Done()
			}()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			ack := handle(ctx, msg)
			if msg.Reply == "" {
				return
			}
			data, err := json.Marshal(ack)
			if err != nil {
				s.logger.Error("Failed to encode ack", zap.Error(err))
				return
			}
			if err := msg.Respond(data); err != nil {
				s.logger.Warn("Failed to send ack", zap.String("subject", msg.Subject), zap.Error(err))
			}
		}()
	}
}

func (s *Subscriber) handleReport(ctx context.Context, msg *nats.Msg) Ack {
	var env ReportEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("Dropping malformed report envelope", zap.Error(err))
		return Ack{Error: "malformed report envelope"}
	}
	res, err := s.reports.Report(ctx, env.Report())
	if err != nil {
		s.logger.Error("Failed to process report", zap.String("report_id", env.ID), zap.String("kind", env.Kind), zap.Error(err))
		return Ack{ID: env.ID, Error: err.Error()}
	}
	return Ack{ID: env.ID, OK: true, Result: &res}
}

func (s *Subscriber) handleAction(ctx context.Context, msg *nats.Msg) Ack {
	var env ActionEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("Dropping malformed action envelope", zap.Error(err))
		return Ack{Error: "malformed action envelope"}
	}
	if err := s.actions.HandleAction(ctx, env.Action(), s.responder); err != nil {
		s.logger.Error("Failed to handle action",
			zap.String("action_id", env.ID),
			zap.Stringer("message_id", env.MessageID),
			zap.Error(err),
		)
		return Ack{ID: env.ID, Error: err.Error()}
	}
	return Ack{ID: env.ID, OK: true}
}
