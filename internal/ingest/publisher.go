package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"faultline/internal/pipeline"
	"faultline/internal/retrieval"
	"faultline/internal/util"
)

// Connect dials NATS with reconnects enabled and logs connection changes.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("faultline"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

type Publisher struct {
	nc  *nats.Conn
	now func() time.Time
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc, now: time.Now}
}

// Envelope normalizes rep into its wire form.
func (p *Publisher) Envelope(rep pipeline.Report) (ReportEnvelope, error) {
	payload, headline, err := rep.Normalize()
	if err != nil {
		return ReportEnvelope{}, err
	}
	return ReportEnvelope{
		ID:         util.NewID("rep"),
		Kind:       rep.Kind,
		Payload:    payload,
		Headline:   headline,
		Fields:     rep.Fields,
		Author:     rep.Author,
		ReportedAt: p.now().UTC(),
	}, nil
}

// PublishReport sends rep without waiting for it to be handled.
func (p *Publisher) PublishReport(rep pipeline.Report) (string, error) {
	env, err := p.Envelope(rep)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := p.nc.Publish(SubjectReports, data); err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	return env.ID, nil
}

// RequestReport sends rep and waits for a subscriber to process it.
func (p *Publisher) RequestReport(ctx context.Context, rep pipeline.Report) (Ack, error) {
	env, err := p.Envelope(rep)
	if err != nil {
		return Ack{}, err
	}
	return p.request(ctx, SubjectReports, env)
}

func (p *Publisher) RequestAction(ctx context.Context, action retrieval.Action) (Ack, error) {
	return p.request(ctx, SubjectActions, ActionEnvelope{
		ID:          util.NewID("act"),
		CustomID:    action.CustomID,
		MessageID:   action.MessageID,
		Interaction: action.Interaction,
	})
}

func (p *Publisher) request(ctx context.Context, subject string, env any) (Ack, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return Ack{}, fmt.Errorf("marshal %s envelope: %w", subject, err)
	}
	msg, err := p.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return Ack{}, fmt.Errorf("request %s: %w", subject, err)
	}
	var ack Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return Ack{}, fmt.Errorf("decode ack: %w", err)
	}
	return ack, nil
}
