package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/fingerprint"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
	"faultline/internal/retrieval"
	"faultline/internal/store"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := Connect(server.ClientURL(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type fakeReports struct {
	mu       sync.Mutex
	reports  []pipeline.Report
	reportFn func(context.Context, pipeline.Report) (pipeline.Result, error)
}

func (f *fakeReports) Report(ctx context.Context, rep pipeline.Report) (pipeline.Result, error) {
	f.mu.Lock()
	f.reports = append(f.reports, rep)
	f.mu.Unlock()
	if f.reportFn != nil {
		return f.reportFn(ctx, rep)
	}
	return pipeline.Result{Outcome: pipeline.OutcomeNew, NotificationRef: 99, Occurrences: 1}, nil
}

func (f *fakeReports) received() []pipeline.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Report(nil), f.reports...)
}

func TestRequestReportRoundTrip(t *testing.T) {
	server := startTestNATSServer(t)
	reports := &fakeReports{}
	sub := NewSubscriber(zap.NewNop(), connect(t, server), reports, nil, nil, SubscriberOptions{Timeout: 5 * time.Second})
	require.NoError(t, sub.Start())
	t.Cleanup(func() { _ = sub.Stop(context.Background()) })

	pub := NewPublisher(connect(t, server))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := pub.RequestReport(ctx, pipeline.Report{
		Kind:   pipeline.KindReady,
		Err:    errors.New("panic: X at line 10"),
		Fields: []notifier.Field{notifier.InlineField("Shard", "0")},
	})
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.NotEmpty(t, ack.ID)
	require.NotNil(t, ack.Result)
	assert.Equal(t, pipeline.OutcomeNew, ack.Result.Outcome)
	assert.Equal(t, channel.MessageID(99), ack.Result.NotificationRef)

	got := reports.received()
	require.Len(t, got, 1)
	assert.Equal(t, "panic: X at line 10", got[0].Payload)
	assert.Equal(t, "panic: X at line 10", got[0].Headline)
	assert.Equal(t, pipeline.KindReady, got[0].Kind)
	require.Len(t, got[0].Fields, 1)
	assert.Equal(t, "Shard", got[0].Fields[0].Name)
}

func TestRequestReportCarriesFailure(t *testing.T) {
	server := startTestNATSServer(t)
	reports := &fakeReports{reportFn: func(context.Context, pipeline.Report) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.StoreError{Op: "record occurrence", Err: errors.New("db down")}
	}}
	sub := NewSubscriber(nil, connect(t, server), reports, nil, nil, SubscriberOptions{})
	require.NoError(t, sub.Start())

	pub := NewPublisher(connect(t, server))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ack, err := pub.RequestReport(ctx, pipeline.Report{Kind: pipeline.KindReady, Payload: "boom"})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "db down")
	assert.Nil(t, ack.Result)
}

func TestMalformedEnvelopeIsRejected(t *testing.T) {
	server := startTestNATSServer(t)
	reports := &fakeReports{}
	sub := NewSubscriber(nil, connect(t, server), reports, nil, nil, SubscriberOptions{})
	require.NoError(t, sub.Start())

	nc := connect(t, server)
	msg, err := nc.Request(SubjectReports, []byte("{not json"), 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), "malformed report envelope")
	assert.Empty(t, reports.received())
}

func TestPublishReportIsHandled(t *testing.T) {
	server := startTestNATSServer(t)
	reports := &fakeReports{}
	sub := NewSubscriber(nil, connect(t, server), reports, nil, nil, SubscriberOptions{})
	require.NoError(t, sub.Start())

	pub := NewPublisher(connect(t, server))
	id, err := pub.PublishReport(pipeline.Report{Kind: pipeline.KindReady, Payload: "boom"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(reports.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, sub.Stop(context.Background()))
}

func TestPublishRejectsEmptyReport(t *testing.T) {
	server := startTestNATSServer(t)
	pub := NewPublisher(connect(t, server))
	_, err := pub.PublishReport(pipeline.Report{Kind: pipeline.KindReady})
	assert.ErrorIs(t, err, pipeline.ErrEmptyPayload)
}

func TestRequestActionAnswersThroughResponder(t *testing.T) {
	server := startTestNATSServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := store.NewMemoryStore()
	_, err := st.FinalizeNew(ctx, store.NewRecord{
		Fingerprint: fingerprint.OfString("panic: boom"),
		Payload:     "panic: boom",
	}, 555)
	require.NoError(t, err)

	responder := channel.NewMemoryChannel(nil)
	actions := retrieval.NewService(nil, st, retrieval.Options{})
	sub := NewSubscriber(nil, connect(t, server), &fakeReports{}, actions, responder, SubscriberOptions{})
	require.NoError(t, sub.Start())

	pub := NewPublisher(connect(t, server))
	ack, err := pub.RequestAction(ctx, retrieval.Action{
		CustomID:    notifier.ViewTracebackCustomID,
		MessageID:   555,
		Interaction: channel.Interaction{ID: "i1", Token: "t1"},
	})
	require.NoError(t, err)
	assert.True(t, ack.OK, ack.Error)

	responses := responder.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, "i1", responses[0].Interaction.ID)
	require.Len(t, responses[0].Response.Attachments, 1)
	assert.Equal(t, "panic: boom", string(responses[0].Response.Attachments[0].Data))
}

type unavailablePayloads struct{}

func (unavailablePayloads) FetchPayload(context.Context, int64) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func TestRequestActionAnswersEveryInteraction(t *testing.T) {
	server := startTestNATSServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	responder := channel.NewMemoryChannel(nil)
	actions := retrieval.NewService(nil, unavailablePayloads{}, retrieval.Options{})
	sub := NewSubscriber(nil, connect(t, server), &fakeReports{}, actions, responder, SubscriberOptions{})
	require.NoError(t, sub.Start())
	pub := NewPublisher(connect(t, server))

	ack, err := pub.RequestAction(ctx, retrieval.Action{
		CustomID:    "settings::open",
		MessageID:   555,
		Interaction: channel.Interaction{ID: "foreign", Token: "t1"},
	})
	require.NoError(t, err)
	assert.True(t, ack.OK, ack.Error)

	ack, err = pub.RequestAction(ctx, retrieval.Action{
		CustomID:    notifier.ViewTracebackCustomID,
		MessageID:   555,
		Interaction: channel.Interaction{ID: "broken", Token: "t2"},
	})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "connection refused")

	responses := responder.Responses()
	require.Len(t, responses, 2)
	assert.Equal(t, "foreign", responses[0].Interaction.ID)
	assert.True(t, responses[0].Acknowledged)
	assert.Equal(t, "broken", responses[1].Interaction.ID)
	assert.Equal(t, retrieval.UnavailableMessage, responses[1].Response.Content)
}
