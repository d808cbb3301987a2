package app

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"faultline/internal/auth"
	"faultline/internal/channel"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
	"faultline/internal/reconciler"
	"faultline/internal/retrieval"
	"faultline/internal/store"
)

var testSecret = []byte("test-ingest-secret")

type testEnv struct {
	store   *store.MemoryStore
	channel *channel.MemoryChannel
	server  *HTTPServer
	private ed25519.PrivateKey
	token   string
}

type envOption func(*Dependencies)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	st := store.NewMemoryStore()
	ch := channel.NewMemoryChannel(nil)
	n := notifier.New(zap.NewNop(), ch, notifier.Options{BotUser: "tts-bot"})
	reporter := pipeline.NewReporter(zap.NewNop(), st, n, reconciler.New(zap.NewNop(), n))

	deps := Dependencies{
		Records:       st,
		Reporter:      reporter,
		Retriever:     retrieval.NewService(zap.NewNop(), st, retrieval.Options{}),
		Verifier:      auth.NewInteractionVerifier(pub, time.Minute),
		TokenSecret:   testSecret,
		ReportTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	token, err := auth.IssueToken(testSecret, auth.Claims{
		Producer: "shard-0",
		Role:     "admin",
		JTI:      "test",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &testEnv{
		store:   st,
		channel: ch,
		server:  NewHTTPServer(New(zap.NewNop(), deps), "*"),
		private: priv,
		token:   token,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) interact(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ed25519.Sign(e.private, append([]byte(ts), body...))

	req := httptest.NewRequest(http.MethodPost, "/api/interactions", bytes.NewReader(body))
	req.Header.Set(auth.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(auth.HeaderTimestamp, ts)
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) report(t *testing.T, payload string) pipeline.Result {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/reports", ReportRequest{Kind: "command", Payload: payload})
	if rr.Code != http.StatusOK && rr.Code != http.StatusCreated {
		t.Fatalf("report: status %d body=%s", rr.Code, rr.Body.String())
	}
	var result pipeline.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return result
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return out
}

type failingRecords struct {
	*store.MemoryStore
	pingErr error
}

func (f failingRecords) Ping(context.Context) error { return f.pingErr }
