package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"faultline/internal/auth"
	"faultline/internal/fingerprint"
	"faultline/internal/pipeline"
)

func TestReportNewThenRepeated(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/reports", ReportRequest{Kind: "command", Payload: "panic: X at line 10"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	second := env.report(t, "panic: X at line 10")
	if second.Outcome != pipeline.OutcomeRepeated {
		t.Fatalf("expected repeated, got %s", second.Outcome)
	}
	if second.Occurrences != 2 {
		t.Fatalf("expected 2 occurrences, got %d", second.Occurrences)
	}
	if second.Fingerprint != fingerprint.OfString("panic: X at line 10") {
		t.Fatalf("unexpected fingerprint %s", second.Fingerprint)
	}

	live := env.channel.Live()
	if len(live) != 1 {
		t.Fatalf("expected one live notification, got %d", len(live))
	}
	msg, _ := env.channel.Get(live[0])
	if got := msg.Embeds[0].Footer.Text; got != "This error has occurred 2 times!" {
		t.Fatalf("unexpected footer %q", got)
	}
}

func TestReportRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"missing":  "",
		"garbage":  "Bearer nope",
		"wrongKey": "Bearer " + mustToken(t, []byte("other"), time.Hour),
		"expired":  "Bearer " + mustToken(t, testSecret, -time.Minute),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(`{"payload":"x"}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rr.Code)
		}
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected nothing recorded, got %d records", env.store.Len())
	}
}

func TestReportDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, func(d *Dependencies) { d.TokenSecret = nil })
	rr := env.do(t, http.MethodPost, "/api/reports", ReportRequest{Payload: "x"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if code := decodeMap(t, rr)["code"]; code != "API_DISABLED" {
		t.Errorf("unexpected code %v", code)
	}
}

func TestReportValidation(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/reports", ReportRequest{Kind: "command", Payload: "   "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReportDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.channel.Fail("post", &testNetError{})
	rr := env.do(t, http.MethodPost, "/api/reports", ReportRequest{Payload: "panic: unreachable"})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%s", rr.Code, rr.Body.String())
	}
	if env.store.Len() != 0 {
		t.Fatal("expected nothing persisted after a failed post")
	}
}

type testNetError struct{}

func (testNetError) Error() string { return "dial tcp: connection refused" }

func mustToken(t *testing.T, secret []byte, ttl time.Duration) string {
	t.Helper()
	token, err := auth.IssueToken(secret, auth.Claims{Producer: "p", JTI: "j", Exp: time.Now().Add(ttl).Unix()})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestTokenRolesAreEnforced(t *testing.T) {
	env := newTestEnv(t)
	reporter := mustToken(t, testSecret, time.Hour)
	viewer, err := auth.IssueToken(testSecret, auth.Claims{
		Producer: "dashboard", Role: "viewer", JTI: "v", Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		method string
		path   string
		body   string
		want   int
	}{
		{"reporter may report", reporter, http.MethodPost, "/api/reports", `{"payload":"panic: a"}`, http.StatusCreated},
		{"reporter may not read", reporter, http.MethodGet, "/api/errors", "", http.StatusForbidden},
		{"viewer may read", viewer, http.MethodGet, "/api/errors", "", http.StatusOK},
		{"viewer may not report", viewer, http.MethodPost, "/api/reports", `{"payload":"panic: b"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Authorization", "Bearer "+tc.token)
		rr := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%s: expected %d, got %d body=%s", tc.name, tc.want, rr.Code, rr.Body.String())
		}
	}
}
