package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"faultline/internal/auth"
	"faultline/internal/channel"
	"faultline/internal/fingerprint"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
	"faultline/internal/rbac"
	"faultline/internal/retrieval"
	"faultline/internal/search"
	"faultline/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Interaction types Discord sends to the interactions endpoint.
const (
	interactionPing      = 1
	interactionComponent = 3
)

type Records interface {
	Ping(ctx context.Context) error
	GetRecord(ctx context.Context, fp fingerprint.Fingerprint) (store.ErrorRecord, error)
	ListRecent(ctx context.Context, limit int) ([]store.ErrorRecord, error)
}

type Reporter interface {
	Report(ctx context.Context, rep pipeline.Report) (pipeline.Result, error)
}

type Retriever interface {
	Respond(ctx context.Context, action retrieval.Action) (channel.Response, bool, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

// Dependencies wires the HTTP service. Search and Verifier are optional:
// without Verifier the interactions endpoint answers 503, and without
// TokenSecret report submission and the read API are closed.
type Dependencies struct {
	Records       Records
	Reporter      Reporter
	Retriever     Retriever
	Search        Searcher
	Verifier      *auth.InteractionVerifier
	TokenSecret   []byte
	ReportTimeout time.Duration
}

type Service struct {
	records       Records
	reporter      Reporter
	retriever     Retriever
	search        Searcher
	verifier      *auth.InteractionVerifier
	tokenSecret   []byte
	reportTimeout time.Duration
	logger        *zap.Logger
}

func New(logger *zap.Logger, deps Dependencies) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.ReportTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		records:       deps.Records,
		reporter:      deps.Reporter,
		retriever:     deps.Retriever,
		search:        deps.Search,
		verifier:      deps.Verifier,
		tokenSecret:   deps.TokenSecret,
		reportTimeout: timeout,
		logger:        logger.Named("app"),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.records.Ping(ctx)
}

// Authorize resolves the producer behind a bearer token and checks that its
// role allows action.
func (s *Service) Authorize(token string, action rbac.Action) (auth.Claims, error) {
	if len(s.tokenSecret) == 0 {
		return auth.Claims{}, domainError(http.StatusServiceUnavailable, "API_DISABLED", "No ingest token secret is configured", nil)
	}
	if token == "" {
		return auth.Claims{}, auth.ErrInvalidToken
	}
	claims, err := auth.ParseToken(s.tokenSecret, token)
	if err != nil {
		return auth.Claims{}, err
	}
	if !rbac.Can(rbac.Normalize(claims.Role), action) {
		return auth.Claims{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return claims, nil
}

// ReportRequest is the body of POST /api/reports.
type ReportRequest struct {
	Kind     string           `json:"kind"`
	Payload  string           `json:"payload"`
	Headline string           `json:"headline,omitempty"`
	Fields   []notifier.Field `json:"fields,omitempty"`
	Author   *notifier.Author `json:"author,omitempty"`
}

func (s *Service) SubmitReport(ctx context.Context, producer string, req ReportRequest) (pipeline.Result, error) {
	if strings.TrimSpace(req.Payload) == "" {
		return pipeline.Result{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "payload is required", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.reportTimeout)
	defer cancel()

	result, err := s.reporter.Report(ctx, pipeline.Report{
		Kind:     req.Kind,
		Payload:  req.Payload,
		Headline: req.Headline,
		Fields:   req.Fields,
		Author:   req.Author,
	})
	if err != nil {
		s.logger.Warn("Report failed", zap.String("producer", producer), zap.String("kind", req.Kind), zap.Error(err))
		return pipeline.Result{}, err
	}
	s.logger.Debug("Report processed",
		zap.String("producer", producer),
		zap.String("outcome", string(result.Outcome)),
		zap.Stringer("fingerprint", result.Fingerprint),
	)
	return result, nil
}

// ErrorSummary is an error record without its payload.
type ErrorSummary struct {
	Fingerprint     string    `json:"fingerprint"`
	Event           string    `json:"event"`
	Headline        string    `json:"headline"`
	Occurrences     int64     `json:"occurrences"`
	NotificationRef string    `json:"notificationRef"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type ErrorDetail struct {
	ErrorSummary
	Payload string `json:"payload"`
}

func summarize(rec store.ErrorRecord) ErrorSummary {
	return ErrorSummary{
		Fingerprint:     rec.Fingerprint.String(),
		Event:           rec.Event,
		Headline:        rec.Headline,
		Occurrences:     rec.Occurrences,
		NotificationRef: channel.MessageID(rec.NotificationRef).String(),
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func (s *Service) RecentErrors(ctx context.Context, limit int) ([]ErrorSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	records, err := s.records.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent errors: %w", err)
	}
	out := make([]ErrorSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, summarize(rec))
	}
	return out, nil
}

func (s *Service) ErrorDetail(ctx context.Context, rawFingerprint string) (ErrorDetail, error) {
	fp, err := fingerprint.Parse(rawFingerprint)
	if err != nil {
		return ErrorDetail{}, domainError(http.StatusBadRequest, "INVALID_FINGERPRINT", "fingerprint must be 64 hex characters", nil)
	}
	rec, err := s.records.GetRecord(ctx, fp)
	if err != nil {
		return ErrorDetail{}, err
	}
	return ErrorDetail{ErrorSummary: summarize(rec), Payload: rec.Payload}, nil
}

func (s *Service) SearchErrors(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	return s.search.Search(ctx, q), nil
}

type interactionRequest struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Token string `json:"token"`
	Data  struct {
		CustomID string `json:"custom_id"`
	} `json:"data"`
	Message *struct {
		ID channel.MessageID `json:"id"`
	} `json:"message"`
}

// HandleInteraction verifies and answers one request to the interactions
// endpoint. The returned body is written as the HTTP response.
func (s *Service) HandleInteraction(ctx context.Context, signature, timestamp string, body []byte) (contentType string, out []byte, err error) {
	if s.verifier == nil {
		return "", nil, domainError(http.StatusServiceUnavailable, "INTERACTIONS_DISABLED", "No interaction public key is configured", nil)
	}
	if err := s.verifier.Verify(signature, timestamp, body); err != nil {
		return "", nil, err
	}

	var req interactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", nil, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}

	switch req.Type {
	case interactionPing:
		return jsonCallback(channel.CallbackPong)
	case interactionComponent:
	default:
		return "", nil, domainError(http.StatusBadRequest, "UNSUPPORTED_INTERACTION", fmt.Sprintf("interaction type %d is not handled", req.Type), nil)
	}
	if req.Message == nil {
		return "", nil, domainError(http.StatusBadRequest, "INVALID_BODY", "component interaction without message", nil)
	}

	action := retrieval.Action{
		CustomID:    req.Data.CustomID,
		MessageID:   req.Message.ID,
		Interaction: channel.Interaction{ID: req.ID, Token: req.Token},
	}
	resp, handled, err := s.retriever.Respond(ctx, action)
	switch {
	case err != nil:
		s.logger.Error("Traceback retrieval failed",
			zap.Stringer("message_id", action.MessageID), zap.Error(err))
		return channel.EncodePrivateResponse(channel.Response{Content: retrieval.UnavailableMessage})
	case !handled:
		return jsonCallback(channel.CallbackDeferredUpdateMessage)
	}
	return channel.EncodePrivateResponse(resp)
}

func jsonCallback(callbackType int) (string, []byte, error) {
	body, err := json.Marshal(map[string]int{"type": callbackType})
	if err != nil {
		return "", nil, errors.New("marshal interaction callback")
	}
	return "application/json", body, nil
}
