package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL   = "https://discord.com/api/v10"
	defaultTimeout      = 10 * time.Second
	defaultRatePerSec   = 5
	defaultBurst        = 5
	maxErrorBodyBytes   = 64 << 10
	userAgent           = "faultline (https://github.com/faultline, v1)"
	privateMessageFlags = 1 << 6
)

// ClientConfig configures a Discord webhook client.
type ClientConfig struct {
	// WebhookURL is https://discord.com/api/webhooks/{id}/{token}.
	WebhookURL string
	// APIBaseURL is used for interaction callbacks. Defaults to the v10 API.
	APIBaseURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// Username overrides the webhook's display name on posted messages.
	Username string
}

// Client talks to one Discord webhook. Calls are paced by a token bucket so
// a burst of distinct failures does not trip Discord's own rate limiter; the
// client never retries.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	webhookURL string
	apiBaseURL string
	username   string
	limiter    *rate.Limiter
}

func NewClient(logger *zap.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(cfg.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}
	u.RawQuery = ""
	u.Fragment = ""

	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = defaultRatePerSec
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("channel"),
		webhookURL: strings.TrimRight(u.String(), "/"),
		apiBaseURL: apiBase,
		username:   cfg.Username,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Post executes the webhook with wait=true so the created message, and with
// it the reference, comes back in the response.
func (c *Client) Post(ctx context.Context, msg Message) (MessageID, error) {
	if msg.Username == "" {
		msg.Username = c.username
	}
	msg.ID = 0
	var created Message
	if err := c.do(ctx, "post", http.MethodPost, c.webhookURL+"?wait=true", msg, &created); err != nil {
		return 0, err
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("post: response carried no message id")
	}
	return created.ID, nil
}

func (c *Client) Edit(ctx context.Context, id MessageID, msg Message) error {
	body := struct {
		Content    string      `json:"content,omitempty"`
		Embeds     []Embed     `json:"embeds"`
		Components []ActionRow `json:"components"`
	}{
		Content:    msg.Content,
		Embeds:     nonNilEmbeds(msg.Embeds),
		Components: nonNilRows(msg.Components),
	}
	return c.do(ctx, "edit", http.MethodPatch, c.messageURL(id), body, nil)
}

func (c *Client) Fetch(ctx context.Context, id MessageID) (Message, error) {
	var msg Message
	if err := c.do(ctx, "fetch", http.MethodGet, c.messageURL(id), nil, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *Client) Delete(ctx context.Context, id MessageID) error {
	err := c.do(ctx, "delete", http.MethodDelete, c.messageURL(id), nil, nil)
	if IsNotFound(err) {
		c.logger.Debug("Message already deleted", zap.Stringer("message_id", id))
		return nil
	}
	return err
}

// RespondPrivate answers a component interaction through the callback
// endpoint with an ephemeral message.
func (c *Client) RespondPrivate(ctx context.Context, interaction Interaction, resp Response) error {
	endpoint, err := c.callbackURL(interaction)
	if err != nil {
		return err
	}
	contentType, body, err := EncodePrivateResponse(resp)
	if err != nil {
		return err
	}
	return c.send(ctx, "respond", http.MethodPost, endpoint, contentType, body, nil)
}

// Acknowledge sends a deferred update so Discord does not mark the
// interaction as failed.
func (c *Client) Acknowledge(ctx context.Context, interaction Interaction) error {
	endpoint, err := c.callbackURL(interaction)
	if err != nil {
		return err
	}
	return c.do(ctx, "acknowledge", http.MethodPost, endpoint, map[string]int{"type": CallbackDeferredUpdateMessage}, nil)
}

func (c *Client) callbackURL(interaction Interaction) (string, error) {
	if interaction.ID == "" || interaction.Token == "" {
		return "", fmt.Errorf("respond: interaction id and token are required")
	}
	return fmt.Sprintf("%s/interactions/%s/%s/callback",
		c.apiBaseURL, url.PathEscape(interaction.ID), url.PathEscape(interaction.Token)), nil
}

func (c *Client) messageURL(id MessageID) string {
	return c.webhookURL + "/messages/" + id.String()
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var (
		body        []byte
		contentType string
	)
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = encoded
		contentType = "application/json"
	}
	return c.send(ctx, op, method, endpoint, contentType, body, out)
}

func (c *Client) send(ctx context.Context, op, method, endpoint, contentType string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		requestsTotal.WithLabelValues(op, "throttled").Inc()
		return fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	requestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func decodeAPIError(op string, resp *http.Response) error {
	apiErr := &APIError{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var payload struct {
		Code       int     `json:"code"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Code = payload.Code
		if payload.Message != "" {
			apiErr.Message = payload.Message
		}
		if payload.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(payload.RetryAfter * float64(time.Second))
		}
	} else if len(raw) > 0 {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func nonNilEmbeds(embeds []Embed) []Embed {
	if embeds == nil {
		return []Embed{}
	}
	return embeds
}

func nonNilRows(rows []ActionRow) []ActionRow {
	if rows == nil {
		return []ActionRow{}
	}
	return rows
}
