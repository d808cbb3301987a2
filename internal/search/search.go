package search

import (
	"context"
	"time"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Fingerprint     string    `json:"fingerprint"`
	Headline        string    `json:"headline"`
	Event           string    `json:"event"`
	Snippet         string    `json:"snippet"`
	NotificationRef string    `json:"notificationRef"`
	Occurrences     int64     `json:"occurrences"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Query describes a search request.
type Query struct {
	Text        string
	FilterEvent string // empty = all events
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ErrorDocument is the data we index for an error record. Payload is cut to
// maxIndexedPayload bytes.
type ErrorDocument struct {
	ID              string `json:"id"`
	Headline        string `json:"headline"`
	Event           string `json:"event"`
	Payload         string `json:"payload"`
	NotificationRef string `json:"notificationRef"`
	Occurrences     int64  `json:"occurrences"`
	UpdatedAt       int64  `json:"updatedAt"`
}

const maxIndexedPayload = 64 << 10
