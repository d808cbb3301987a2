package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"faultline/internal/notifier"
)

var ErrEmptyPayload = errors.New("report has no error or payload")

// Report is one failure as seen by a producer. Either Err or Payload must be
// set; Err wins when both are.
type Report struct {
	Kind string `json:"kind"`
	// Err is formatted with %+v into the payload, so errors carrying stack
	// traces keep them.
	Err      error            `json:"-"`
	Payload  string           `json:"payload,omitempty"`
	Headline string           `json:"headline,omitempty"`
	Fields   []notifier.Field `json:"fields,omitempty"`
	Author   *notifier.Author `json:"author,omitempty"`
}

// Normalize resolves the payload and headline that identify and title the
// report.
func (r Report) Normalize() (payload, headline string, err error) {
	switch {
	case r.Err != nil:
		payload = fmt.Sprintf("%+v", r.Err)
		headline = r.Err.Error()
	case r.Payload != "":
		payload = r.Payload
		headline = firstLine(r.Payload)
	default:
		return "", "", ErrEmptyPayload
	}
	if r.Headline != "" {
		headline = r.Headline
	}
	return payload, headline, nil
}

func (r Report) kind() string {
	if r.Kind == "" {
		return "Unknown"
	}
	return r.Kind
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
