// Package ingest carries reports and button actions between processes over
// NATS. Producers publish envelopes; every faultline instance subscribes in
// one queue group so each envelope is handled once.
package ingest

import (
	"time"

	"faultline/internal/channel"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
	"faultline/internal/retrieval"
)

const (
	SubjectReports = "faultline.reports"
	SubjectActions = "faultline.actions"
	QueueGroup     = "faultline"
)

// ReportEnvelope is the wire form of a pipeline.Report. The payload is
// already formatted by the producer.
type ReportEnvelope struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	Payload    string           `json:"payload"`
	Headline   string           `json:"headline,omitempty"`
	Fields     []notifier.Field `json:"fields,omitempty"`
	Author     *notifier.Author `json:"author,omitempty"`
	ReportedAt time.Time        `json:"reported_at"`
}

func (e ReportEnvelope) Report() pipeline.Report {
	return pipeline.Report{
		Kind:     e.Kind,
		Payload:  e.Payload,
		Headline: e.Headline,
		Fields:   e.Fields,
		Author:   e.Author,
	}
}

// ActionEnvelope is a button press forwarded by a gateway process. The
// interaction token is used to answer through the callback endpoint.
type ActionEnvelope struct {
	ID          string              `json:"id"`
	CustomID    string              `json:"custom_id"`
	MessageID   channel.MessageID   `json:"message_id"`
	Interaction channel.Interaction `json:"interaction"`
}

func (e ActionEnvelope) Action() retrieval.Action {
	return retrieval.Action{
		CustomID:    e.CustomID,
		MessageID:   e.MessageID,
		Interaction: e.Interaction,
	}
}

// Ack is the reply sent when the publisher asked for one.
type Ack struct {
	ID     string           `json:"id"`
	OK     bool             `json:"ok"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}
