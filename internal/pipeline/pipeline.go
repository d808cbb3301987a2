// Package pipeline turns a reported failure into exactly one visible
// notification per distinct payload, with a running occurrence count.
//
// The only serialisation point is the dedup store. Two producers that both
// see a payload as new both post a candidate notification; the store's
// insert decides the winner and the loser's candidate is deleted.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/fingerprint"
	"faultline/internal/notifier"
	"faultline/internal/store"
)

type Store interface {
	RecordOccurrence(ctx context.Context, fp fingerprint.Fingerprint) (store.Outcome, error)
	FinalizeNew(ctx context.Context, rec store.NewRecord, candidateRef int64) (store.FinalizeOutcome, error)
}

type Notifier interface {
	Post(ctx context.Context, s notifier.Summary) (channel.MessageID, error)
	UpdateOccurrences(ctx context.Context, id channel.MessageID, count int64) error
	Retract(ctx context.Context, id channel.MessageID) error
}

type Reconciler interface {
	Resolve(ctx context.Context, candidate channel.MessageID, outcome store.FinalizeOutcome) channel.MessageID
}

// Outcome names what a report did.
type Outcome string

const (
	OutcomeNew      Outcome = "new"
	OutcomeRepeated Outcome = "repeated"
	// OutcomeRaceLost means another producer recorded the same payload first;
	// this report was counted on its notification.
	OutcomeRaceLost Outcome = "race_lost"
	// OutcomeSuppressed means the channel refused the post for lack of
	// access. Nothing was recorded.
	OutcomeSuppressed Outcome = "suppressed"
)

type Result struct {
	Outcome         Outcome                 `json:"outcome"`
	Fingerprint     fingerprint.Fingerprint `json:"fingerprint"`
	NotificationRef channel.MessageID       `json:"notification_ref,omitempty"`
	Occurrences     int64                   `json:"occurrences,omitempty"`
}

// Recorded describes an occurrence the store accepted.
type Recorded struct {
	Fingerprint     fingerprint.Fingerprint
	Event           string
	Headline        string
	Payload         string
	NotificationRef channel.MessageID
	Occurrences     int64
}

// Observer is told about every recorded occurrence. It must not block.
type Observer interface {
	Recorded(rec Recorded)
}

type Reporter struct {
	store      Store
	notifier   Notifier
	reconciler Reconciler
	observers  []Observer
	logger     *zap.Logger
}

func NewReporter(logger *zap.Logger, st Store, n Notifier, r Reconciler) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		store:      st,
		notifier:   n,
		reconciler: r,
		logger:     logger.Named("pipeline"),
	}
}

// WithObserver registers o for every subsequent report.
func (r *Reporter) WithObserver(o Observer) *Reporter {
	r.observers = append(r.observers, o)
	return r
}

// Report records one occurrence of rep and brings its notification up to
// date. Store failures come back as *StoreError and a failed post of a new
// notification as *DeliveryError; a failed occurrence edit is logged only,
// since the store already holds the count.
func (r *Reporter) Report(ctx context.Context, rep Report) (Result, error) {
	payload, headline, err := rep.Normalize()
	if err != nil {
		return Result{}, err
	}
	fp := fingerprint.OfString(payload)
	log := r.logger.With(zap.Stringer("fingerprint", fp), zap.String("event", rep.kind()))

	outcome, err := r.store.RecordOccurrence(ctx, fp)
	if err != nil {
		reportsTotal.WithLabelValues("store_error").Inc()
		return Result{}, &StoreError{Op: "record occurrence", Err: err}
	}

	if outcome.Kind == store.OutcomeRepeated {
		ref := channel.MessageID(outcome.NotificationRef)
		r.updateCount(ctx, log, ref, outcome.Occurrences)
		r.notify(fp, rep.kind(), headline, payload, ref, outcome.Occurrences)
		reportsTotal.WithLabelValues(string(OutcomeRepeated)).Inc()
		return Result{
			Outcome:         OutcomeRepeated,
			Fingerprint:     fp,
			NotificationRef: ref,
			Occurrences:     outcome.Occurrences,
		}, nil
	}

	candidate, err := r.notifier.Post(ctx, notifier.Summary{
		Event:    rep.kind(),
		Headline: headline,
		Fields:   rep.Fields,
		Author:   rep.Author,
	})
	if err != nil {
		if channel.IsPermission(err) {
			log.Warn("Notification channel refused the post", zap.Error(err))
			reportsTotal.WithLabelValues(string(OutcomeSuppressed)).Inc()
			return Result{Outcome: OutcomeSuppressed, Fingerprint: fp}, nil
		}
		reportsTotal.WithLabelValues("delivery_error").Inc()
		return Result{}, &DeliveryError{Err: err}
	}

	final, err := r.store.FinalizeNew(ctx, store.NewRecord{
		Fingerprint: fp,
		Payload:     payload,
		Event:       rep.kind(),
		Headline:    notifier.TruncateHeadline(headline, notifier.HeadlineLimit),
	}, int64(candidate))
	if err != nil {
		// Without a record the candidate could never be counted or retrieved.
		if delErr := r.notifier.Retract(ctx, candidate); delErr != nil {
			log.Error("Failed to delete unrecorded notification",
				zap.Stringer("candidate", candidate), zap.Error(delErr))
		}
		reportsTotal.WithLabelValues("store_error").Inc()
		return Result{}, &StoreError{Op: "finalize new record", Err: err}
	}

	canonical := r.reconciler.Resolve(ctx, candidate, final)
	r.notify(fp, rep.kind(), headline, payload, canonical, final.Occurrences)
	if final.Kind == store.FinalizeLost {
		r.updateCount(ctx, log, canonical, final.Occurrences)
		reportsTotal.WithLabelValues(string(OutcomeRaceLost)).Inc()
		return Result{
			Outcome:         OutcomeRaceLost,
			Fingerprint:     fp,
			NotificationRef: canonical,
			Occurrences:     final.Occurrences,
		}, nil
	}

	log.Info("Reported new error", zap.Stringer("message_id", canonical))
	reportsTotal.WithLabelValues(string(OutcomeNew)).Inc()
	return Result{
		Outcome:         OutcomeNew,
		Fingerprint:     fp,
		NotificationRef: canonical,
		Occurrences:     final.Occurrences,
	}, nil
}

func (r *Reporter) updateCount(ctx context.Context, log *zap.Logger, ref channel.MessageID, count int64) {
	if err := r.notifier.UpdateOccurrences(ctx, ref, count); err != nil {
		log.Warn("Failed to update occurrence count",
			zap.Stringer("message_id", ref),
			zap.Int64("occurrences", count),
			zap.Error(err),
		)
	}
}

func (r *Reporter) notify(fp fingerprint.Fingerprint, event, headline, payload string, ref channel.MessageID, n int64) {
	if len(r.observers) == 0 {
		return
	}
	rec := Recorded{
		Fingerprint:     fp,
		Event:           event,
		Headline:        headline,
		Payload:         payload,
		NotificationRef: ref,
		Occurrences:     n,
	}
	for _, o := range r.observers {
		o.Recorded(rec)
	}
}
