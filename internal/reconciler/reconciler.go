// Package reconciler settles the race between producers that both saw a
// fingerprint as new and both posted a notification for it.
package reconciler

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/store"
)

var (
	raceLosses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_race_losses_total",
		Help: "Candidate notifications that lost the insert race.",
	})
	orphanCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_orphan_cleanup_failures_total",
		Help: "Losing candidate notifications that could not be deleted.",
	})
)

// Retractor deletes a notification. Deleting one that is already gone must
// succeed.
type Retractor interface {
	Retract(ctx context.Context, id channel.MessageID) error
}

type Reconciler struct {
	retractor Retractor
	logger    *zap.Logger
}

func New(logger *zap.Logger, retractor Retractor) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{retractor: retractor, logger: logger.Named("reconciler")}
}

// Resolve returns the canonical notification for a finalized record. When
// the candidate lost, it is deleted once; a failed delete is logged and
// counted but never retried, and the canonical reference is still returned.
func (r *Reconciler) Resolve(ctx context.Context, candidate channel.MessageID, outcome store.FinalizeOutcome) channel.MessageID {
	canonical := channel.MessageID(outcome.CanonicalRef)
	if outcome.Kind != store.FinalizeLost {
		return canonical
	}

	raceLosses.Inc()
	r.logger.Info("Candidate notification lost the race",
		zap.Stringer("candidate", candidate),
		zap.Stringer("canonical", canonical),
		zap.Int64("occurrences", outcome.Occurrences),
	)
	if candidate == canonical {
		return canonical
	}
	if err := r.retractor.Retract(ctx, candidate); err != nil {
		orphanCleanupFailures.Inc()
		r.logger.Error("Failed to delete orphaned notification",
			zap.Stringer("candidate", candidate),
			zap.Stringer("canonical", canonical),
			zap.Error(err),
		)
	}
	return canonical
}
