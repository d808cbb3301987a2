package store

import (
	"errors"
	"time"

	"faultline/internal/fingerprint"
)

var ErrNotFound = errors.New("error record not found")

// ErrorRecord is the durable row for one distinct failure.
type ErrorRecord struct {
	Fingerprint     fingerprint.Fingerprint
	Payload         string
	Occurrences     int64
	NotificationRef int64
	Event           string
	Headline        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecord is what a producer that saw OutcomeNew persists once its
// candidate notification exists.
type NewRecord struct {
	Fingerprint fingerprint.Fingerprint
	Payload     string
	Event       string
	Headline    string
}

type OutcomeKind int

const (
	// OutcomeNew means no row existed; the caller must post a candidate
	// notification and call FinalizeNew.
	OutcomeNew OutcomeKind = iota + 1
	// OutcomeRepeated means the counter was incremented in place.
	OutcomeRepeated
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNew:
		return "new"
	case OutcomeRepeated:
		return "repeated"
	default:
		return "unknown"
	}
}

// Outcome is the result of RecordOccurrence. NotificationRef and Occurrences
// are only set for OutcomeRepeated.
type Outcome struct {
	Kind            OutcomeKind
	NotificationRef int64
	Occurrences     int64
}

func Unseen() Outcome { return Outcome{Kind: OutcomeNew} }

func Repeated(ref, occurrences int64) Outcome {
	return Outcome{Kind: OutcomeRepeated, NotificationRef: ref, Occurrences: occurrences}
}

type FinalizeKind int

const (
	// FinalizeWon means the caller's candidate became the canonical
	// notification.
	FinalizeWon FinalizeKind = iota + 1
	// FinalizeLost means another producer inserted first; the candidate must
	// be deleted and CanonicalRef used instead.
	FinalizeLost
)

func (k FinalizeKind) String() string {
	switch k {
	case FinalizeWon:
		return "won"
	case FinalizeLost:
		return "lost"
	default:
		return "unknown"
	}
}

// FinalizeOutcome is the result of FinalizeNew. CanonicalRef is always the
// persisted reference, equal to the candidate when Kind is FinalizeWon.
type FinalizeOutcome struct {
	Kind         FinalizeKind
	CanonicalRef int64
	Occurrences  int64
}

func Won(ref, occurrences int64) FinalizeOutcome {
	return FinalizeOutcome{Kind: FinalizeWon, CanonicalRef: ref, Occurrences: occurrences}
}

func Lost(canonicalRef, occurrences int64) FinalizeOutcome {
	return FinalizeOutcome{Kind: FinalizeLost, CanonicalRef: canonicalRef, Occurrences: occurrences}
}

func finalizeOutcome(candidateRef, persistedRef, occurrences int64) FinalizeOutcome {
	if persistedRef == candidateRef {
		return Won(persistedRef, occurrences)
	}
	return Lost(persistedRef, occurrences)
}
