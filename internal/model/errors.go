package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the export pipeline. Callers match them with errors.Is;
// producers wrap them with context via fmt.Errorf("...: %w").
var (
	// ErrInvalidArgument is returned for bad caller input (version, count, page size).
	// Always raised before any store access.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientData signals that fewer rows exist than were requested.
	// Non-fatal: carried as a Warning next to the partial result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedMatchData is returned when a match blob is not exactly 8 bytes.
	ErrMalformedMatchData = errors.New("malformed match data")

	// ErrStoreUnavailable wraps connection and query failures.
	// Fatal for the in-flight request only.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDanglingMatchReference marks a decoded id with no subscription row.
	ErrDanglingMatchReference = errors.New("dangling match reference")
)

// WarningKind categorizes non-fatal data-integrity findings.
type WarningKind string

const (
	WarnInsufficientData       WarningKind = "INSUFFICIENT_DATA"
	WarnDanglingMatchReference WarningKind = "DANGLING_MATCH_REFERENCE"
	WarnMalformedMatchData     WarningKind = "MALFORMED_MATCH_DATA"
	WarnMatchCountMismatch     WarningKind = "MATCH_COUNT_MISMATCH"
)

// Warning is a data-integrity finding attached to a result.
// Warnings never abort a request.
type Warning struct {
	Kind           WarningKind `json:"kind"`
	Message        string      `json:"message"`
	PublicationID  string      `json:"publication_id,omitempty"`
	SubscriptionID int64       `json:"subscription_id,omitempty"`
}

func (w Warning) String() string {
	switch {
	case w.PublicationID != "" && w.SubscriptionID != 0:
		return fmt.Sprintf("%s: %s (publication=%s, subscription=%d)", w.Kind, w.Message, w.PublicationID, w.SubscriptionID)
	case w.PublicationID != "":
		return fmt.Sprintf("%s: %s (publication=%s)", w.Kind, w.Message, w.PublicationID)
	case w.SubscriptionID != 0:
		return fmt.Sprintf("%s: %s (subscription=%d)", w.Kind, w.Message, w.SubscriptionID)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Err returns the sentinel error matching the warning kind, for callers that
// turn a warning into a failure.
func (w Warning) Err() error {
	var base error
	switch w.Kind {
	case WarnInsufficientData:
		base = ErrInsufficientData
	case WarnDanglingMatchReference:
		base = ErrDanglingMatchReference
	case WarnMalformedMatchData:
		base = ErrMalformedMatchData
	default:
		return errors.New(w.String())
	}
	return fmt.Errorf("%w: %s", base, w.String())
}

// CountWarnings returns the number of warnings of the given kind.
func CountWarnings(ws []Warning, kind WarningKind) int {
	n := 0
	for _, w := range ws {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
