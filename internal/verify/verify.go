// Package verify cross-checks decoded match blobs against the match counts
// stored on each subscription. A clean run confirms the bit convention used
// by the decoder against the data set's own bookkeeping.
package verify

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/bitmask"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// DefaultPageSize is the number of rows read per round-trip.
const DefaultPageSize = 500

// Source is the read surface verification needs from a store.
type Source interface {
	PublicationsAfter(ctx context.Context, after int64, limit int) ([]model.Publication, error)
	SubscriptionRecordsAfter(ctx context.Context, after int64, limit int) ([]model.Subscription, error)
}

// Observer receives per-page statistics. Implemented by the metrics package.
type Observer interface {
	PageFetched(kind string, keys, rows int, elapsed time.Duration)
}

// Options configures a Verifier.
type Options struct {
	PageSize int
	Logger   zerolog.Logger
	Observer Observer
}

// Count compares the stored and decoded match counts of one subscription.
type Count struct {
	SubscriptionID int64 `json:"subscription_id"`
	Stored         int64 `json:"stored"`
	Decoded        int64 `json:"decoded"`
}

// Report is the outcome of a verification run.
type Report struct {
	Publications  int64           `json:"publications"`
	Subscriptions int64           `json:"subscriptions"`
	Matches       int64           `json:"matches"`
	Counts        []Count         `json:"counts"`
	Warnings      []model.Warning `json:"warnings,omitempty"`
}

// OK reports whether every stored count matched and no blob was malformed
// or referenced a missing subscription.
func (r *Report) OK() bool {
	return len(r.Warnings) == 0
}

// Verifier runs the match-count check.
type Verifier struct {
	src  Source
	opts Options
}

// New returns a Verifier reading from src.
func New(src Source, opts Options) (*Verifier, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", model.ErrInvalidArgument)
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize < 0 {
		return nil, fmt.Errorf("%w: page size %d", model.ErrInvalidArgument, opts.PageSize)
	}
	return &Verifier{src: src, opts: opts}, nil
}

// Run streams both tables once, holding one page at a time plus one
// counter per subscription id.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	tally := make(map[int64]int64, bitmask.MaxID)

	if err := v.tallyPublications(ctx, report, tally); err != nil {
		return nil, err
	}
	if err := v.compareSubscriptions(ctx, report, tally); err != nil {
		return nil, err
	}

	// Whatever is left in the tally was decoded but has no subscription row.
	dangling := make([]int64, 0, len(tally))
	for id := range tally {
		dangling = append(dangling, id)
	}
	slices.Sort(dangling)
	for _, id := range dangling {
		report.Warnings = append(report.Warnings, model.Warning{
			Kind:           model.WarnDanglingMatchReference,
			Message:        fmt.Sprintf("%d publications reference a missing subscription", tally[id]),
			SubscriptionID: id,
		})
	}

	v.opts.Logger.Info().
		Int64("publications", report.Publications).
		Int64("subscriptions", report.Subscriptions).
		Int64("matches", report.Matches).
		Int("warnings", len(report.Warnings)).
		Msg("verification finished")
	return report, nil
}

func (v *Verifier) tallyPublications(ctx context.Context, report *Report, tally map[int64]int64) error {
	after := model.FirstPage
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		page, err := v.src.PublicationsAfter(ctx, after, v.opts.PageSize)
		if err != nil {
			return fmt.Errorf("fetch publications after %d: %w", after, err)
		}
		v.observe(len(page), time.Since(start))

		for _, p := range page {
			report.Publications++
			ids, err := bitmask.Decode(p.SubscriptionMatches)
			if err != nil {
				report.Warnings = append(report.Warnings, model.Warning{
					Kind:          model.WarnMalformedMatchData,
					Message:       err.Error(),
					PublicationID: p.PublicationID.String(),
				})
				continue
			}
			for _, id := range ids {
				tally[id]++
			}
			report.Matches += int64(len(ids))
		}

		if len(page) < v.opts.PageSize {
			return nil
		}
		after = page[len(page)-1].RowID
	}
}

func (v *Verifier) compareSubscriptions(ctx context.Context, report *Report, tally map[int64]int64) error {
	after := model.FirstPage
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		page, err := v.src.SubscriptionRecordsAfter(ctx, after, v.opts.PageSize)
		if err != nil {
			return fmt.Errorf("fetch subscriptions after %d: %w", after, err)
		}
		v.observe(len(page), time.Since(start))

		for _, s := range page {
			report.Subscriptions++
			decoded := tally[s.ID]
			delete(tally, s.ID)

			report.Counts = append(report.Counts, Count{SubscriptionID: s.ID, Stored: s.PublicationMatchCount, Decoded: decoded})
			if decoded != s.PublicationMatchCount {
				report.Warnings = append(report.Warnings, model.Warning{
					Kind:           model.WarnMatchCountMismatch,
					Message:        fmt.Sprintf("stored %d, decoded %d", s.PublicationMatchCount, decoded),
					SubscriptionID: s.ID,
				})
			}
		}

		if len(page) < v.opts.PageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (v *Verifier) observe(rows int, elapsed time.Duration) {
	if v.opts.Observer != nil {
		v.opts.Observer.PageFetched("verify", v.opts.PageSize, rows, elapsed)
	}
}
