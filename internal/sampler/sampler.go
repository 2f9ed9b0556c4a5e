// Package sampler draws a bounded random sample of publications from a table
// that may hold millions of rows, without materializing the table.
//
// Strategy:
//  1. Read the key range and row count once.
//  2. If the request covers the whole table, walk it with keyset pages.
//  3. Otherwise draw distinct candidate keys uniformly from [min, max],
//     fetch them in pages of at most PageSize keys, keep hits in draw order
//     and redraw for misses. Draws are capped at RetryMultiplier*n so a
//     pathologically sparse table cannot loop forever.
//
// Peak memory is O(PageSize + n*RetryMultiplier) regardless of table size.
package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

const (
	// DefaultPageSize is the number of keys fetched per store round-trip.
	DefaultPageSize = 500

	// DefaultRetryMultiplier caps total key draws at n times this value.
	DefaultRetryMultiplier = 4
)

// Source is the read surface the sampler needs from a store.
type Source interface {
	PublicationBounds(ctx context.Context) (model.Bounds, error)
	PublicationsByIDs(ctx context.Context, ids []int64) ([]model.Publication, error)
	PublicationsAfter(ctx context.Context, after int64, limit int) ([]model.Publication, error)
}

// Observer receives per-page statistics. Implemented by the metrics package.
type Observer interface {
	PageFetched(kind string, keys, rows int, elapsed time.Duration)
}

// Options configures a Sampler.
type Options struct {
	// PageSize bounds keys per fetch. Zero means DefaultPageSize.
	PageSize int

	// RetryMultiplier bounds total draws at n*RetryMultiplier.
	// Zero means DefaultRetryMultiplier.
	RetryMultiplier int

	// Seed fixes the random source. Nil seeds from the wall clock.
	Seed *uint64

	// MaxPageSize, if set, rejects PageSize values above it.
	MaxPageSize int

	Logger   zerolog.Logger
	Observer Observer
}

// Result is the outcome of one Sample call.
type Result struct {
	Publications []model.Publication
	Warnings     []model.Warning

	// Draws is the number of candidate keys tried.
	Draws int64
	// Pages is the number of store fetches after the bounds query.
	Pages int
}

// Sampler selects distinct publications uniformly at random.
// A Sampler is not safe for concurrent use. With a fixed seed every Sample
// call restarts the random source, so an unchanged table yields the same
// rows in the same order; without one, successive calls continue the stream.
type Sampler struct {
	src  Source
	opts Options
	seed uint64
	rng  *rand.Rand
}

// New validates opts and returns a Sampler reading from src.
func New(src Source, opts Options) (*Sampler, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", model.ErrInvalidArgument)
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RetryMultiplier == 0 {
		opts.RetryMultiplier = DefaultRetryMultiplier
	}
	if opts.PageSize < 0 || (opts.MaxPageSize > 0 && opts.PageSize > opts.MaxPageSize) {
		return nil, fmt.Errorf("%w: page size %d", model.ErrInvalidArgument, opts.PageSize)
	}
	if opts.RetryMultiplier < 1 {
		return nil, fmt.Errorf("%w: retry multiplier %d", model.ErrInvalidArgument, opts.RetryMultiplier)
	}

	seed := uint64(time.Now().UnixNano())
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	return &Sampler{
		src:  src,
		opts: opts,
		seed: seed,
		rng:  newRand(seed),
	}, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Seed returns the seed of the random source, for reproducing a run.
func (s *Sampler) Seed() uint64 {
	return s.seed
}

// Sample returns up to n distinct publications.
//
// n <= 0 fails with model.ErrInvalidArgument before any store access.
// When fewer than n rows can be found, the partial result carries an
// INSUFFICIENT_DATA warning. Store failures and cancellation return an
// error and no result.
func (s *Sampler) Sample(ctx context.Context, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", model.ErrInvalidArgument, n)
	}
	if s.opts.Seed != nil {
		s.rng = newRand(s.seed)
	}

	bounds, err := s.src.PublicationBounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("read publication bounds: %w", err)
	}

	s.opts.Logger.Debug().
		Int("requested", n).
		Int64("rows", bounds.Count).
		Int64("min_id", bounds.MinID).
		Int64("max_id", bounds.MaxID).
		Msg("sampling publications")

	var res *Result
	if int64(n) >= bounds.Count {
		res, err = s.scanAll(ctx, bounds)
	} else {
		res, err = s.drawKeys(ctx, n, bounds)
	}
	if err != nil {
		return nil, err
	}

	if len(res.Publications) < n {
		res.Warnings = append(res.Warnings, model.Warning{
			Kind:    model.WarnInsufficientData,
			Message: fmt.Sprintf("requested %d publications, found %d", n, len(res.Publications)),
		})
		s.opts.Logger.Warn().
			Int("requested", n).
			Int("found", len(res.Publications)).
			Msg("insufficient publications for sample")
	}

	return res, nil
}

// scanAll returns every row in ascending key order using keyset pages.
func (s *Sampler) scanAll(ctx context.Context, bounds model.Bounds) (*Result, error) {
	res := &Result{Publications: make([]model.Publication, 0, bounds.Count)}
	after := model.FirstPage

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		page, err := s.src.PublicationsAfter(ctx, after, s.opts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch publications after %d: %w", after, err)
		}
		res.Pages++
		s.observe("scan", s.opts.PageSize, len(page), time.Since(start))

		if len(page) == 0 {
			return res, nil
		}
		res.Publications = append(res.Publications, page...)
		res.Draws += int64(len(page))
		after = page[len(page)-1].RowID

		if len(page) < s.opts.PageSize {
			return res, nil
		}
	}
}

// drawKeys samples n < bounds.Count rows by drawing random keys.
func (s *Sampler) drawKeys(ctx context.Context, n int, bounds model.Bounds) (*Result, error) {
	span := bounds.Span()
	budget := int64(n) * int64(s.opts.RetryMultiplier)
	if budget > span {
		budget = span
	}

	res := &Result{Publications: make([]model.Publication, 0, n)}
	tried := make(map[int64]struct{}, min(budget, int64(n)*2))
	batch := make([]int64, 0, s.opts.PageSize)

	for len(res.Publications) < n && res.Draws < budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Draw no more keys than rows still missing, within the page and budget.
		want := min(int64(n-len(res.Publications)), int64(s.opts.PageSize), budget-res.Draws)
		batch = batch[:0]
		for int64(len(batch)) < want {
			key := bounds.MinID + s.rng.Int64N(span)
			if _, dup := tried[key]; dup {
				continue
			}
			tried[key] = struct{}{}
			batch = append(batch, key)
		}
		res.Draws += int64(len(batch))

		start := time.Now()
		rows, err := s.src.PublicationsByIDs(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("fetch %d candidate publications: %w", len(batch), err)
		}
		res.Pages++
		s.observe("draw", len(batch), len(rows), time.Since(start))

		// Keep hits in the order their keys were drawn.
		byID := make(map[int64]model.Publication, len(rows))
		for _, p := range rows {
			byID[p.RowID] = p
		}
		for _, key := range batch {
			if p, ok := byID[key]; ok {
				res.Publications = append(res.Publications, p)
			}
		}
	}

	if len(res.Publications) < n {
		s.opts.Logger.Debug().
			Int64("draws", res.Draws).
			Int64("budget", budget).
			Msg("key draw budget exhausted")
	}

	return res, nil
}

func (s *Sampler) observe(kind string, keys, rows int, elapsed time.Duration) {
	if s.opts.Observer != nil {
		s.opts.Observer.PageFetched(kind, keys, rows, elapsed)
	}
}
