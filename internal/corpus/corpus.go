// Package corpus streams the subscriptions table in fixed-size keyset pages,
// projecting either the structured-query or the natural-language text.
package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// DefaultPageSize is the number of subscriptions fetched per round-trip.
const DefaultPageSize = 500

// Source is the read surface the exporter needs from a store.
type Source interface {
	SubscriptionsAfter(ctx context.Context, after int64, limit int, version model.Version) ([]model.SubscriptionText, error)
}

// Observer receives per-page statistics. Implemented by the metrics package.
type Observer interface {
	PageFetched(kind string, keys, rows int, elapsed time.Duration)
}

// Exporter creates cursors over the subscription corpus.
type Exporter struct {
	src      Source
	pageSize int
	observer Observer
}

// New returns an Exporter reading pages of pageSize rows from src.
// A pageSize of zero means DefaultPageSize.
func New(src Source, pageSize int) (*Exporter, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", model.ErrInvalidArgument)
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < 0 {
		return nil, fmt.Errorf("%w: page size %d", model.ErrInvalidArgument, pageSize)
	}
	return &Exporter{src: src, pageSize: pageSize}, nil
}

// WithObserver attaches a page observer and returns e.
func (e *Exporter) WithObserver(o Observer) *Exporter {
	e.observer = o
	return e
}

// Subscriptions returns a cursor over every subscription, ascending by id.
// version must be "sql" or "nlp"; anything else fails with
// model.ErrInvalidArgument.
func (e *Exporter) Subscriptions(version string) (*Cursor, error) {
	v, err := model.ParseVersion(version)
	if err != nil {
		return nil, err
	}
	return &Cursor{exp: e, version: v, after: model.FirstPage}, nil
}

// Cursor iterates the corpus one page at a time. At most one page is held.
//
//	c, _ := exp.Subscriptions("sql")
//	for c.Next(ctx) {
//		use(c.Entry())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	exp     *Exporter
	version model.Version

	page  []model.SubscriptionText
	pos   int
	after int64
	done  bool
	err   error
	read  int64
}

// Version returns the projected text version.
func (c *Cursor) Version() model.Version {
	return c.version
}

// Next advances to the next entry, fetching a new page when needed.
// It returns false at the end of the corpus or on error.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos+1 < len(c.page) {
		c.pos++
		c.read++
		return true
	}
	if c.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}

	start := time.Now()
	page, err := c.exp.src.SubscriptionsAfter(ctx, c.after, c.exp.pageSize, c.version)
	if err != nil {
		c.err = fmt.Errorf("fetch subscriptions after %d: %w", c.after, err)
		return false
	}
	if c.exp.observer != nil {
		c.exp.observer.PageFetched("corpus", c.exp.pageSize, len(page), time.Since(start))
	}

	if len(page) < c.exp.pageSize {
		c.done = true
	}
	if len(page) == 0 {
		c.page = nil
		return false
	}

	c.page = page
	c.pos = 0
	c.after = page[len(page)-1].ID
	c.read++
	return true
}

// Entry returns the current entry. Valid only after Next returned true.
func (c *Cursor) Entry() model.SubscriptionText {
	return c.page[c.pos]
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Read returns the number of entries yielded so far.
func (c *Cursor) Read() int64 {
	return c.read
}

// Reset rewinds the cursor to the start of the corpus.
func (c *Cursor) Reset() {
	*c = Cursor{exp: c.exp, version: c.version, after: model.FirstPage}
}

// Each drives a fresh cursor over the corpus and calls fn for every entry.
// Iteration stops at the first error returned by fn.
func (e *Exporter) Each(ctx context.Context, version string, fn func(model.SubscriptionText) error) error {
	c, err := e.Subscriptions(version)
	if err != nil {
		return err
	}
	for c.Next(ctx) {
		if err := fn(c.Entry()); err != nil {
			return err
		}
	}
	return c.Err()
}
