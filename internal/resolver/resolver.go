// Package resolver turns a publication's match blob into the ordered list of
// (subscription id, text) pairs it references.
//
// Lookups are batched: ResolvePage collects the uncached ids of a whole page
// of publications and fetches them with one query. Results, including ids
// that have no subscription row, are cached in a bounded LRU so repeated
// ids cost no round-trip.
package resolver

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/bitmask"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// DefaultCacheSize covers every id a blob can reference.
const DefaultCacheSize = bitmask.MaxID * 4

// Source is the read surface the resolver needs from a store.
type Source interface {
	SubscriptionTexts(ctx context.Context, ids []int64, version model.Version) (map[int64]string, error)
}

// Observer receives resolution statistics. Implemented by the metrics package.
type Observer interface {
	MatchesResolved(resolved, dangling int)
	CacheLookup(hit bool)
}

// Options configures a Resolver.
type Options struct {
	// Version selects sql_subscription or nlp_subscription text.
	Version model.Version

	// CacheSize bounds cached ids. Zero means DefaultCacheSize.
	CacheSize int

	// Strict turns malformed blobs into a fatal model.ErrMalformedMatchData.
	Strict bool

	Logger   zerolog.Logger
	Observer Observer
}

// entry is a cached lookup result; found is false for dangling ids.
type entry struct {
	text  string
	found bool
}

// Resolver resolves match blobs against the subscriptions table.
// A Resolver is safe for sequential use by one pipeline run.
type Resolver struct {
	src   Source
	opts  Options
	cache *lru.Cache[int64, entry]
}

// New validates opts and returns a Resolver reading from src.
func New(src Source, opts Options) (*Resolver, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", model.ErrInvalidArgument)
	}
	if opts.Version == "" {
		opts.Version = model.VersionSQL
	}
	if _, err := model.ParseVersion(string(opts.Version)); err != nil {
		return nil, err
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheSize < 0 {
		return nil, fmt.Errorf("%w: cache size %d", model.ErrInvalidArgument, opts.CacheSize)
	}

	cache, err := lru.New[int64, entry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create subscription cache: %w", err)
	}

	return &Resolver{src: src, opts: opts, cache: cache}, nil
}

// Version returns the subscription text version this resolver projects.
func (r *Resolver) Version() model.Version {
	return r.opts.Version
}

// Resolve returns the matches of one publication in decoded (ascending id) order.
// Ids without a subscription row are omitted and reported as
// DANGLING_MATCH_REFERENCE warnings.
func (r *Resolver) Resolve(ctx context.Context, pub model.Publication) ([]model.Match, []model.Warning, error) {
	matches, warnings, err := r.ResolvePage(ctx, []model.Publication{pub})
	if err != nil {
		return nil, nil, err
	}
	return matches[0], warnings, nil
}

// ResolvePage resolves a page of publications with at most one store lookup.
// matches[i] belongs to pubs[i]; each is non-nil.
func (r *Resolver) ResolvePage(ctx context.Context, pubs []model.Publication) ([][]model.Match, []model.Warning, error) {
	var warnings []model.Warning
	decoded := make([][]int64, len(pubs))

	known := make(map[int64]entry)
	var missing []int64
	for i, pub := range pubs {
		ids, err := bitmask.Decode(pub.SubscriptionMatches)
		if err != nil {
			w := model.Warning{
				Kind:          model.WarnMalformedMatchData,
				Message:       err.Error(),
				PublicationID: pub.PublicationID.String(),
			}
			if r.opts.Strict {
				return nil, nil, w.Err()
			}
			warnings = append(warnings, w)
			r.opts.Logger.Warn().
				Str("publication_id", pub.PublicationID.String()).
				Int("blob_len", len(pub.SubscriptionMatches)).
				Msg("malformed match blob")
			decoded[i] = []int64{}
			continue
		}

		decoded[i] = ids
		for _, id := range ids {
			if _, seen := known[id]; seen || slices.Contains(missing, id) {
				continue
			}
			e, hit := r.cache.Get(id)
			r.observeLookup(hit)
			if hit {
				known[id] = e
			} else {
				missing = append(missing, id)
			}
		}
	}

	if err := r.fetch(ctx, missing, known); err != nil {
		return nil, nil, err
	}

	out := make([][]model.Match, len(pubs))
	for i, ids := range decoded {
		matches := make([]model.Match, 0, len(ids))
		dangling := 0
		for _, id := range ids {
			e := known[id]
			if !e.found {
				dangling++
				warnings = append(warnings, model.Warning{
					Kind:           model.WarnDanglingMatchReference,
					Message:        "decoded subscription id has no subscription row",
					PublicationID:  pubs[i].PublicationID.String(),
					SubscriptionID: id,
				})
				continue
			}
			matches = append(matches, model.Match{SubscriptionID: id, Subscription: e.text})
		}
		out[i] = matches

		if r.opts.Observer != nil {
			r.opts.Observer.MatchesResolved(len(matches), dangling)
		}
	}

	return out, warnings, nil
}

// fetch loads ids with one batched query into known and the cache.
// Ids absent from the result are recorded as dangling.
func (r *Resolver) fetch(ctx context.Context, ids []int64, known map[int64]entry) error {
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)

	texts, err := r.src.SubscriptionTexts(ctx, ids, r.opts.Version)
	if err != nil {
		return fmt.Errorf("fetch %d subscription texts: %w", len(ids), err)
	}

	for _, id := range ids {
		text, found := texts[id]
		e := entry{text: text, found: found}
		known[id] = e
		r.cache.Add(id, e)
	}

	r.opts.Logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(texts)).
		Msg("fetched subscription texts")
	return nil
}

func (r *Resolver) observeLookup(hit bool) {
	if r.opts.Observer != nil {
		r.opts.Observer.CacheLookup(hit)
	}
}
