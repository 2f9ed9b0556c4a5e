package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/bitmask"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// SyntheticTable stands in for a store with an arbitrarily large publications
// table. Rows are generated on demand and never held, so tests can observe
// exactly how much the code under test asks for at once.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SyntheticTable struct {
	// MinID and MaxID bound the publication key range.
	MinID, MaxID int64

	// Present reports whether a key in range holds a row. Nil means dense.
	Present func(id int64) bool

	// Count is the number of present rows. Zero means MaxID-MinID+1.
	Count int64

	// Subscriptions is the number of subscriptions, ids 1..Subscriptions.
	Subscriptions int64

	// FailAfter makes every call after the first FailAfter calls fail with
	// model.ErrStoreUnavailable. Zero disables failures.
	FailAfter int

	mu         sync.Mutex
	calls      int
	maxPage    int
	rowsServed int64
}

// Stats is a snapshot of the access counters of a SyntheticTable.
type Stats struct {
	Calls      int
	MaxPage    int
	RowsServed int64
}

// Stats returns the access counters.
func (s *SyntheticTable) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Calls: s.calls, MaxPage: s.maxPage, RowsServed: s.rowsServed}
}

func (s *SyntheticTable) present(id int64) bool {
	if id < s.MinID || id > s.MaxID {
		return false
	}
	return s.Present == nil || s.Present(id)
}

func (s *SyntheticTable) record(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.FailAfter > 0 && s.calls > s.FailAfter {
		return fmt.Errorf("synthetic call %d: %w", s.calls, model.ErrStoreUnavailable)
	}
	if n > s.maxPage {
		s.maxPage = n
	}
	s.rowsServed += int64(n)
	return nil
}

// SyntheticPublication builds the row the table serves for id.
func SyntheticPublication(id int64) model.Publication {
	return model.Publication{
		RowID:               id,
		PublicationID:       model.IntID(id),
		Publication:         fmt.Sprintf(`{"seq":%d}`, id),
		SubscriptionMatches: bitmask.MustEncode(id%bitmask.MaxID + 1),
	}
}

// PublicationBounds implements the sampler source contract.
func (s *SyntheticTable) PublicationBounds(ctx context.Context) (model.Bounds, error) {
	if err := s.record(0); err != nil {
		return model.Bounds{}, err
	}
	count := s.Count
	if count == 0 && s.MaxID >= s.MinID {
		count = s.MaxID - s.MinID + 1
	}
	return model.Bounds{MinID: s.MinID, MaxID: s.MaxID, Count: count}, nil
}

// PublicationsByIDs returns rows for the present keys in ids, ascending.
func (s *SyntheticTable) PublicationsByIDs(ctx context.Context, ids []int64) ([]model.Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := []model.Publication{}
	for _, id := range sorted {
		if s.present(id) {
			out = append(out, SyntheticPublication(id))
		}
	}
	if err := s.record(len(ids)); err != nil {
		return nil, err
	}
	return out, nil
}

// PublicationsAfter returns up to limit present rows with id > after.
func (s *SyntheticTable) PublicationsAfter(ctx context.Context, after int64, limit int) ([]model.Publication, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []model.Publication{}
	start := after + 1
	if start < s.MinID {
		start = s.MinID
	}
	for id := start; id <= s.MaxID && len(out) < limit; id++ {
		if s.present(id) {
			out = append(out, SyntheticPublication(id))
		}
	}
	if err := s.record(len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscriptionTexts implements the resolver source contract.
func (s *SyntheticTable) SubscriptionTexts(ctx context.Context, ids []int64, version model.Version) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if id >= 1 && id <= s.Subscriptions {
			out[id] = syntheticText(id, version)
		}
	}
	if err := s.record(len(ids)); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscriptionsAfter implements the corpus source contract.
func (s *SyntheticTable) SubscriptionsAfter(ctx context.Context, after int64, limit int, version model.Version) ([]model.SubscriptionText, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []model.SubscriptionText{}
	for id := max(after+1, 1); id <= s.Subscriptions && len(out) < limit; id++ {
		out = append(out, model.SubscriptionText{ID: id, Text: syntheticText(id, version)})
	}
	if err := s.record(len(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func syntheticText(id int64, version model.Version) string {
	if version == model.VersionNLP {
		return NLPText(id)
	}
	return SQLText(id)
}

// SubscriptionRecordsAfter implements the verification source contract.
// Synthetic records carry a zero publication match count.
func (s *SyntheticTable) SubscriptionRecordsAfter(ctx context.Context, after int64, limit int) ([]model.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []model.Subscription{}
	for id := max(after+1, 1); id <= s.Subscriptions && len(out) < limit; id++ {
		out = append(out, model.Subscription{
			ID:              id,
			Complexity:      "simple",
			SQLSubscription: SQLText(id),
			NLPSubscription: NLPText(id),
		})
	}
	if err := s.record(len(out)); err != nil {
		return nil, err
	}
	return out, nil
}
