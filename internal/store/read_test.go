package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/bitmask"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/testutil"
)

func TestPublicationBounds_Empty(t *testing.T) {
	s := openFixture(t, testutil.NewFixture(t))

	b, err := s.PublicationBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Bounds{}, b)
	assert.Equal(t, int64(0), b.Span())
}

func TestPublicationBounds_Sparse(t *testing.T) {
	f := testutil.NewFixture(t)
	for _, id := range []int64{3, 10, 42} {
		f.AddPublication(t, id)
	}
	s := openFixture(t, f)

	b, err := s.PublicationBounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Bounds{MinID: 3, MaxID: 42, Count: 3}, b)
	assert.Equal(t, int64(40), b.Span())
}

func TestPublicationsByIDs(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddPublication(t, 1, 1, 3)
	f.AddPublication(t, 2)
	f.AddPublication(t, 5, 64)
	s := openFixture(t, f)

	pubs, err := s.PublicationsByIDs(context.Background(), []int64{5, 4, 1})
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	assert.Equal(t, int64(1), pubs[0].RowID)
	assert.Equal(t, testutil.PublicationID(1), pubs[0].PublicationID.String())
	assert.Equal(t, testutil.PublicationText(1), pubs[0].Publication)
	assert.Equal(t, bitmask.MustEncode(1, 3), pubs[0].SubscriptionMatches)

	assert.Equal(t, int64(5), pubs[1].RowID)
}

func TestPublications_LooselyTypedPayload(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddPublication(t, 1, 2)
	f.AddPublication(t, 2, 1)
	f.SetPayload(t, 2, "timestamp_unix", 1704067200.25)
	f.SetPayload(t, 2, "temperature", "n/a")
	f.SetPayload(t, 1, "co2", []byte{0xff, 0x00})
	s := openFixture(t, f)
	ctx := context.Background()

	pubs, err := s.PublicationsByIDs(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, bitmask.MustEncode(1), pubs[1].SubscriptionMatches)

	pubs, err = s.PublicationsAfter(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, pubs, 2)
}

func TestPublicationsByIDs_Limits(t *testing.T) {
	s := openFixture(t, testutil.NewFixture(t))

	pubs, err := s.PublicationsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, pubs)
	assert.Empty(t, pubs)

	_, err = s.PublicationsByIDs(context.Background(), make([]int64, MaxPageSize+1))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestPublicationsAfter_KeysetPaging(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddPublications(t, 1, 25, nil)
	s := openFixture(t, f)
	ctx := context.Background()

	var seen []int64
	after := int64(0)
	for {
		page, err := s.PublicationsAfter(ctx, after, 10)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 10)
		for _, p := range page {
			seen = append(seen, p.RowID)
		}
		after = page[len(page)-1].RowID
	}

	require.Len(t, seen, 25)
	for i, id := range seen {
		assert.Equal(t, int64(i+1), id)
	}

	_, err := s.PublicationsAfter(ctx, 0, 0)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSubscriptionTexts(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddSubscriptions(t, 1, 2, 3)
	s := openFixture(t, f)
	ctx := context.Background()

	texts, err := s.SubscriptionTexts(ctx, []int64{1, 3, 9}, model.VersionSQL)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: testutil.SQLText(1), 3: testutil.SQLText(3)}, texts)

	texts, err = s.SubscriptionTexts(ctx, []int64{2}, model.VersionNLP)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{2: testutil.NLPText(2)}, texts)

	_, err = s.SubscriptionTexts(ctx, []int64{1}, model.Version("xml"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestSubscriptionsAfter(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddSubscriptions(t, 5, 1, 3)
	s := openFixture(t, f)
	ctx := context.Background()

	page, err := s.SubscriptionsAfter(ctx, 0, 2, model.VersionNLP)
	require.NoError(t, err)
	assert.Equal(t, []model.SubscriptionText{
		{ID: 1, Text: testutil.NLPText(1)},
		{ID: 3, Text: testutil.NLPText(3)},
	}, page)

	page, err = s.SubscriptionsAfter(ctx, 3, 2, model.VersionNLP)
	require.NoError(t, err)
	assert.Equal(t, []model.SubscriptionText{{ID: 5, Text: testutil.NLPText(5)}}, page)

	page, err = s.SubscriptionsAfter(ctx, 5, 2, model.VersionNLP)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSubscriptionRecordsAfter(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddSubscription(t, model.Subscription{
		ID: 7, Complexity: "complex", SQLSubscription: "SELECT 7", NLPSubscription: "seven", PublicationMatchCount: 12,
	})
	s := openFixture(t, f)

	page, err := s.SubscriptionRecordsAfter(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, model.Subscription{
		ID: 7, Complexity: "complex", SQLSubscription: "SELECT 7", NLPSubscription: "seven", PublicationMatchCount: 12,
	}, page[0])
}

func TestRead_CanceledContext(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddPublications(t, 1, 3, nil)
	s := openFixture(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.PublicationsAfter(ctx, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
