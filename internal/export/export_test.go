package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/corpus"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/resolver"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/sampler"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/store"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/testutil"
)

// memSink is an in-memory Sink that records how it was finished.
type memSink struct {
	buf       bytes.Buffer
	committed bool
	aborted   bool
	failWrite error
}

func (s *memSink) Write(p []byte) (int, error) {
	if s.failWrite != nil {
		return 0, s.failWrite
	}
	return s.buf.Write(p)
}
func (s *memSink) Commit() error       { s.committed = true; return nil }
func (s *memSink) Abort() error        { s.aborted = true; s.buf.Reset(); return nil }
func (s *memSink) Destination() string { return "mem" }

// pipeline wires a fixture database through the real store and components.
type pipeline struct {
	store     *store.Store
	assembler *Assembler
}

func newPipeline(t *testing.T, f *testutil.Fixture, version model.Version) *pipeline {
	t.Helper()
	st, err := store.OpenPath(f.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	seed := uint64(7)
	smp, err := sampler.New(st, sampler.Options{Seed: &seed})
	require.NoError(t, err)
	res, err := resolver.New(st, resolver.Options{Version: version})
	require.NoError(t, err)
	cor, err := corpus.New(st, 2)
	require.NoError(t, err)

	asm := New(smp, res, cor, Options{
		RunIDs: testutil.NewFixedRunID("run-1"),
		Now:    testutil.NewStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second).Now,
	})
	return &pipeline{store: st, assembler: asm}
}

// seedCampus creates three publications and three subscriptions.
// Publication 3 references subscription 9, which does not exist.
func seedCampus(t *testing.T) *testutil.Fixture {
	t.Helper()
	f := testutil.NewFixture(t)
	f.AddSubscriptions(t, 1, 2, 3)
	f.AddPublication(t, 1, 1, 3)
	f.AddPublication(t, 2)
	f.AddPublication(t, 3, 2, 9)
	return f
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestExportSample_MoreThanAvailable(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)
	sink := &memSink{}

	report, err := p.assembler.ExportSample(context.Background(), 5, sink)
	require.NoError(t, err)

	assert.True(t, sink.committed)
	assert.False(t, sink.aborted)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Matches)
	assert.Equal(t, 5, report.Requested)
	assert.Equal(t, uint64(7), report.Seed)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, KindSample, report.Kind)
	assert.Equal(t, model.VersionSQL, report.Version)
	assert.Equal(t, int64(sink.buf.Len()), report.Bytes)
	assert.Equal(t, time.Second, report.Duration)
	assert.Equal(t, 1, model.CountWarnings(report.Warnings, model.WarnInsufficientData))
	assert.Equal(t, 1, model.CountWarnings(report.Warnings, model.WarnDanglingMatchReference))

	golden(t).Assert(t, "sample_sql", sink.buf.Bytes())
}

func TestExportSample_LooselyTypedPayload(t *testing.T) {
	f := seedCampus(t)
	f.SetPayload(t, 2, "timestamp_unix", 1704067200.25)
	f.SetPayload(t, 3, "temperature", "n/a")
	p := newPipeline(t, f, model.VersionSQL)
	sink := &memSink{}

	report, err := p.assembler.ExportSample(context.Background(), 5, sink)
	require.NoError(t, err)
	assert.True(t, sink.committed)
	assert.Equal(t, 3, report.Documents)

	golden(t).Assert(t, "sample_sql", sink.buf.Bytes())
}

func TestExportSample_DocumentShape(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionNLP)
	sink := &memSink{}

	_, err := p.assembler.ExportSample(context.Background(), 3, sink)
	require.NoError(t, err)

	var docs []PublicationDoc
	require.NoError(t, json.Unmarshal(sink.buf.Bytes(), &docs))
	require.Len(t, docs, 3)

	byID := map[string]PublicationDoc{}
	for _, d := range docs {
		byID[d.PublicationID.String()] = d
	}
	first := byID[testutil.PublicationID(1)]
	assert.Equal(t, testutil.PublicationText(1), first.Publication)
	assert.Equal(t, []MatchDoc{
		{SubscriptionID: 1, Subscription: testutil.NLPText(1)},
		{SubscriptionID: 3, Subscription: testutil.NLPText(3)},
	}, first.SubscriptionMatches)

	empty := byID[testutil.PublicationID(2)]
	assert.NotNil(t, empty.SubscriptionMatches)
	assert.Empty(t, empty.SubscriptionMatches)

	dangling := byID[testutil.PublicationID(3)]
	assert.Equal(t, []MatchDoc{{SubscriptionID: 2, Subscription: testutil.NLPText(2)}}, dangling.SubscriptionMatches)
}

func TestExportSample_InvalidCount(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)

	for _, n := range []int{0, -1} {
		sink := &memSink{}
		_, err := p.assembler.ExportSample(context.Background(), n, sink)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
		assert.True(t, sink.aborted)
		assert.False(t, sink.committed)
	}
}

func TestExportSample_AbortsOnResolverFailure(t *testing.T) {
	table := &testutil.SyntheticTable{MinID: 1, MaxID: 10, Subscriptions: 4, FailAfter: 2}
	smp, err := sampler.New(table, sampler.Options{})
	require.NoError(t, err)
	res, err := resolver.New(table, resolver.Options{})
	require.NoError(t, err)

	asm := New(smp, res, nil, Options{RunIDs: testutil.NewFixedRunID("")})
	sink := &memSink{}

	// Call 1 fetches bounds, call 2 the publications, call 3 the texts.
	_, err = asm.ExportSample(context.Background(), 10, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
	assert.Zero(t, sink.buf.Len())
}

func TestExportSample_AbortsOnWriteFailure(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)
	boom := errors.New("disk full")
	sink := &memSink{failWrite: boom}

	_, err := p.assembler.ExportSample(context.Background(), 2, sink)
	assert.ErrorIs(t, err, boom)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestExportSample_Compact(t *testing.T) {
	f := testutil.NewFixture(t)
	f.AddSubscriptions(t, 1)
	f.AddPublication(t, 1, 1)

	st, err := store.OpenPath(f.Path)
	require.NoError(t, err)
	defer st.Close()
	smp, err := sampler.New(st, sampler.Options{})
	require.NoError(t, err)
	res, err := resolver.New(st, resolver.Options{})
	require.NoError(t, err)

	asm := New(smp, res, nil, Options{Indent: "-"})
	sink := &memSink{}
	_, err = asm.ExportSample(context.Background(), 1, sink)
	require.NoError(t, err)

	want := `[` + "\n" +
		`{"publication_id":"pub-0001","publication":"{\"floor\":1,\"temperature\":21.5}",` +
		`"subscription_matches":[{"subscription_id":1,"subscription":"SELECT * FROM publication WHERE floor = 1"}]}` +
		"\n]\n"
	assert.Equal(t, want, sink.buf.String())
}

func TestExportSample_NormalizesText(t *testing.T) {
	f := testutil.NewFixture(t)
	// "e" followed by a combining acute accent composes to U+00E9 under NFC.
	f.AddSubscription(t, model.Subscription{ID: 1, SQLSubscription: "cafe\u0301"})
	f.AddPublication(t, 1, 1)

	st, err := store.OpenPath(f.Path)
	require.NoError(t, err)
	defer st.Close()
	smp, err := sampler.New(st, sampler.Options{})
	require.NoError(t, err)
	res, err := resolver.New(st, resolver.Options{})
	require.NoError(t, err)

	for _, normalize := range []bool{false, true} {
		sink := &memSink{}
		asm := New(smp, res, nil, Options{NormalizeText: normalize})
		_, err = asm.ExportSample(context.Background(), 1, sink)
		require.NoError(t, err)

		var docs []PublicationDoc
		require.NoError(t, json.Unmarshal(sink.buf.Bytes(), &docs))
		require.Len(t, docs, 1)
		if normalize {
			assert.Equal(t, "caf\u00e9", docs[0].SubscriptionMatches[0].Subscription)
		} else {
			assert.Equal(t, "cafe\u0301", docs[0].SubscriptionMatches[0].Subscription)
		}
	}
}

func TestExportSubscriptions_Golden(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)

	for _, version := range []string{"sql", "nlp"} {
		t.Run(version, func(t *testing.T) {
			sink := &memSink{}
			report, err := p.assembler.ExportSubscriptions(context.Background(), version, sink)
			require.NoError(t, err)

			assert.True(t, sink.committed)
			assert.Equal(t, 3, report.Documents)
			assert.Equal(t, KindSubscriptions, report.Kind)
			assert.Equal(t, model.Version(version), report.Version)
			golden(t).Assert(t, "subscriptions_"+version, sink.buf.Bytes())
		})
	}
}

func TestExportSubscriptions_Empty(t *testing.T) {
	p := newPipeline(t, testutil.NewFixture(t), model.VersionSQL)
	sink := &memSink{}

	report, err := p.assembler.ExportSubscriptions(context.Background(), "nlp", sink)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Documents)
	assert.Equal(t, "[]\n", sink.buf.String())
}

func TestExportSubscriptions_InvalidVersion(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)
	sink := &memSink{}

	_, err := p.assembler.ExportSubscriptions(context.Background(), "xml", sink)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

func TestExportSubscriptions_AbortsOnStoreFailure(t *testing.T) {
	table := &testutil.SyntheticTable{Subscriptions: 50, FailAfter: 1}
	cor, err := corpus.New(table, 10)
	require.NoError(t, err)

	asm := New(nil, nil, cor, Options{})
	sink := &memSink{}
	_, err = asm.ExportSubscriptions(context.Background(), "sql", sink)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.True(t, sink.aborted)
	assert.False(t, sink.committed)
}

type recordingObserver struct {
	kinds    []string
	docs     int
	warnings int
}

func (o *recordingObserver) ExportFinished(kind string, documents, _ int, _ int64, warnings []model.Warning, _ time.Duration) {
	o.kinds = append(o.kinds, kind)
	o.docs += documents
	o.warnings += len(warnings)
}

func TestExport_Observer(t *testing.T) {
	f := seedCampus(t)
	st, err := store.OpenPath(f.Path)
	require.NoError(t, err)
	defer st.Close()
	smp, err := sampler.New(st, sampler.Options{})
	require.NoError(t, err)
	res, err := resolver.New(st, resolver.Options{})
	require.NoError(t, err)
	cor, err := corpus.New(st, 0)
	require.NoError(t, err)

	obs := &recordingObserver{}
	asm := New(smp, res, cor, Options{Observer: obs})

	_, err = asm.ExportSample(context.Background(), 3, &memSink{})
	require.NoError(t, err)
	_, err = asm.ExportSubscriptions(context.Background(), "sql", &memSink{})
	require.NoError(t, err)

	assert.Equal(t, []string{KindSample, KindSubscriptions}, obs.kinds)
	assert.Equal(t, 6, obs.docs)
	assert.Equal(t, 1, obs.warnings)
}
