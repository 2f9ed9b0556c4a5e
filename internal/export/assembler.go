package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/corpus"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/sampler"
)

// Report kinds.
const (
	KindSample        = "sample"
	KindSubscriptions = "subscriptions"
)

// DefaultIndent is the per-level indentation of exported documents.
const DefaultIndent = "  "

// RunIDGenerator produces export run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sampler draws publications for a sample export.
type Sampler interface {
	Sample(ctx context.Context, n int) (*sampler.Result, error)
	Seed() uint64
}

// Resolver turns a page of publications into their matched subscriptions.
type Resolver interface {
	ResolvePage(ctx context.Context, pubs []model.Publication) ([][]model.Match, []model.Warning, error)
	Version() model.Version
}

// Corpus opens cursors over the subscription table.
type Corpus interface {
	Subscriptions(version string) (*corpus.Cursor, error)
}

// Observer receives per-export statistics. Implemented by the metrics package.
type Observer interface {
	ExportFinished(kind string, documents, matches int, bytes int64, warnings []model.Warning, elapsed time.Duration)
}

// Options configures an Assembler.
type Options struct {
	// PageSize is the number of sampled publications resolved per lookup.
	PageSize int

	// NormalizeText applies Unicode NFC to every text payload.
	NormalizeText bool

	// Indent is the per-level indentation; "-" writes compact JSON.
	// Empty means DefaultIndent.
	Indent string

	RunIDs   RunIDGenerator
	Now      func() time.Time
	Logger   zerolog.Logger
	Observer Observer
}

// Report summarizes a finished export.
type Report struct {
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	Version     model.Version   `json:"version"`
	Requested   int             `json:"requested,omitempty"`
	Documents   int             `json:"documents"`
	Matches     int             `json:"matches"`
	Bytes       int64           `json:"bytes"`
	Seed        uint64          `json:"seed,omitempty"`
	Warnings    []model.Warning `json:"warnings,omitempty"`
	Duration    time.Duration   `json:"duration_ns"`
	Destination string          `json:"destination"`
}

// Assembler builds export documents from the sampler, resolver and corpus.
type Assembler struct {
	sampler  Sampler
	resolver Resolver
	corpus   Corpus
	opts     Options
	text     textFunc
}

// New returns an Assembler. Any of the components may be nil if the
// corresponding export is never requested.
func New(s Sampler, r Resolver, c Corpus, opts Options) *Assembler {
	if opts.PageSize <= 0 {
		opts.PageSize = sampler.DefaultPageSize
	}
	switch opts.Indent {
	case "":
		opts.Indent = DefaultIndent
	case "-":
		opts.Indent = ""
	}
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	text := identity
	if opts.NormalizeText {
		text = nfc
	}
	return &Assembler{sampler: s, resolver: r, corpus: c, opts: opts, text: text}
}

// ExportSample samples count publications, resolves their matches and writes
// one PublicationDoc per publication to sink in sample order. The sink is
// committed on success and aborted on any failure.
func (a *Assembler) ExportSample(ctx context.Context, count int, sink Sink) (report *Report, err error) {
	if count <= 0 {
		sink.Abort()
		return nil, fmt.Errorf("%w: count must be positive, got %d", model.ErrInvalidArgument, count)
	}
	if a.sampler == nil || a.resolver == nil {
		sink.Abort()
		return nil, fmt.Errorf("%w: sample export needs a sampler and a resolver", model.ErrInvalidArgument)
	}

	report = a.newReport(KindSample, a.resolver.Version(), sink)
	report.Requested = count
	report.Seed = a.sampler.Seed()
	logger := a.opts.Logger.With().Str("run_id", report.RunID).Str("kind", KindSample).Logger()
	start := a.opts.Now()
	defer a.finish(sink, report, start, &err)

	res, err := a.sampler.Sample(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("sample publications: %w", err)
	}
	report.Warnings = append(report.Warnings, res.Warnings...)
	logger.Debug().Int("sampled", len(res.Publications)).Int64("draws", res.Draws).Msg("sample drawn")

	cw := &countingWriter{w: sink}
	aw := newArrayWriter(cw, a.opts.Indent)
	for lo := 0; lo < len(res.Publications); lo += a.opts.PageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := res.Publications[lo:min(lo+a.opts.PageSize, len(res.Publications))]
		matches, warnings, err := a.resolver.ResolvePage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("resolve matches: %w", err)
		}
		report.Warnings = append(report.Warnings, warnings...)

		for i, p := range page {
			if err := aw.Write(newPublicationDoc(p, matches[i], a.text)); err != nil {
				return nil, fmt.Errorf("write publication %s: %w", p.PublicationID, err)
			}
			report.Matches += len(matches[i])
		}
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("close document: %w", err)
	}

	report.Documents = aw.Count()
	report.Bytes = cw.n
	return report, nil
}

// ExportSubscriptions writes one SubscriptionDoc per subscription to sink in
// ascending id order, projecting the text of the given version.
func (a *Assembler) ExportSubscriptions(ctx context.Context, version string, sink Sink) (report *Report, err error) {
	if a.corpus == nil {
		sink.Abort()
		return nil, fmt.Errorf("%w: subscription export needs a corpus", model.ErrInvalidArgument)
	}
	cur, err := a.corpus.Subscriptions(version)
	if err != nil {
		sink.Abort()
		return nil, err
	}

	report = a.newReport(KindSubscriptions, cur.Version(), sink)
	start := a.opts.Now()
	defer a.finish(sink, report, start, &err)

	cw := &countingWriter{w: sink}
	aw := newArrayWriter(cw, a.opts.Indent)
	for cur.Next(ctx) {
		e := cur.Entry()
		if err := aw.Write(SubscriptionDoc{SubscriptionID: e.ID, Subscriptions: a.text(e.Text)}); err != nil {
			return nil, fmt.Errorf("write subscription %d: %w", e.ID, err)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("close document: %w", err)
	}

	report.Documents = aw.Count()
	report.Bytes = cw.n
	return report, nil
}

func (a *Assembler) newReport(kind string, version model.Version, sink Sink) *Report {
	return &Report{
		RunID:       a.opts.RunIDs.Generate(),
		Kind:        kind,
		Version:     version,
		Destination: sink.Destination(),
	}
}

// finish commits or aborts the sink depending on *errp and records the outcome.
func (a *Assembler) finish(sink Sink, report *Report, start time.Time, errp *error) {
	logger := a.opts.Logger.With().Str("run_id", report.RunID).Str("kind", report.Kind).Logger()

	if *errp != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			logger.Warn().Err(abortErr).Msg("abort sink")
		}
		logger.Error().Err(*errp).Str("destination", report.Destination).Msg("export failed")
		return
	}
	if err := sink.Commit(); err != nil {
		*errp = fmt.Errorf("commit %s: %w", report.Destination, err)
		logger.Error().Err(err).Str("destination", report.Destination).Msg("export failed")
		return
	}

	report.Duration = a.opts.Now().Sub(start)
	logger.Info().
		Int("documents", report.Documents).
		Int("matches", report.Matches).
		Int64("bytes", report.Bytes).
		Int("warnings", len(report.Warnings)).
		Str("destination", report.Destination).
		Dur("duration", report.Duration).
		Msg("export committed")
	if a.opts.Observer != nil {
		a.opts.Observer.ExportFinished(report.Kind, report.Documents, report.Matches, report.Bytes, report.Warnings, report.Duration)
	}
}
