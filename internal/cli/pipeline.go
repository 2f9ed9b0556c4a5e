package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/corpus"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/export"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/resolver"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/sampler"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/store"
)

// exportFlags are shared by the sample and subscriptions commands.
type exportFlags struct {
	Database      string
	Driver        string
	Out           string
	Version       string
	PageSize      int
	CacheSize     int
	Strict        bool
	NormalizeText bool
	Compress      string
	Compact       bool
}

func (f *exportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database (or set database.path)")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "database driver (sqlite3|sqlite|pgx)")
	cmd.Flags().StringVarP(&f.Out, "out", "o", "-", "destination: file path, - for stdout, or s3://bucket/key")
	cmd.Flags().StringVar(&f.Version, "version", "", "subscription text version (sql|nlp)")
	cmd.Flags().IntVar(&f.PageSize, "page-size", 0, "rows per database round-trip")
	cmd.Flags().BoolVar(&f.NormalizeText, "normalize", false, "apply Unicode NFC to exported text")
	cmd.Flags().StringVar(&f.Compress, "compress", "", "compress the document (zstd)")
	cmd.Flags().BoolVar(&f.Compact, "compact", false, "write compact JSON instead of indented")
}

// apply copies explicitly set flags over the loaded configuration.
func (f *exportFlags) apply(cmd *cobra.Command, s *session) {
	cfg := s.cfg
	if cmd.Flags().Changed("version") {
		cfg.Export.Version = f.Version
	}
	if cmd.Flags().Changed("page-size") {
		cfg.Sample.PageSize = f.PageSize
	}
	if cmd.Flags().Changed("cache-size") {
		cfg.Export.CacheSize = f.CacheSize
	}
	if cmd.Flags().Changed("strict") {
		cfg.Export.Strict = f.Strict
	}
	if cmd.Flags().Changed("normalize") {
		cfg.Export.NormalizeText = f.NormalizeText
	}
	if cmd.Flags().Changed("compress") {
		cfg.Export.Compress = f.Compress
	}
}

// checkSettings validates the configuration once flags have been applied,
// before anything touches the store.
func (s *session) checkSettings() error {
	if err := s.cfg.Validate(); err != nil {
		return s.fail(WrapPipelineError("invalid settings", err))
	}
	return nil
}

// openSink resolves the --out destination, building an S3 client only when
// the target needs one.
func (s *session) openSink(target string) (export.Sink, error) {
	opts := export.SinkOptions{
		Compress: s.cfg.Export.Compress,
		Stdout:   s.out.Writer,
	}
	if strings.HasPrefix(target, "s3://") {
		client, err := s.s3Client()
		if err != nil {
			return nil, err
		}
		opts.S3 = client
	}

	sink, err := export.OpenSink(s.ctx, target, opts)
	if err != nil {
		return nil, WrapPipelineError("failed to open destination", err)
	}
	return sink, nil
}

func (s *session) s3Client() (export.S3Client, error) {
	if s.opts.S3 != nil {
		return s.opts.S3, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if s.cfg.S3.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(s.cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(s.ctx, loadOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load AWS configuration", err)
	}

	endpoint := s.cfg.S3.Endpoint
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// newAssembler wires the sampler, resolver and corpus over st.
func (s *session) newAssembler(st *store.Store, seed *uint64, compact bool) (*export.Assembler, error) {
	cfg := s.cfg

	smp, err := sampler.New(st, sampler.Options{
		PageSize:        cfg.Sample.PageSize,
		RetryMultiplier: cfg.Sample.RetryMultiplier,
		Seed:            seed,
		MaxPageSize:     store.MaxPageSize,
		Logger:          s.logger,
		Observer:        s.metrics,
	})
	if err != nil {
		return nil, WrapPipelineError("invalid sampler settings", err)
	}

	res, err := resolver.New(st, resolver.Options{
		Version:   model.Version(cfg.Export.Version),
		CacheSize: cfg.Export.CacheSize,
		Strict:    cfg.Export.Strict,
		Logger:    s.logger,
		Observer:  s.metrics,
	})
	if err != nil {
		return nil, WrapPipelineError("invalid resolver settings", err)
	}

	cor, err := corpus.New(st, cfg.Sample.PageSize)
	if err != nil {
		return nil, WrapPipelineError("invalid corpus settings", err)
	}
	cor.WithObserver(s.metrics)

	indent := ""
	if compact {
		indent = "-"
	}
	return export.New(smp, res, cor, export.Options{
		PageSize:      cfg.Sample.PageSize,
		NormalizeText: cfg.Export.NormalizeText,
		Indent:        indent,
		Logger:        s.logger,
		Observer:      s.metrics,
	}), nil
}

// summaryFormatter picks where the run summary goes: stderr when the document
// itself is written to stdout.
func (s *session) summaryFormatter(target string) *OutputFormatter {
	if target == "" || target == "-" {
		return &OutputFormatter{Format: s.out.Format, Writer: s.out.GetErrWriter(), Verbose: s.out.Verbose}
	}
	return s.out
}

// reportExport prints a finished export report.
func reportExport(out *OutputFormatter, r *export.Report, verbose bool) error {
	if out.Format == "json" {
		return out.encode(CLIResponse{Status: "ok", Data: r, RunID: r.RunID})
	}

	w := out.Writer
	noun := "publications"
	if r.Kind == export.KindSubscriptions {
		noun = "subscriptions"
	}
	fmt.Fprintf(w, "Exported %s %s (%s text, %s) to %s in %s\n",
		humanize.Comma(int64(r.Documents)), noun, r.Version,
		humanize.Bytes(uint64(r.Bytes)), r.Destination, r.Duration.Round(time.Millisecond))
	if r.Kind == export.KindSample {
		fmt.Fprintf(w, "  Requested: %d, matches: %s, seed: %d\n", r.Requested, humanize.Comma(int64(r.Matches)), r.Seed)
	}
	fmt.Fprintf(w, "  Run: %s\n", r.RunID)

	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "  Warnings: %d\n", len(r.Warnings))
		if verbose {
			for _, warning := range r.Warnings {
				fmt.Fprintf(w, "    %s\n", warning)
			}
		}
	}
	return nil
}
