package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// SampleOptions holds flags for the sample command.
type SampleOptions struct {
	*RootOptions
	exportFlags
	Count           int
	Seed            uint64
	RetryMultiplier int
}

// NewSampleCommand creates the sample command.
func NewSampleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SampleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Export a random sample of publications with their matched subscriptions",
		Long: `Draw a uniform random sample of publications and write each one with the
text of every subscription it matches as a JSON array.

If fewer publications exist than requested, every publication is exported
and the summary reports an INSUFFICIENT_DATA warning. Match ids with no
subscription row are dropped and reported as DANGLING_MATCH_REFERENCE.

Exit codes:
  0 - Export committed
  1 - Export aborted (malformed match data in strict mode, write failure)
  2 - Command error (bad flags, database not found, etc.)

Examples:
  pseval sample --db ./smartcampus.db --count 100 -o sample.json
  pseval sample --db ./smartcampus.db --count 100 --version nlp --seed 42
  pseval sample --db ./smartcampus.db --count 1000 -o s3://eval/sample.json.zst`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(opts, cmd)
		},
	}

	opts.exportFlags.register(cmd)
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "number of publications to sample (required)")
	_ = cmd.MarkFlagRequired("count")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed for a reproducible sample")
	cmd.Flags().IntVar(&opts.RetryMultiplier, "retry-multiplier", 0, "key draws allowed per requested row")
	cmd.Flags().IntVar(&opts.CacheSize, "cache-size", 0, "subscription texts kept in the lookup cache")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort on malformed match data")

	return cmd
}

func runSample(opts *SampleOptions, cmd *cobra.Command) error {
	s, err := opts.newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	opts.exportFlags.apply(cmd, s)
	if cmd.Flags().Changed("retry-multiplier") {
		s.cfg.Sample.RetryMultiplier = opts.RetryMultiplier
	}
	seed := s.cfg.Sample.Seed
	if cmd.Flags().Changed("seed") {
		seed = &opts.Seed
	}

	if opts.Count <= 0 {
		err := fmt.Errorf("%w: count must be positive, got %d", model.ErrInvalidArgument, opts.Count)
		return s.fail(WrapPipelineError("invalid count", err))
	}
	if _, err := model.ParseVersion(s.cfg.Export.Version); err != nil {
		return s.fail(WrapPipelineError("invalid version", err))
	}
	if err := s.checkSettings(); err != nil {
		return err
	}

	st, err := s.openStore(opts.Database, opts.Driver)
	if err != nil {
		return s.fail(err)
	}
	defer st.Close()

	asm, err := s.newAssembler(st, seed, opts.Compact)
	if err != nil {
		return s.fail(err)
	}

	sink, err := s.openSink(opts.Out)
	if err != nil {
		return s.fail(err)
	}

	report, err := asm.ExportSample(s.ctx, opts.Count, sink)
	if err != nil {
		return s.fail(WrapPipelineError("sample export failed", err))
	}
	return reportExport(s.summaryFormatter(opts.Out), report, opts.Verbose)
}
