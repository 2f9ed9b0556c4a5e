package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/corpus"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// SubscriptionsOptions holds flags for the subscriptions command.
type SubscriptionsOptions struct {
	*RootOptions
	exportFlags
	Print bool
}

// NewSubscriptionsCommand creates the subscriptions command.
func NewSubscriptionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscriptionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Export every subscription in one text version",
		Long: `Write every subscription as {"subscription_id", "subscriptions"} in
ascending id order, projecting either the SQL or the natural-language text.

With --print the subscriptions are listed as plain text instead.

Examples:
  pseval subscriptions --db ./smartcampus.db --version sql -o sql.json
  pseval subscriptions --db ./smartcampus.db --version nlp --print`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptions(opts, cmd)
		},
	}

	opts.exportFlags.register(cmd)
	cmd.Flags().BoolVar(&opts.Print, "print", false, "list subscriptions as text instead of exporting JSON")

	return cmd
}

func runSubscriptions(opts *SubscriptionsOptions, cmd *cobra.Command) error {
	s, err := opts.newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	opts.exportFlags.apply(cmd, s)

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

	if opts.Print {
		return printSubscriptions(s, st, cmd)
	}

	asm, err := s.newAssembler(st, nil, opts.Compact)
	if err != nil {
		return s.fail(err)
	}
	sink, err := s.openSink(opts.Out)
	if err != nil {
		return s.fail(err)
	}

	report, err := asm.ExportSubscriptions(s.ctx, s.cfg.Export.Version, sink)
	if err != nil {
		return s.fail(WrapPipelineError("subscription export failed", err))
	}
	return reportExport(s.summaryFormatter(opts.Out), report, opts.Verbose)
}

func printSubscriptions(s *session, src corpus.Source, cmd *cobra.Command) error {
	exp, err := corpus.New(src, s.cfg.Sample.PageSize)
	if err != nil {
		return s.fail(WrapPipelineError("invalid corpus settings", err))
	}
	exp.WithObserver(s.metrics)

	w := cmd.OutOrStdout()
	var n int
	err = exp.Each(s.ctx, s.cfg.Export.Version, func(e model.SubscriptionText) error {
		n++
		_, err := fmt.Fprintf(w, "ID %d: %s\n\n", e.ID, e.Text)
		return err
	})
	if err != nil {
		return s.fail(WrapPipelineError("failed to list subscriptions", err))
	}

	fmt.Fprintf(w, "Subscriptions (%d total)\n", n)
	return nil
}
