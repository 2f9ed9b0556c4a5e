package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/verify"
)

// dbFlags select the database for the inspection commands.
type dbFlags struct {
	Database string
	Driver   string
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database (or set database.path)")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "database driver (sqlite3|sqlite|pgx)")
}

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	dbFlags
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check decoded match blobs against stored match counts",
		Long: `Decode every publication's match blob, count how many publications match
each subscription, and compare with subscriptions.publication_match_count.

Exit codes:
  0 - Every count agrees and every blob decodes
  1 - Mismatches, malformed blobs or dangling references found
  2 - Command error (database not found, etc.)

Examples:
  pseval verify --db ./smartcampus.db
  pseval verify --db ./smartcampus.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	opts.dbFlags.register(cmd)
	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	s, err := opts.newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	st, err := s.openStore(opts.Database, opts.Driver)
	if err != nil {
		return s.fail(err)
	}
	defer st.Close()

	v, err := verify.New(st, verify.Options{PageSize: s.cfg.Sample.PageSize, Logger: s.logger, Observer: s.metrics})
	if err != nil {
		return s.fail(WrapPipelineError("invalid verify settings", err))
	}
	report, err := v.Run(s.ctx)
	if err != nil {
		return s.fail(WrapPipelineError("verification failed", err))
	}
	s.metrics.RecordWarnings(report.Warnings)

	if s.out.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: report}
		if !report.OK() {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeVerifyFailed, Message: "match counts disagree"}
		}
		if err := s.out.encode(resp); err != nil {
			return err
		}
	} else {
		w := s.out.Writer
		fmt.Fprintf(w, "Verified %s publications against %s subscriptions (%s matches)\n",
			humanize.Comma(report.Publications), humanize.Comma(report.Subscriptions), humanize.Comma(report.Matches))
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "✗ %s\n", warning)
		}
		if report.OK() {
			fmt.Fprintln(w, "✓ All match counts agree")
		}
	}

	if !report.OK() {
		problems := make([]error, len(report.Warnings))
		for i, w := range report.Warnings {
			problems[i] = w.Err()
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("verification found %d problem(s)", len(report.Warnings)), errors.Join(problems...))
	}
	return nil
}
