package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	dbFlags
}

// CheckResult is the JSON payload of the check command.
type CheckResult struct {
	OK            bool     `json:"ok"`
	Results       []string `json:"results"`
	Publications  int64    `json:"publications"`
	Subscriptions int64    `json:"subscriptions"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the SQLite integrity check",
		Long: `Run PRAGMA integrity_check against the database.

Exit codes:
  0 - Database is healthy
  1 - Integrity problems found
  2 - Command error (database not found, not SQLite, etc.)

Examples:
  pseval check --db ./smartcampus.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, cmd)
		},
	}

	opts.dbFlags.register(cmd)
	return cmd
}

func runCheck(opts *CheckOptions, cmd *cobra.Command) error {
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

	results, err := st.IntegrityCheck(s.ctx)
	if err != nil {
		return s.fail(WrapPipelineError("integrity check failed to run", err))
	}
	result := CheckResult{OK: len(results) == 1 && results[0] == "ok", Results: results}
	if result.OK {
		bounds, err := st.PublicationBounds(s.ctx)
		if err != nil {
			return s.fail(WrapPipelineError("failed to count publications", err))
		}
		subs, err := st.CountSubscriptions(s.ctx)
		if err != nil {
			return s.fail(WrapPipelineError("failed to count subscriptions", err))
		}
		result.Publications, result.Subscriptions = bounds.Count, subs
	}

	if s.out.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.OK {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeIntegrity, Message: "integrity check reported problems"}
		}
		if err := s.out.encode(resp); err != nil {
			return err
		}
	} else {
		w := s.out.Writer
		if result.OK {
			fmt.Fprintln(w, "✓ Integrity check passed")
			fmt.Fprintf(w, "  Publications: %s, subscriptions: %s\n",
				humanize.Comma(result.Publications), humanize.Comma(result.Subscriptions))
		} else {
			for _, line := range results {
				fmt.Fprintf(w, "✗ %s\n", line)
			}
		}
	}

	if !result.OK {
		return NewExitError(ExitFailure, "integrity check reported problems")
	}
	return nil
}
