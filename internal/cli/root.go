package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/config"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/export"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/logging"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/metrics"
	"github.com/alwengel/SmartCampus-Pub-Sub/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	EnvFile     string
	LogLevel    string
	LogFormat   string
	MetricsFile string

	// S3 overrides the client built from the AWS default chain. Tests set it.
	S3 export.S3Client

	// LookupEnv overrides os.LookupEnv for config loading. Tests set it.
	LookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pseval CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pseval",
		Short: "pseval - SmartCampus pub/sub evaluation exporter",
		Long: `Export evaluation data from a SmartCampus pub/sub database.

Samples publications with their matched subscriptions, dumps the
subscription corpus, and checks the stored match bookkeeping.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "summary format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml, .toml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file with PSEVAL_* overrides (default .env if present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (console|json)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	// Add subcommands
	cmd.AddCommand(NewSampleCommand(opts))
	cmd.AddCommand(NewSubscriptionsCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// session is the per-invocation state shared by every subcommand.
type session struct {
	ctx     context.Context
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	out     *OutputFormatter
	opts    *RootOptions
}

// newSession loads the configuration, applies global flag overrides and
// sets up logging and metrics.
func (o *RootOptions) newSession(cmd *cobra.Command) (*session, error) {
	if !isValidFormat(o.Format) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigPath, config.Options{EnvFile: o.EnvFile, LookupEnv: o.LookupEnv})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	if o.MetricsFile != "" {
		cfg.Metrics.File = o.MetricsFile
	}

	logger, err := logging.Setup(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: o.Verbose,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &session{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		opts:    o,
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   o.Verbose,
		},
	}, nil
}

// openStore opens the database named by the --db flag, or by the config
// when the flag is empty.
func (s *session) openStore(dbFlag, driverFlag string) (*store.Store, error) {
	db := s.cfg.Database
	if driverFlag != "" {
		db.Driver = driverFlag
	}
	if dbFlag != "" {
		db.Path, db.DSN = dbFlag, ""
	}
	if db.Source() == "" {
		return nil, NewExitError(ExitCommandError, "no database: pass --db or set database.path in the config")
	}

	st, err := store.Open(store.Config{Driver: db.Driver, DSN: db.Source()})
	if err != nil {
		return nil, WrapPipelineError("failed to open database", err)
	}
	s.logger.Debug().Str("driver", st.Driver()).Msg("database opened")
	if db.DSN == "" {
		s.out.VerboseLog("Opened %s database %s", st.Driver(), db.Path)
	} else {
		s.out.VerboseLog("Opened %s database from DSN", st.Driver())
	}
	return st, nil
}

// close flushes the metrics textfile if one was requested.
func (s *session) close() {
	if s.cfg.Metrics.File == "" {
		return
	}
	if err := s.metrics.WriteTextfile(s.cfg.Metrics.File); err != nil {
		s.logger.Warn().Err(err).Msg("metrics textfile not written")
	}
}

// fail reports err in JSON mode and returns it for the exit code.
func (s *session) fail(err error) error {
	if s.out.Format == "json" {
		s.out.Error(ErrorCode(err), err.Error(), nil)
	}
	return err
}
