package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	dbFlags
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the CREATE TABLE statements of a SQLite database",
		Long: `Print every CREATE TABLE statement in the database catalog with
needless identifier quotes removed.

Examples:
  pseval schema --db ./smartcampus.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	opts.dbFlags.register(cmd)
	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
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

	tables, err := st.Schema(s.ctx)
	if err != nil {
		return s.fail(WrapPipelineError("failed to read schema", err))
	}

	if s.out.Format == "json" {
		return s.out.Success(tables)
	}
	w := s.out.Writer
	for _, t := range tables {
		fmt.Fprintf(w, "%s;\n\n", t.SQL)
	}
	return nil
}
