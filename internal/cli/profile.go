package cli

import (
	"encoding/json"

	"featurekit/internal/engine"
	"featurekit/internal/profile"

	"github.com/spf13/cobra"
)

func newProfileCommand(g *globals) *cobra.Command {
	var (
		format    string
		delimiter string
		examples  int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "profile <file>",
		Short: "Print a data dictionary for a table",
		Long: `Profile summarizes every column of a CSV or Arrow file: type, cardinality,
nulls, most common value, boolean candidates and example values.

The profile is written as CSV unless --json is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := g.loadTable(args[0], format, delimiter)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("examples") && g.settings != nil {
				examples = g.settings.Profile.Examples
			}
			records, err := profile.Profile(t, examples)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			tbl, err := profile.Table(records, examples)
			if err != nil {
				return err
			}
			return engine.WriteCSV(out, tbl)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "input format (csv, arrow)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "csv field delimiter")
	cmd.Flags().IntVar(&examples, "examples", profile.DefaultExamples, "example values per column")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write JSON instead of CSV")
	return cmd
}
