package cli

import (
	"fmt"
	"io"
	"os"

	"featurekit/internal/engine"
	"featurekit/internal/pipeline"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand(g *globals) *cobra.Command {
	var (
		pipelinePath string
		format       string
		delimiter    string
		outPath      string
		outFormat    string
	)
	cmd := &cobra.Command{
		Use:   "run --pipeline <file> <input>",
		Short: "Fit a feature pipeline on a table and write the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			of, err := engine.ParseFormat(outFormat)
			if err != nil {
				return err
			}
			if of == engine.FormatArrow && outPath == "" {
				return fmt.Errorf("arrow output needs --out")
			}

			p, err := pipeline.Load(pipelinePath)
			if err != nil {
				return err
			}
			t, err := g.loadTable(args[0], format, delimiter)
			if err != nil {
				return err
			}
			res, err := p.FitTransform(t)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if of == engine.FormatArrow {
				err = engine.WriteIPC(w, res)
			} else {
				err = engine.WriteCSV(w, res)
			}
			if err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			log.Info().Int("rows", res.NumRows()).Int("columns", res.NumCols()).
				Str("out", outPath).Msg("pipeline complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&pipelinePath, "pipeline", "p", "", "pipeline document (YAML)")
	cmd.Flags().StringVar(&format, "format", "", "input format (csv, arrow)")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "csv field delimiter")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	cmd.Flags().StringVar(&outFormat, "out-format", "csv", "output format (csv, arrow)")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}
