package cli

import (
	"encoding/json"
	"fmt"

	"featurekit/internal/transform"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newMineCommand(g *globals) *cobra.Command {
	var (
		format    string
		delimiter string
		output    string
		miner     = transform.NewTargetAssociationMiner("")
		method    string
	)
	cmd := &cobra.Command{
		Use:   "mine <file> --target <column>",
		Short: "Mine categorical values associated with a binary target",
		Long: `Mine evaluates every categorical column against a 0/1 target and prints the
values meeting all thresholds as a column map, ready to paste into a
pipeline's dummies step.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := g.loadTable(args[0], format, delimiter)
			if err != nil {
				return err
			}
			miner.Method = transform.AggregationMethod(method)
			if err := miner.Fit(t); err != nil {
				return err
			}
			mapping, _ := miner.Mapping()

			out := cmd.OutOrStdout()
			switch output {
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(mapping)
			case "json":
				stats, _ := miner.Stats()
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					BaseRate float64               `json:"base_rate"`
					Mapping  any                   `json:"mapping"`
					Stats    []transform.ValueStat `json:"stats"`
				}{miner.BaseRate(), mapping, stats})
			}
			return fmt.Errorf("unknown output %q (want yaml or json)", output)
		},
	}
	f := cmd.Flags()
	f.StringVar(&miner.Target, "target", "", "binary (0/1) target column")
	f.StringSliceVar(&miner.Include, "include", nil, "only consider these columns")
	f.StringSliceVar(&miner.Exclude, "exclude", nil, "never consider these columns")
	f.StringVar(&method, "method", string(transform.MethodAggregate), "aggregation method (aggregate, one_hot)")
	f.Float64Var(&miner.MinMeanTarget, "min-mean-target", 0, "minimum mean target per value")
	f.IntVar(&miner.MinSampleSize, "min-sample-size", 0, "minimum rows per value")
	f.Float64Var(&miner.MinSampleFrequency, "min-sample-frequency", 0, "minimum share of rows per value")
	f.Float64Var(&miner.MinWeightedTarget, "min-weighted-target", 0, "minimum mean target times frequency")
	f.BoolVar(&miner.IgnoreBinary, "ignore-binary", true, "skip columns holding only 0/1")
	f.StringVar(&format, "format", "", "input format (csv, arrow)")
	f.StringVar(&delimiter, "delimiter", "", "csv field delimiter")
	f.StringVarP(&output, "output", "o", "yaml", "output (yaml, json)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
