package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-drift/scan/pkg/gate"
)

var policyFlags struct {
	granted   bool
	rationale bool
	count     int
	threshold int
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Evaluate the permission decision for a scan trigger",
	Long: `decide prints what the scan trigger does for a given permission state:
proceed, request_permission or direct_to_settings.

The threshold defaults to permissions.threshold from the configuration.`,
	Example: `  driftscan decide --count 1 --rationale
  driftscan decide --count 2 --threshold 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		threshold, err := policyThreshold(cmd)
		if err != nil {
			return err
		}
		d := gate.Decide(policyFlags.granted, policyFlags.rationale, policyFlags.count, threshold)
		fmt.Fprintln(cmd.OutOrStdout(), d)
		return nil
	},
}

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Apply a permission dialog result to a denial count",
	Example: `  driftscan observe --count 0
  driftscan observe --count 1 --granted`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		threshold, err := policyThreshold(cmd)
		if err != nil {
			return err
		}
		count, action := gate.ObserveResult(policyFlags.granted, policyFlags.count, threshold)
		fmt.Fprintf(cmd.OutOrStdout(), "count=%d action=%s\n", count, action)
		return nil
	},
}

func policyThreshold(cmd *cobra.Command) (int, error) {
	if policyFlags.count < 0 {
		return 0, fmt.Errorf("--count must be >= 0, got %d", policyFlags.count)
	}
	threshold := resolved.Permissions.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = policyFlags.threshold
	}
	if threshold < 1 {
		return 0, fmt.Errorf("%w: %d", gate.ErrInvalidThreshold, threshold)
	}
	return threshold, nil
}

func init() {
	for _, c := range []*cobra.Command{decideCmd, observeCmd} {
		c.Flags().BoolVar(&policyFlags.granted, "granted", false, "permission is granted")
		c.Flags().IntVar(&policyFlags.count, "count", 0, "denial count before this step")
		c.Flags().IntVar(&policyFlags.threshold, "threshold", gate.DefaultThreshold, "denials before directing to settings")
		rootCmd.AddCommand(c)
	}
	decideCmd.Flags().BoolVar(&policyFlags.rationale, "rationale", false, "the platform would show a rationale")
}
