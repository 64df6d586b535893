package cmd

import (
	"fmt"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/spf13/cobra"
)

var compareThreshold float64

var compareCmd = &cobra.Command{
	Use:   "compare <ash_a> <ash_b>",
	Short: "Score the similarity of two fingerprints",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		threshold := Cfg.Matching.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = compareThreshold
		}
		if err := validateThreshold(threshold); err != nil {
			return err
		}

		cmp, err := ash.NewComparator(Cfg.Matching.Calibration)
		if err != nil {
			return err
		}
		res := cmp.Compare(args[0], args[1])
		Log.LogCompare(cmd.Context(), res.Score, string(res.Reason))

		fmt.Printf("Score:   %.4f\n", res.Score)
		fmt.Printf("Verdict: %s\n", ash.Decide(res.Score, threshold))
		if res.Reason != ash.ReasonScored {
			fmt.Printf("Reason:  %s\n", res.Reason)
		} else {
			fmt.Printf("Error:   %.4f over %d points\n", res.AvgError, res.Points)
		}
		return nil
	},
}

func init() {
	compareCmd.Flags().Float64VarP(&compareThreshold, "threshold", "t", ash.DefaultThreshold, "Score at or above which the pair is a match")
	rootCmd.AddCommand(compareCmd)
}

func validateThreshold(t float64) error {
	if t < 0 || t > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %f", t)
	}
	return nil
}
