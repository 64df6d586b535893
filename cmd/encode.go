package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var encodeOpts Options

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the geometric fingerprint of one face",
	Long: `Encodes 68 facial landmarks into a V6 fingerprint. Landmarks come either from a
JSON file (a flat array of 136 numbers or {"landmarks": [[x, y], ...]}) or from an
image run through the landmark detector. Prints VOID or INVALID_SCALE when no
fingerprint can be produced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateFaceInput(encodeOpts, false); err != nil {
			return err
		}
		return runEncode(cmd.Context(), encodeOpts)
	},
}

func init() {
	encodeCmd.Flags().StringVarP(&encodeOpts.LandmarksPath, "landmarks", "l", "", "Path to a landmark JSON file")
	encodeCmd.Flags().StringVarP(&encodeOpts.ImagePath, "image", "i", "", "Path to an image for the landmark detector")
	encodeCmd.Flags().Float64VarP(&encodeOpts.MinConfidence, "detection-threshold", "D", 0.5, "Face detection confidence threshold")
	encodeCmd.MarkFlagsMutuallyExclusive("landmarks", "image")
	rootCmd.AddCommand(encodeCmd)
}

func runEncode(ctx context.Context, opts Options) error {
	res, source, err := encodeInput(ctx, opts)
	if err != nil {
		return err
	}
	Log.LogEncode(ctx, source, res.Failure.String())

	fmt.Println(res.String())
	return res.Err()
}
