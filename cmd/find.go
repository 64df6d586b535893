package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/utils"
	"github.com/spf13/cobra"
)

var findOpts Options

var findCmd = &cobra.Command{
	Use:         "find",
	Short:       "Search for a face among enrolled identities",
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateFaceInput(findOpts, true); err != nil {
			return err
		}
		if !cmd.Flags().Changed("threshold") {
			findOpts.MatchThreshold = Cfg.Matching.Threshold
		}
		if err := validateThreshold(findOpts.MatchThreshold); err != nil {
			return err
		}
		return runFind(cmd.Context(), findOpts)
	},
}

func init() {
	findCmd.Flags().StringVarP(&findOpts.LandmarksPath, "landmarks", "l", "", "Path to a landmark JSON file")
	findCmd.Flags().StringVarP(&findOpts.ImagePath, "image", "i", "", "Path to an image for the landmark detector")
	findCmd.Flags().StringVarP(&findOpts.Ash, "ash", "a", "", "A V6 fingerprint")
	findCmd.Flags().Float64VarP(&findOpts.MatchThreshold, "threshold", "t", ash.DefaultThreshold, "Face matching threshold")
	findCmd.Flags().Float64VarP(&findOpts.MinConfidence, "detection-threshold", "D", 0.5, "Face detection confidence threshold")
	findCmd.MarkFlagsMutuallyExclusive("landmarks", "image", "ash")
	rootCmd.AddCommand(findCmd)
}

func runFind(ctx context.Context, opts Options) error {
	fp, err := queryFingerprint(ctx, opts)
	if err != nil {
		return err
	}

	cmp, err := ash.NewComparator(Cfg.Matching.Calibration)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🗄️  Searching database...")
	m, err := DB.FindClosestIdentity(ctx, fp, cmp, opts.MatchThreshold)
	Log.LogIdentify(ctx, m.ID, m.Score, err)
	if err != nil {
		utils.ShowError("Database search failed", err, nil)
		return err
	}

	if !m.Found() {
		fmt.Printf("❌ No match found in database (best score %.4f).\n", m.Score)
		return nil
	}
	fmt.Printf("✅ Found Match: %s (ID: %d, score %.4f)\n", m.Name, m.ID, m.Score)

	sightings, err := DB.GetSightings(ctx, m.ID)
	if err != nil {
		utils.ShowError("Failed to retrieve sightings", err, nil)
		return err
	}
	if len(sightings) == 0 {
		fmt.Println("No recorded sightings found.")
		return nil
	}

	wOut := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(wOut, "\nSOURCE\tFACE\tSCORE")
	fmt.Fprintln(wOut, "------\t----\t-----")
	for _, st := range sightings {
		fmt.Fprintf(wOut, "%s\t%d\t%.4f\n", filepath.Base(st.SourcePath), st.FaceIndex, st.Score)
	}
	return wOut.Flush()
}

// queryFingerprint returns the fingerprint to search for: the --ash value
// validated strictly, or a freshly encoded face.
func queryFingerprint(ctx context.Context, opts Options) (ash.Fingerprint, error) {
	if opts.Ash != "" {
		return ash.Decode(opts.Ash)
	}

	res, source, err := encodeInput(ctx, opts)
	if err != nil {
		return "", err
	}
	Log.LogEncode(ctx, source, res.Failure.String())
	if !res.OK() {
		return "", fmt.Errorf("%s: %s: %w", source, res.String(), res.Err())
	}
	return res.Fingerprint, nil
}
