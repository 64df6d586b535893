package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	enrollOpts Options
	enrollID   int
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [name]",
	Short: "Store a face as a named identity",
	Long: `Encodes one face and stores it as a new identity. With --id the reference
fingerprint of an existing identity is replaced instead.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateFaceInput(enrollOpts, false); err != nil {
			return err
		}
		if enrollID == 0 && len(args) == 0 {
			return errors.New("a name is required unless --id is given")
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return runEnroll(cmd.Context(), name, enrollID, enrollOpts)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollOpts.LandmarksPath, "landmarks", "l", "", "Path to a landmark JSON file")
	enrollCmd.Flags().StringVarP(&enrollOpts.ImagePath, "image", "i", "", "Path to an image for the landmark detector")
	enrollCmd.Flags().Float64VarP(&enrollOpts.MinConfidence, "detection-threshold", "D", 0.5, "Face detection confidence threshold")
	enrollCmd.Flags().IntVar(&enrollID, "id", 0, "Replace the fingerprint of this identity")
	enrollCmd.MarkFlagsMutuallyExclusive("landmarks", "image")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, name string, id int, opts Options) error {
	res, source, err := encodeInput(ctx, opts)
	if err != nil {
		return err
	}
	Log.LogEncode(ctx, source, res.Failure.String())
	if !res.OK() {
		return fmt.Errorf("cannot enroll %s: %s: %w", source, res.String(), res.Err())
	}

	if id != 0 {
		if err := DB.UpdateFingerprint(ctx, id, res.Fingerprint); err != nil {
			return fmt.Errorf("failed to update identity %d: %w", id, err)
		}
		if name != "" {
			if err := DB.RenameIdentity(ctx, id, name); err != nil {
				return fmt.Errorf("failed to rename identity %d: %w", id, err)
			}
		}
		fmt.Fprintf(os.Stderr, "✅ Updated fingerprint of identity %d\n", id)
		return nil
	}

	id, err = DB.CreateIdentity(ctx, name, res.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to enroll identity: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✅ Enrolled '%s' as identity %d\n", name, id)
	return nil
}
