package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/ash/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Drop all identities, sources and sightings",
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReset(cmd.Context(), DB, os.Stdin, os.Stdout, resetYes)
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

type resetter interface {
	Reset(ctx context.Context) error
}

func runReset(ctx context.Context, db resetter, in io.Reader, out io.Writer, yes bool) error {
	if !yes && !confirm(bufio.NewReader(in), out, "⚠️  Are you sure you want to DROP all database tables?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	fmt.Fprintln(out, "🗑️  Clearing Database...")
	if err := db.Reset(ctx); err != nil {
		utils.ShowError("Failed to reset database", err, nil)
		return fmt.Errorf("reset database: %w", err)
	}
	fmt.Fprintln(out, "✨ Reset Complete.")
	return nil
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
