package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andresmejia3/ash/internal/store"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:         "label <identity_id> <name>",
	Short:       "Assign a name to an enrolled or discovered identity",
	Args:        cobra.ExactArgs(2),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid identity ID: %w", err)
		}
		return runLabel(cmd.Context(), DB, os.Stdout, id, args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

type renamer interface {
	RenameIdentity(ctx context.Context, id int, newName string) error
}

func runLabel(ctx context.Context, db renamer, out io.Writer, id int, name string) error {
	err := db.RenameIdentity(ctx, id, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("identity %d does not exist: %w", id, err)
	}
	if err != nil {
		return fmt.Errorf("label identity %d: %w", id, err)
	}

	fmt.Fprintf(out, "✅ Identity %d labeled as '%s'\n", id, name)
	return nil
}
