package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/andresmejia3/ash/internal/store"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:         "show <identity_id>",
	Short:       "Print an identity and its reference fingerprint",
	Args:        cobra.ExactArgs(1),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid identity ID: %w", err)
		}

		it, err := DB.GetIdentity(cmd.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("identity %d does not exist", id)
		}
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %d\n", it.ID)
		fmt.Printf("Name:      %s\n", it.Name)
		fmt.Printf("Sightings: %d\n", it.Count)
		fmt.Printf("Created:   %s\n", it.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Ash:       %s\n", it.Ash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
