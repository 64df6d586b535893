package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/ash/internal/store"
	"github.com/spf13/cobra"
)

var listName string

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List all enrolled identities",
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context(), DB, os.Stdout, listName)
	},
}

func init() {
	listCmd.Flags().StringVarP(&listName, "name", "n", "", "Only show identities whose name contains this (ignores case and accents)")
	rootCmd.AddCommand(listCmd)
}

type identityLister interface {
	ListIdentities(ctx context.Context, nameFilter string) ([]store.Identity, error)
}

func runList(ctx context.Context, db identityLister, out io.Writer, name string) error {
	identities, err := db.ListIdentities(ctx, name)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}

	if len(identities) == 0 {
		fmt.Fprintln(out, "No identities found in database.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIGHTINGS\tCREATED")
	fmt.Fprintln(w, "--\t----\t---------\t-------")

	for _, id := range identities {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", id.ID, id.Name, id.Count, id.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
