package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/ash/internal/config"
	"github.com/andresmejia3/ash/internal/logging"
	"github.com/andresmejia3/ash/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// DB is the global identity store shared by subcommands annotated with needsDB
	DB *store.Store
	// Cfg is the configuration loaded before every command runs
	Cfg *config.Config
	// Log is the structured logger built from Cfg
	Log *logging.Logger
	// dbURL is the connection string
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

// needsDB marks commands that open the identity store before running.
const needsDB = "needs-db"

var dbAnnotation = map[string]string{needsDB: "true"}

var rootCmd = &cobra.Command{
	Use:     "ash",
	Short:   "Facial landmark fingerprints and identity matching",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dbURL != "" {
			Cfg.Database.URL = dbURL
		}
		Log = logging.NewStderr(Cfg.Log.Format, Cfg.Log.Level)

		if cmd.Annotations[needsDB] == "" {
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.Database.ConnString(), Cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
			DB = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: $ASH_DATABASE_URL, POSTGRES_* or postgres://localhost:5432/ash)")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
