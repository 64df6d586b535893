package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/ash/internal/store"
	"github.com/andresmejia3/ash/internal/web"
	"github.com/spf13/cobra"
)

var (
	serveHost    string
	servePort    int
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves fingerprint encoding and comparison over HTTP. Identification endpoints
use the PostgreSQL identity store; pass --no-store to run without a database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to bind (default $ASH_HOST or 127.0.0.1)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default $ASH_PORT or 8080)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Run without the identity store")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if serveHost != "" {
		Cfg.Server.Host = serveHost
	}
	if servePort > 0 {
		Cfg.Server.Port = servePort
	}

	var finder web.IdentityFinder
	if !serveNoStore {
		db, err := store.New(ctx, Cfg.Database.ConnString(), Cfg.Database.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		finder = db
	}

	server, err := web.NewServer(Cfg, finder, Log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Fprintf(os.Stderr, "🌐 Listening on http://%s:%d\n", Cfg.Server.Host, Cfg.Server.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// The command context is already cancelled, give in-flight requests a fresh deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
