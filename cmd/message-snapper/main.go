package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gitlab.com/timkado/api/message-snapper/internal/bootstrap"
	"gitlab.com/timkado/api/message-snapper/pkg/contextkeys"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "message-snapper",
	Short: "Render chat messages into snapshot images",
	Long: `message-snapper renders group chat messages into PNG snapshots. It resolves group and
member metadata through a persisted TTL cache, caches face assets locally, and serves
snapshot requests over HTTP and NATS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configDir != "" {
			return os.Setenv("VIPER_CONFIG_PATH", configDir)
		}
		return nil
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot service (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = context.WithValue(ctx, contextkeys.RequestIDKey, "app-main")

	app, cleanup, err := bootstrap.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	return app.Run(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding config.yaml (overrides VIPER_CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
