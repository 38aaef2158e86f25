package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gitlab.com/timkado/api/message-snapper/internal/bootstrap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or maintain the persisted metadata cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print how many live entries the cache snapshot holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCacheTool(func(ctx context.Context, tool *bootstrap.CacheTool) error {
			tool.Cache.Load(ctx)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tool.Cache.Stats())
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Rewrite the cache snapshot without expired entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCacheTool(func(ctx context.Context, tool *bootstrap.CacheTool) error {
			tool.Cache.Load(ctx)
			removed := tool.Cache.Prune(ctx)
			tool.Cache.Save(ctx)
			stats := tool.Cache.Stats()
			fmt.Printf("kept %d groups and %d members in %s (%d expired during run)\n",
				stats.Groups, stats.Members, stats.Location, removed)
			return nil
		})
	},
}

func withCacheTool(fn func(ctx context.Context, tool *bootstrap.CacheTool) error) error {
	tool, cleanup, err := bootstrap.InitializeCacheTool()
	if err != nil {
		return fmt.Errorf("failed to initialize cache tool: %w", err)
	}
	defer cleanup()
	return fn(context.Background(), tool)
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
}
