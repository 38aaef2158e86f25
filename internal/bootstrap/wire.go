//go:build wireinject
// +build wireinject

//go:generate wire

package bootstrap

import (
	"context"

	"github.com/google/wire"
)

// InitializeApp creates the service with all its dependencies.
// The cleanup function closes connections and syncs loggers.
func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}

// InitializeCacheTool builds the cache manager for the maintenance subcommands.
func InitializeCacheTool() (*CacheTool, func(), error) {
	wire.Build(CacheToolSet)
	return nil, nil, nil
}
