package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/filestore"
	apphttp "gitlab.com/timkado/api/message-snapper/internal/adapters/http"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/logger"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/middleware"
	appnats "gitlab.com/timkado/api/message-snapper/internal/adapters/nats"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/onebot"
	appredis "gitlab.com/timkado/api/message-snapper/internal/adapters/redis"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/render"
	"gitlab.com/timkado/api/message-snapper/internal/application"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
)

// APIKeyMiddleware guards the snapshot API. A named type keeps it distinct for Wire.
type APIKeyMiddleware func(http.Handler) http.Handler

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	apiKeyAuth     APIKeyMiddleware
	handler        *apphttp.Handler
	snapper        *application.MessageSnapper
	chatClient     *onebot.Client
	responder      *appnats.SnapshotResponder
	redisClient    *redis.Client
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	apiKeyAuth APIKeyMiddleware,
	handler *apphttp.Handler,
	snapper *application.MessageSnapper,
	chatClient *onebot.Client,
	responder *appnats.SnapshotResponder,
	redisClient *redis.Client,
) *App {
	return &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		apiKeyAuth:     apiKeyAuth,
		handler:        handler,
		snapper:        snapper,
		chatClient:     chatClient,
		responder:      responder,
		redisClient:    redisClient,
	}
}

// CacheTool backs the offline cache maintenance subcommands.
type CacheTool struct {
	Logger domain.Logger
	Cache  *application.CacheManager
}

func NewCacheTool(appLogger domain.Logger, cache *application.CacheManager) *CacheTool {
	return &CacheTool{Logger: appLogger, Cache: cache}
}

// ConfigProvider provides the hot-reloading application configuration.
// appCtx bounds the lifetime of the reload goroutines.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// StaticConfigProvider reads the configuration once, for short-lived commands.
func StaticConfigProvider() (config.Provider, error) {
	cfg, err := config.LoadOnce()
	if err != nil {
		return nil, err
	}
	return config.NewStaticProvider(cfg), nil
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides the HTTP server. Every request gets a request id
// and an access log line.
func HTTPGracefulServerProvider(cfgProvider config.Provider, appLogger domain.Logger, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	// Rendering can take a while, so the write deadline follows the render timeout.
	writeTimeout := time.Duration(appCfg.Render.TimeoutSeconds)*time.Second + 10*time.Second
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      middleware.RequestIDMiddleware(middleware.AccessLogMiddleware(appLogger)(mux)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// OutboundHTTPClientProvider provides the client used for asset downloads and the
// screenshot endpoint. Per-call deadlines come from contexts.
func OutboundHTTPClientProvider() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// APIKeyMiddlewareProvider provides the API key check for the snapshot API.
func APIKeyMiddlewareProvider(cfgProvider config.Provider, appLogger domain.Logger) APIKeyMiddleware {
	return middleware.APIKeyAuthMiddleware(cfgProvider, appLogger)
}

// RedisClientProvider provides a Redis client when cache.backend is "redis" and nil otherwise.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	if appCfg.Cache.Backend != config.BackendRedis {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// SnapshotStoreProvider picks the cache snapshot backend from cache.backend.
func SnapshotStoreProvider(cfgProvider config.Provider, redisClient *redis.Client, appLogger domain.Logger) (domain.SnapshotStore, error) {
	appCfg := cfgProvider.Get()
	switch appCfg.Cache.Backend {
	case config.BackendFile:
		return filestore.NewSnapshotStore(cfgProvider), nil
	case config.BackendRedis:
		return appredis.NewSnapshotStore(redisClient, appLogger, appCfg.App.ServiceName), nil
	default:
		return nil, fmt.Errorf("unknown cache.backend %q", appCfg.Cache.Backend)
	}
}

// CacheManagerProvider provides the metadata TTL cache.
func CacheManagerProvider(appLogger domain.Logger, cfgProvider config.Provider, store domain.SnapshotStore) *application.CacheManager {
	return application.NewCacheManager(appLogger, cfgProvider, store)
}

// AssetCacheProvider provides the face asset cache.
func AssetCacheProvider(appLogger domain.Logger, cfgProvider config.Provider, client *http.Client) *application.AssetCache {
	return application.NewAssetCache(appLogger, cfgProvider, client)
}

// OneBotClientProvider provides the chat platform client. Run is started by App.Run.
func OneBotClientProvider(appLogger domain.Logger, cfgProvider config.Provider) *onebot.Client {
	return onebot.NewClient(appLogger, cfgProvider)
}

// RendererProvider provides the HTML screenshot renderer.
func RendererProvider(appLogger domain.Logger, cfgProvider config.Provider, client *http.Client) (*render.HTMLRenderer, error) {
	return render.NewHTMLRenderer(appLogger, cfgProvider, client)
}

// MessageSnapperProvider provides the snapshot assembly service.
func MessageSnapperProvider(
	appLogger domain.Logger,
	cfgProvider config.Provider,
	cache *application.CacheManager,
	assets *application.AssetCache,
	chat domain.ChatClient,
	renderer domain.Renderer,
) *application.MessageSnapper {
	return application.NewMessageSnapper(appLogger, cfgProvider, cache, assets, chat, renderer)
}

// SnapshotResponderProvider provides the NATS request/reply surface.
func SnapshotResponderProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger, snapper *application.MessageSnapper) (*appnats.SnapshotResponder, func(), error) {
	return appnats.NewSnapshotResponder(ctx, cfgProvider, appLogger, snapper)
}

// HTTPHandlerProvider provides the snapshot API handlers.
func HTTPHandlerProvider(appLogger domain.Logger, snapper *application.MessageSnapper) *apphttp.Handler {
	return apphttp.NewHandler(appLogger, snapper)
}

// ProviderSet is the Wire provider set for the service.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,

	// HTTP
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,
	OutboundHTTPClientProvider,
	APIKeyMiddlewareProvider,
	HTTPHandlerProvider,

	// Infrastructure adapters
	RedisClientProvider,
	SnapshotStoreProvider,
	OneBotClientProvider,
	wire.Bind(new(domain.ChatClient), new(*onebot.Client)),
	RendererProvider,
	wire.Bind(new(domain.Renderer), new(*render.HTMLRenderer)),
	SnapshotResponderProvider,

	// Application services
	CacheManagerProvider,
	AssetCacheProvider,
	MessageSnapperProvider,
	NewApp,
)

// CacheToolSet builds just enough to load, inspect and rewrite the cache snapshot.
var CacheToolSet = wire.NewSet(
	StaticConfigProvider,
	LoggerProvider,
	RedisClientProvider,
	SnapshotStoreProvider,
	CacheManagerProvider,
	NewCacheTool,
)
