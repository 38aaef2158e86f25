package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "SNAPPER"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig guards the admin endpoints.
type AuthConfig struct {
	SecretToken string `mapstructure:"secret_token"` // Should primarily come from ENV
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	Timezone               string `mapstructure:"timezone"` // IANA name used to format message times, "Local" if empty
}

// CacheConfig configures the metadata TTL cache and its persisted snapshot.
type CacheConfig struct {
	GroupTTLSeconds           int    `mapstructure:"group_ttl_seconds"`
	MemberTTLSeconds          int    `mapstructure:"member_ttl_seconds"`
	Backend                   string `mapstructure:"backend"` // "file" or "redis"
	SnapshotPath              string `mapstructure:"snapshot_path"`
	CheckpointIntervalSeconds int    `mapstructure:"checkpoint_interval_seconds"` // 0 disables periodic saves
}

// AssetConfig configures the sticker/emoji fetch-and-cache engine.
type AssetConfig struct {
	CacheDir               string `mapstructure:"cache_dir"`
	URLTemplate            string `mapstructure:"url_template"` // "{id}" is replaced with the asset id
	MaxConcurrentDownloads int    `mapstructure:"max_concurrent_downloads"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	MaxBytes               int64  `mapstructure:"max_bytes"`
}

// RenderConfig configures the snapshot template and the HTML-to-image endpoint.
type RenderConfig struct {
	Template          string `mapstructure:"template"`
	FontFamily        string `mapstructure:"font_family"`
	AvatarURLTemplate string `mapstructure:"avatar_url_template"` // "{user_id}" is replaced with the sender id
	ScreenshotURL     string `mapstructure:"screenshot_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	Width             int    `mapstructure:"width"`
	MaxWidth          int    `mapstructure:"max_width"` // wider renders are downscaled, 0 keeps the original
	ResolveFaceAssets bool   `mapstructure:"resolve_face_assets"`
}

// OneBotConfig configures the OneBot v11 websocket API client.
type OneBotConfig struct {
	WSURL                    string `mapstructure:"ws_url"`
	AccessToken              string `mapstructure:"access_token"` // Should primarily come from ENV
	APITimeoutSeconds        int    `mapstructure:"api_timeout_seconds"`
	ReconnectIntervalSeconds int    `mapstructure:"reconnect_interval_seconds"`
}

// NATSConfig holds NATS-related configurations.
type NATSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url"`
	SnapshotSubject string `mapstructure:"snapshot_subject"`
	QueueGroup      string `mapstructure:"queue_group"`
}

// RedisConfig holds Redis-related configurations.
// Only used when cache.backend is "redis".
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Auth   AuthConfig   `mapstructure:"auth"`
	App    AppConfig    `mapstructure:"app"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Asset  AssetConfig  `mapstructure:"asset"`
	Render RenderConfig `mapstructure:"render"`
	OneBot OneBotConfig `mapstructure:"onebot"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

const (
	BackendFile  = "file"
	BackendRedis = "redis"

	DefaultFontFamily = `-apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, "PingFang SC", "Hiragino Sans GB", "Microsoft YaHei", sans-serif`
	DefaultAvatarURL  = "https://q1.qlogo.cn/g?b=qq&nk={user_id}&s=640"
	DefaultAssetURL   = "https://koishi.js.org/QFace/static/s{id}.png"
)

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.App.ServiceName == "" {
		c.App.ServiceName = "message-snapper"
	}
	if c.App.ShutdownTimeoutSeconds <= 0 {
		c.App.ShutdownTimeoutSeconds = 30
	}
	if c.Cache.GroupTTLSeconds <= 0 {
		c.Cache.GroupTTLSeconds = 72 * 3600
	}
	if c.Cache.MemberTTLSeconds <= 0 {
		c.Cache.MemberTTLSeconds = 72 * 3600
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.SnapshotPath == "" {
		c.Cache.SnapshotPath = "data/cache/cache.json"
	}
	if c.Asset.CacheDir == "" {
		c.Asset.CacheDir = "data/cache/faces"
	}
	if c.Asset.URLTemplate == "" {
		c.Asset.URLTemplate = DefaultAssetURL
	}
	if c.Asset.MaxConcurrentDownloads <= 0 {
		c.Asset.MaxConcurrentDownloads = 8
	}
	if c.Asset.DownloadTimeoutSeconds <= 0 {
		c.Asset.DownloadTimeoutSeconds = 10
	}
	if c.Asset.MaxBytes <= 0 {
		c.Asset.MaxBytes = 5 << 20
	}
	if c.Render.Template == "" {
		c.Render.Template = "default.html"
	}
	if c.Render.FontFamily == "" {
		c.Render.FontFamily = DefaultFontFamily
	}
	if c.Render.AvatarURLTemplate == "" {
		c.Render.AvatarURLTemplate = DefaultAvatarURL
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = 30
	}
	if c.Render.Width <= 0 {
		c.Render.Width = 520
	}
	if c.OneBot.APITimeoutSeconds <= 0 {
		c.OneBot.APITimeoutSeconds = 8
	}
	if c.OneBot.ReconnectIntervalSeconds <= 0 {
		c.OneBot.ReconnectIntervalSeconds = 5
	}
	if c.NATS.SnapshotSubject == "" {
		c.NATS.SnapshotSubject = "snapper.snapshot.generate"
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "snapper"
	}
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// StaticProvider serves a fixed configuration. Used by the CLI subcommands and tests.
type StaticProvider struct {
	Config *Config
}

// NewStaticProvider applies defaults to cfg and wraps it.
func NewStaticProvider(cfg *Config) *StaticProvider {
	cfg.ApplyDefaults()
	return &StaticProvider{Config: cfg}
}

// Get returns the wrapped configuration.
func (s *StaticProvider) Get() *Config {
	return s.Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := newViper()

	// Attempt to read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, err
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		defer signal.Stop(sigChan)
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "sighup")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.String("event_op", e.Op.String()),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg, err := unmarshal(v)
	if err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

// LoadOnce reads the configuration once without installing any reload hooks.
// The CLI maintenance subcommands use it.
func LoadOnce() (*Config, error) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g. cache.group_ttl_seconds becomes SNAPPER_CACHE_GROUP_TTL_SECONDS

	// AutomaticEnv only affects keys viper already knows about, so every leaf is registered.
	for _, key := range []string{
		"server.http_port", "log.level", "auth.secret_token",
		"app.service_name", "app.version", "app.shutdown_timeout_seconds", "app.write_timeout_seconds", "app.timezone",
		"cache.group_ttl_seconds", "cache.member_ttl_seconds", "cache.backend", "cache.snapshot_path", "cache.checkpoint_interval_seconds",
		"asset.cache_dir", "asset.url_template", "asset.max_concurrent_downloads", "asset.download_timeout_seconds", "asset.max_bytes",
		"render.template", "render.font_family", "render.avatar_url_template", "render.screenshot_url", "render.timeout_seconds",
		"render.width", "render.max_width", "render.resolve_face_assets",
		"onebot.ws_url", "onebot.access_token", "onebot.api_timeout_seconds", "onebot.reconnect_interval_seconds",
		"nats.enabled", "nats.url", "nats.snapshot_subject", "nats.queue_group",
		"redis.address", "redis.password", "redis.db",
	} {
		v.SetDefault(key, nil)
	}
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Helper function to get Viper env vars correctly for bootstrap if needed
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
