package mocks

import (
	"sync"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
)

// MockConfigProvider implements config.Provider for tests and benchmarks
type MockConfigProvider struct {
	mu     sync.RWMutex
	config *config.Config
}

// NewMockConfigProvider creates a config with test-friendly settings rooted at dir.
// Downloads and renders point nowhere until a test sets them.
func NewMockConfigProvider(dir string) *MockConfigProvider {
	cfg := &config.Config{
		Log: config.LogConfig{
			Level: "error", // Minimize I/O overhead during benchmarks
		},
		App: config.AppConfig{
			ServiceName:            "message-snapper-test",
			Version:                "test",
			ShutdownTimeoutSeconds: 1,
			Timezone:               "UTC",
		},
		Cache: config.CacheConfig{
			GroupTTLSeconds:  7200,
			MemberTTLSeconds: 7200,
			Backend:          config.BackendFile,
			SnapshotPath:     dir + "/cache.json",
		},
		Asset: config.AssetConfig{
			CacheDir:               dir + "/faces",
			MaxConcurrentDownloads: 8,
			DownloadTimeoutSeconds: 2,
			MaxBytes:               1 << 20,
		},
		Auth: config.AuthConfig{
			SecretToken: "test-secret-token",
		},
	}
	cfg.ApplyDefaults()
	return &MockConfigProvider{config: cfg}
}

// Get implements config.Provider
func (m *MockConfigProvider) Get() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update applies fn to a copy of the current config and swaps it in.
func (m *MockConfigProvider) Update(fn func(cfg *config.Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *m.config
	fn(&next)
	m.config = &next
}
