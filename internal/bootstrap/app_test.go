package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.com/timkado/api/message-snapper/benchmarks/mocks"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/application"
	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestApp_RunSavesCacheAfterInFlightRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := freePort(t)
	cfg := mocks.NewMockConfigProvider(t.TempDir())
	cfg.Update(func(c *config.Config) {
		c.Server.HTTPPort = port
		c.App.ShutdownTimeoutSeconds = 5
	})
	logger := mocks.NewMockLogger()
	store := mocks.NewMemorySnapshotStore(nil)
	cache := application.NewCacheManager(logger, cfg, store)
	snapper := MessageSnapperProvider(logger, cfg, cache, AssetCacheProvider(logger, cfg, nil), mocks.NewMockChatClient(), mocks.NewMockRenderer(nil))
	responder, cleanup, err := SnapshotResponderProvider(ctx, cfg, logger, snapper)
	require.NoError(t, err)
	defer cleanup()

	mux := HTTPServeMuxProvider()
	var handlerDone atomic.Bool
	started := make(chan struct{})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(500 * time.Millisecond)
		cache.SetGroup(777, domain.Record{"group_name": "late"})
		handlerDone.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})

	app := NewApp(cfg, logger, mux, HTTPGracefulServerProvider(cfg, logger, mux),
		APIKeyMiddlewareProvider(cfg, logger), HTTPHandlerProvider(logger, snapper),
		snapper, OneBotClientProvider(logger, cfg), responder, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/slow", port)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			conn.Close()
		}
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	reqDone := make(chan int, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			reqDone <- 0
			return
		}
		resp.Body.Close()
		reqDone <- resp.StatusCode
	}()

	<-started
	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.True(t, handlerDone.Load(), "Run returned before the in-flight handler finished")
	assert.Equal(t, http.StatusNoContent, <-reqDone)

	saved, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(saved), "777"), "final snapshot is missing the late group entry")
	assert.True(t, logger.HasMessage("INFO", "Application shut down gracefully."))
}
