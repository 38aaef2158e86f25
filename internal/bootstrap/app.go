package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/timkado/api/message-snapper/pkg/safego"
)

// Run loads the cache, starts the background loops and serves HTTP until a shutdown
// signal arrives or ctx is cancelled. The cache is saved once everything has stopped.
func (a *App) Run(ctx context.Context) error {
	appCfg := a.configProvider.Get().App
	version := appCfg.Version
	if version == "" {
		version = "unknown"
	}
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.ServiceName, "version", version)

	a.snapper.LoadCache(ctx)

	a.httpServeMux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.HandleFunc("GET /ready", a.ready)
	a.httpServeMux.Handle("GET /metrics", promhttp.Handler())
	a.handler.Register(a.httpServeMux, a.apiKeyAuth)
	a.logger.Info(ctx, "HTTP routes registered")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loops := safego.NewGroup(a.logger)

	loops.Go(runCtx, "OneBotClient", func() { a.chatClient.Run(runCtx) })
	loops.Go(runCtx, "CacheCheckpointLoop", func() { a.checkpointLoop(runCtx) })

	if err := a.responder.Start(runCtx); err != nil {
		a.logger.Error(ctx, "Failed to start NATS snapshot responder", "error", err.Error())
	}

	// Closed once Shutdown has returned, i.e. every HTTP handler has finished.
	shutdownDone := make(chan struct{})
	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		defer close(shutdownDone)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if s := a.configProvider.Get().App.ShutdownTimeoutSeconds; s > 0 {
			shutdownTimeout = time.Duration(s) * time.Second
		}
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	serveErr := a.httpServer.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		// ListenAndServe returns as soon as Shutdown starts; handlers may still be writing to the cache.
		<-shutdownDone
		serveErr = nil
	}

	// In-flight NATS requests may still add cache entries, so drain before saving.
	a.responder.Close()
	cancel()
	loops.Wait()
	a.snapper.SaveCache(context.Background())

	if serveErr != nil {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", serveErr.Error())
		return fmt.Errorf("failed to start HTTP server: %w", serveErr)
	}
	a.logger.Info(ctx, "Application shut down gracefully.")
	return nil
}

// checkpointLoop saves the cache every cache.checkpoint_interval_seconds. The interval is
// re-read after each tick so a reload takes effect; zero disables checkpoints.
func (a *App) checkpointLoop(ctx context.Context) {
	for {
		interval := time.Duration(a.configProvider.Get().Cache.CheckpointIntervalSeconds) * time.Second
		wait := interval
		if wait <= 0 {
			wait = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if interval > 0 {
			a.snapper.SaveCache(ctx)
			a.logger.Debug(ctx, "Cache checkpoint written")
		}
	}
}

func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := true
	dependencies := make(map[string]string)

	switch {
	case a.configProvider.Get().OneBot.WSURL == "":
		dependencies["onebot"] = "not_configured"
	case a.chatClient.Connected():
		dependencies["onebot"] = "connected"
	default:
		dependencies["onebot"] = "disconnected"
		ready = false
		a.logger.Warn(r.Context(), "Readiness check failed: OneBot disconnected")
	}

	if a.redisClient != nil {
		if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
			dependencies["redis"] = "connected"
		} else {
			dependencies["redis"] = "disconnected"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
		}
	} else {
		dependencies["redis"] = "not_configured"
	}

	dependencies["nats"] = a.responder.Status()
	if dependencies["nats"] == "disconnected" {
		ready = false
	}

	response := struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}{Dependencies: dependencies}

	if ready {
		response.Status = "READY"
		w.WriteHeader(http.StatusOK)
	} else {
		response.Status = "NOT_READY"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err)
	}
}
