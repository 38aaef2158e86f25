package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/metrics"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
	"gitlab.com/timkado/api/message-snapper/pkg/contextkeys"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	errAssetStatus   = errors.New("asset source returned non-200 status")
	errAssetTooLarge = errors.New("asset exceeds size limit")
	errAssetEmpty    = errors.New("asset source returned an empty body")
)

// AssetCache maps sticker/emoji ids to image files under a local cache directory,
// downloading them on first use. A file at Path(id) is the cache hit signal; assets never expire.
//
// Concurrent requests for the same id share one download. Downloads across all ids are
// bounded by a FIFO permit pool.
type AssetCache struct {
	logger      domain.Logger
	client      *http.Client
	dir         string
	urlTemplate string
	timeout     time.Duration
	maxBytes    int64

	permits *semaphore.Weighted
	flights singleflight.Group
}

// NewAssetCache creates an AssetCache from the asset config section.
// A nil client falls back to http.DefaultClient.
func NewAssetCache(logger domain.Logger, configProvider config.Provider, client *http.Client) *AssetCache {
	cfg := configProvider.Get().Asset
	if client == nil {
		client = http.DefaultClient
	}
	return &AssetCache{
		logger:      logger,
		client:      client,
		dir:         cfg.CacheDir,
		urlTemplate: cfg.URLTemplate,
		timeout:     time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
		maxBytes:    cfg.MaxBytes,
		permits:     semaphore.NewWeighted(int64(cfg.MaxConcurrentDownloads)),
	}
}

// Path is the deterministic location of the cached file for id.
func (ac *AssetCache) Path(id int64) string {
	return filepath.Join(ac.dir, strconv.FormatInt(id, 10)+".png")
}

// URI returns a file:// URI for the cached asset, downloading it if needed.
// It reports false for negative ids, failed downloads and when ctx ends while waiting;
// the underlying error is only logged. A failed id is retried from scratch on the next call.
func (ac *AssetCache) URI(ctx context.Context, id int64) (string, bool) {
	if id < 0 {
		return "", false
	}
	ctx = context.WithValue(ctx, contextkeys.AssetIDKey, id)
	path := ac.Path(id)

	if fileExists(path) {
		metrics.ObserveAssetRequest(metrics.ResultCached)
		return fileURI(path), true
	}

	if err := os.MkdirAll(ac.dir, 0o755); err != nil {
		ac.logger.Error(ctx, "Failed to create asset cache directory", "dir", ac.dir, "error", err.Error())
		metrics.ObserveAssetRequest(metrics.ResultFailed)
		return "", false
	}

	// The download outlives any single waiter; it is bounded by its own timeout instead.
	dctx := context.WithoutCancel(ctx)
	ch := ac.flights.DoChan(strconv.FormatInt(id, 10), func() (any, error) {
		// A previous flight may have finished between our stat and joining the group.
		if fileExists(path) {
			return path, nil
		}
		if err := ac.download(dctx, id, path); err != nil {
			ac.logger.Warn(dctx, "Asset download failed", "error", err.Error())
			return nil, err
		}
		return path, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.ObserveAssetRequest(metrics.ResultFailed)
			return "", false
		}
		if res.Shared {
			metrics.ObserveAssetRequest(metrics.ResultJoined)
		} else {
			metrics.ObserveAssetRequest(metrics.ResultDownloaded)
		}
		return fileURI(res.Val.(string)), true
	case <-ctx.Done():
		return "", false
	}
}

func (ac *AssetCache) download(ctx context.Context, id int64, dest string) error {
	if err := ac.permits.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire download permit: %w", err)
	}
	defer ac.permits.Release(1)
	metrics.IncrementDownloadsInFlight()
	defer metrics.DecrementDownloadsInFlight()

	reqCtx, cancel := context.WithTimeout(ctx, ac.timeout)
	defer cancel()

	src := strings.ReplaceAll(ac.urlTemplate, "{id}", strconv.FormatInt(id, 10))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", src, err)
	}
	resp, err := ac.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: %d", errAssetStatus, src, resp.StatusCode)
	}

	return writeFileAtomic(dest, fmt.Sprintf("%d-*.tmp", id), io.LimitReader(resp.Body, ac.maxBytes+1), ac.maxBytes)
}

// writeFileAtomic streams r into a temporary sibling of dest and renames it into place.
// The temporary file is removed on every failure path.
func writeFileAtomic(dest, pattern string, r io.Reader, maxBytes int64) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if n == 0 {
		return errAssetEmpty
	}
	if maxBytes > 0 && n > maxBytes {
		return fmt.Errorf("%w: more than %d bytes", errAssetTooLarge, maxBytes)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
