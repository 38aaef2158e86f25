package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/domain"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // screenshot endpoints may answer in webp
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrNotConfigured is returned when no screenshot endpoint is set.
var ErrNotConfigured = errors.New("render: screenshot_url not configured")

const maxScreenshotBytes = 32 << 20

// HTMLRenderer executes an embedded html/template and turns the page into an image by
// posting it to a headless Chromium screenshot endpoint (Gotenberg's
// /forms/chromium/screenshot/html route or anything accepting the same multipart form).
type HTMLRenderer struct {
	logger         domain.Logger
	configProvider config.Provider
	client         *http.Client
	templates      *template.Template
}

// NewHTMLRenderer parses the embedded templates. A nil client falls back to http.DefaultClient.
func NewHTMLRenderer(logger domain.Logger, configProvider config.Provider, client *http.Client) (*HTMLRenderer, error) {
	if client == nil {
		client = http.DefaultClient
	}
	r := &HTMLRenderer{
		logger:         logger.With("component", "renderer"),
		configProvider: configProvider,
		client:         client,
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"safeCSS":  func(s string) template.CSS { return template.CSS(s) },
		"assetSrc": r.assetSrc,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse snapshot templates: %w", err)
	}
	r.templates = tmpl
	return r, nil
}

// Render implements domain.Renderer.
func (r *HTMLRenderer) Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error) {
	cfg := r.configProvider.Get().Render
	if cfg.ScreenshotURL == "" {
		return nil, ErrNotConfigured
	}

	page, err := r.HTML(templateName, data)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	img, err := r.screenshot(ctx, cfg, page)
	if err != nil {
		return nil, err
	}
	r.logger.Debug(ctx, "Screenshot received", "template", templateName, "html_bytes", len(page), "image_bytes", len(img))
	return downscale(img, cfg.MaxWidth)
}

// HTML executes the named template. The page width is injected as "width".
func (r *HTMLRenderer) HTML(templateName string, data map[string]any) ([]byte, error) {
	tmpl := r.templates.Lookup(templateName)
	if tmpl == nil {
		return nil, fmt.Errorf("render: unknown template %q", templateName)
	}
	withWidth := make(map[string]any, len(data)+1)
	for k, v := range data {
		withWidth[k] = v
	}
	withWidth["width"] = r.configProvider.Get().Render.Width

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, withWidth); err != nil {
		return nil, fmt.Errorf("execute template %q: %w", templateName, err)
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) screenshot(ctx context.Context, cfg config.RenderConfig, page []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(page); err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"width":            strconv.Itoa(cfg.Width),
		"format":           "png",
		"optimizeForSpeed": "true",
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ScreenshotURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build screenshot request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screenshot request: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screenshot endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(truncate(out, 200))))
	}
	return out, nil
}

// downscale shrinks images wider than maxWidth, keeping the aspect ratio.
// Images already within bounds are returned untouched.
func downscale(raw []byte, maxWidth int) ([]byte, error) {
	if maxWidth <= 0 {
		return raw, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot header: %w", err)
	}
	if cfg.Width <= maxWidth {
		return raw, nil
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

// assetSrc turns cached assets into data URIs so the remote browser can show them.
// Only files under asset.cache_dir are read; any other file URL renders as an empty source.
// Other sources pass through html/template's URL filtering.
func (r *HTMLRenderer) assetSrc(src string) any {
	u, err := url.Parse(src)
	if err != nil || u.Scheme != "file" {
		return src
	}
	path, ok := insideDir(r.configProvider.Get().Asset.CacheDir, u)
	if !ok {
		r.logger.Warn(context.Background(), "Refusing to inline file outside the asset cache", "src", truncate([]byte(src), 200))
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return template.URL("data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// insideDir resolves a file URL and reports whether it names a regular file below dir.
// Symlinks are resolved on both sides before comparing.
func insideDir(dir string, u *url.URL) (string, bool) {
	if dir == "" || (u.Host != "" && u.Host != "localhost") {
		return "", false
	}
	root, err := realPath(dir)
	if err != nil {
		return "", false
	}
	target, err := realPath(filepath.FromSlash(u.Path))
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", false
	}
	if fi, err := os.Stat(target); err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return target, true
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
