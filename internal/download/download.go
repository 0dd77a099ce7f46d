// Package download fetches accepted candidate images and persists them
// to the output directory as JPEG files.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/FranksOps/magpie/internal/metrics"
	"github.com/FranksOps/magpie/pkg/httpclient"
	"github.com/FranksOps/magpie/pkg/useragent"
)

// ErrInvalidContent indicates the fetched bytes are not a usable image:
// empty body, non-image content type, or data no decoder accepts. The
// orchestrator treats it as candidate rejection and moves on.
var ErrInvalidContent = errors.New("invalid image content")

// maxImageSize caps a single download. Catalog product shots are far
// smaller; anything larger is not worth storing.
const maxImageSize = 20 << 20

// Config configures a Downloader.
type Config struct {
	// OutputDir is where images are written. Created if missing.
	OutputDir string
	Timeout   time.Duration
	UAPool    *useragent.Pool
}

// Downloader fetches image bytes and writes them to disk.
type Downloader struct {
	cfg    Config
	client *httpclient.Client
}

// New creates a Downloader and ensures the output directory exists.
func New(cfg Config) (*Downloader, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "product_images"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return &Downloader{cfg: cfg, client: client}, nil
}

// Fetch downloads imageURL and saves it under a filename derived from
// the product name, suffixed with the SKU on collision. It returns the
// filename relative to the output directory.
//
// Network failures come back as plain wrapped errors; unusable payloads
// as ErrInvalidContent. Both leave nothing on disk.
func (d *Downloader) Fetch(ctx context.Context, imageURL, name, sku string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UAPool.Random())

	resp, err := d.client.Do(req.Context(), req)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); !acceptableContentType(ct) {
		return "", fmt.Errorf("content type %q: %w", ct, ErrInvalidContent)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return "", fmt.Errorf("reading image body: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty body: %w", ErrInvalidContent)
	}
	metrics.DownloadBytesTotal.Add(float64(len(data)))

	// Decode proves the bytes are an actual image before anything is
	// written, and tells us whether re-encoding is needed.
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("undecodable image: %w", ErrInvalidContent)
	}

	filename := Filename(name) + ".jpg"
	path := filepath.Join(d.cfg.OutputDir, filename)
	if _, err := os.Stat(path); err == nil {
		filename = Filename(name) + "_" + Filename(sku) + ".jpg"
		path = filepath.Join(d.cfg.OutputDir, filename)
	}

	if format == "jpeg" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("writing image: %w", err)
		}
		return filename, nil
	}

	// Non-JPEG sources are normalized so the output directory holds one
	// format regardless of what the engines served
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding %s image: %w", format, ErrInvalidContent)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	return filename, nil
}

// Path returns the on-disk location of a filename Fetch returned.
func (d *Downloader) Path(filename string) string {
	return filepath.Join(d.cfg.OutputDir, filename)
}

var nonWord = regexp.MustCompile(`[^\w\s-]`)

// Filename strips characters unsafe in filenames and replaces spaces
// with underscores.
func Filename(text string) string {
	cleaned := nonWord.ReplaceAllString(text, "")
	return strings.ReplaceAll(strings.TrimSpace(cleaned), " ", "_")
}

func acceptableContentType(ct string) bool {
	if ct == "" {
		// Plenty of CDNs omit it; the decode check below still guards
		return true
	}
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	return strings.HasPrefix(ct, "image/") || ct == "application/octet-stream"
}
