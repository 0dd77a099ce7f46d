// Package publish pushes downloaded images to a WordPress media
// library and assigns them as WooCommerce product featured images. It
// is a post-download step, never part of search escalation.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/FranksOps/magpie/internal/status"
)

// Config carries WordPress REST credentials. Application Passwords
// auth, same environment variables the .env file provides.
type Config struct {
	BaseURL     string
	User        string
	AppPassword string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// FromEnv reads credentials from WP_URL, WP_USER and WP_APP_PASSWORD.
// Call godotenv.Load first if a .env file should be honored.
func FromEnv() Config {
	return Config{
		BaseURL:     os.Getenv("WP_URL"),
		User:        os.Getenv("WP_USER"),
		AppPassword: os.Getenv("WP_APP_PASSWORD"),
	}
}

// Configured reports whether all required credentials are present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.User != "" && c.AppPassword != ""
}

// EmitFunc delivers intermediate status events to the caller's stream.
type EmitFunc func(status.Event) error

// Client talks to one WordPress site.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *retryablehttp.Client
	logger *slog.Logger
}

// New creates a Client. The remote is flaky-but-idempotent territory,
// so unlike the search engines this client retries.
func New(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("wordpress credentials not configured")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = nil

	return &Client{cfg: cfg, base: base, http: rc, logger: logger}, nil
}

// Publish runs the whole post-download sequence for one item: duplicate
// check, media upload, product lookup, featured-image assignment. The
// returned status is the item's final terminal status: Assigned,
// Uploaded (media in place but no product to assign), or Failed. An
// error return means cancellation, not a publish failure.
func (c *Client) Publish(ctx context.Context, sku, name, filePath string, emit EmitFunc) (status.Status, error) {
	ev := func(st status.Status, msg string) error {
		return emit(status.Event{SKU: sku, Name: name, Status: st, Message: msg})
	}

	if err := ev(status.CheckingRemote, "Checking media library for duplicates"); err != nil {
		return "", err
	}

	mediaID, err := c.CheckDuplicate(ctx, sku, filepath.Base(filePath))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// Tolerated: worst case we upload a duplicate
		c.logger.Warn("duplicate check failed", "sku", sku, "err", err)
	}

	if mediaID == 0 {
		if err := ev(status.Uploading, "Uploading to media library"); err != nil {
			return "", err
		}
		mediaID, err = c.UploadMedia(ctx, filePath, name)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Error("media upload failed", "sku", sku, "err", err)
			return status.Failed, nil
		}
		if err := c.UpdateMetadata(ctx, mediaID, name); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Media is live, metadata is cosmetic
			c.logger.Warn("metadata update failed", "media_id", mediaID, "err", err)
		}
	} else {
		c.logger.Info("media already in library, reusing", "sku", sku, "media_id", mediaID)
	}

	postID, err := c.FindProduct(ctx, sku, name)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("product lookup failed", "sku", sku, "err", err)
	}
	if postID == 0 {
		return status.Uploaded, nil
	}

	if err := ev(status.Assigning, fmt.Sprintf("Assigning featured image to product %d", postID)); err != nil {
		return "", err
	}
	if err := c.SetFeaturedImage(ctx, postID, mediaID); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("featured image assignment failed", "post_id", postID, "err", err)
		return status.Uploaded, nil
	}

	return status.Assigned, nil
}

// CheckDuplicate searches the media library for an item matching the
// SKU or the filename. It returns the media ID, or 0 when none matches.
func (c *Client) CheckDuplicate(ctx context.Context, sku, filename string) (int64, error) {
	terms := []string{sku}
	if base := strings.TrimSuffix(filename, filepath.Ext(filename)); base != "" && base != sku {
		terms = append(terms, base)
	}

	for _, term := range terms {
		body, err := c.get(ctx, "/wp-json/wp/v2/media", url.Values{
			"search":   {term},
			"per_page": {"10"},
		})
		if err != nil {
			return 0, err
		}

		var found int64
		gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
			title := item.Get("title.rendered").String()
			alt := item.Get("alt_text").String()
			src := item.Get("source_url").String()
			needle := strings.ToLower(sku)
			if strings.Contains(strings.ToLower(title), needle) ||
				strings.Contains(strings.ToLower(alt), needle) ||
				strings.Contains(strings.ToLower(src), needle) {
				found = item.Get("id").Int()
				return false
			}
			return true
		})
		if found != 0 {
			return found, nil
		}
	}
	return 0, nil
}

// UploadMedia posts the file to the media library and returns the new
// media ID.
func (c *Client) UploadMedia(ctx context.Context, filePath, title string) (int64, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("reading image file: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.endpoint("/wp-json/wp/v2/media", nil), data)
	if err != nil {
		return 0, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(filePath)))
	req.Header.Set("Content-Type", "image/jpeg")
	req.SetBasicAuth(c.cfg.User, c.cfg.AppPassword)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("uploading media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading upload response: %w", err)
	}
	if resp.StatusCode != 201 {
		return 0, fmt.Errorf("upload rejected: status %d", resp.StatusCode)
	}

	id := gjson.GetBytes(body, "id").Int()
	if id == 0 {
		return 0, fmt.Errorf("upload response missing media id")
	}
	return id, nil
}

// UpdateMetadata sets title, alt text, caption and description on an
// uploaded media item.
func (c *Client) UpdateMetadata(ctx context.Context, mediaID int64, title string) error {
	payload := map[string]string{
		"title":       title,
		"alt_text":    title,
		"caption":     title,
		"description": fmt.Sprintf("Product image for %s", title),
	}
	return c.postJSON(ctx, fmt.Sprintf("/wp-json/wp/v2/media/%d", mediaID), "POST", payload)
}

// FindProduct locates the WooCommerce product for a SKU, falling back
// to a name search. Returns 0 when no product matches.
func (c *Client) FindProduct(ctx context.Context, sku, name string) (int64, error) {
	body, err := c.get(ctx, "/wp-json/wc/v3/products", url.Values{"sku": {sku}})
	if err == nil {
		if id := gjson.GetBytes(body, "0.id").Int(); id != 0 {
			return id, nil
		}
	} else if ctx.Err() != nil {
		return 0, err
	}

	if name == "" {
		return 0, err
	}
	body, nerr := c.get(ctx, "/wp-json/wc/v3/products", url.Values{"search": {name}})
	if nerr != nil {
		return 0, nerr
	}
	return gjson.GetBytes(body, "0.id").Int(), nil
}

// SetFeaturedImage PUTs the media item as the product's first image.
func (c *Client) SetFeaturedImage(ctx context.Context, postID, mediaID int64) error {
	payload := map[string]any{
		"images": []map[string]any{{"id": mediaID, "position": 0}},
	}
	return c.postJSON(ctx, fmt.Sprintf("/wp-json/wc/v3/products/%d", postID), "PUT", payload)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.AppPassword)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, path, method string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint(path, nil), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.User, c.cfg.AppPassword)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != 200 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return nil
}
