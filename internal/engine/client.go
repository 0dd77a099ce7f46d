package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/magpie/internal/fingerprint"
	"github.com/FranksOps/magpie/pkg/httpclient"
	"github.com/FranksOps/magpie/pkg/proxy"
	"github.com/FranksOps/magpie/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// maxBodySize caps how much of a provider response is read. Result pages
// fit comfortably; anything bigger is not a result page.
const maxBodySize = 4 << 20

// ClientConfig configures the HTTP side of an engine.
type ClientConfig struct {
	Timeout     time.Duration
	UAPool      *useragent.Pool
	ProxyPool   *proxy.Pool
	Fingerprint fingerprint.Profile
	Detectors   []Detector
}

// client is the shared HTTP kit behind both engines: one persistent
// httpclient with a fingerprinted transport, a randomized User-Agent per
// request, and optional proxy rotation.
type client struct {
	cfg    ClientConfig
	client *httpclient.Client
}

func newClient(cfg ClientConfig) (*client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = DefaultDetectors()
	}

	// One transport per engine keeps connection pooling; per-request
	// proxy rotation goes through the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setting up transport: %w", err)
	}

	hc, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}

	return &client{cfg: cfg, client: hc}, nil
}

// get fetches targetURL with a fresh random User-Agent and returns the
// response after running it through the denial detectors. A denial comes
// back as an ErrRateLimited-wrapped error, transport failures as plain
// wrapped errors.
func (c *client) get(ctx context.Context, targetURL string, extraHeaders map[string]string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("creating request: %w", err)
	}

	var activeProxy *url.URL
	if c.cfg.ProxyPool != nil {
		if activeProxy = c.cfg.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	// A fresh identity per call is what keeps long runs under the radar
	req.Header.Set("User-Agent", c.cfg.UAPool.Random())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = c.cfg.ProxyPool.MarkFailure(activeProxy)
		}
		return 0, nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = c.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, resp.Header, nil, fmt.Errorf("reading body: %w", err)
	}

	if err := classifyDenial(resp.StatusCode, resp.Header, body, c.cfg.Detectors); err != nil {
		return resp.StatusCode, resp.Header, body, err
	}

	return resp.StatusCode, resp.Header, body, nil
}
