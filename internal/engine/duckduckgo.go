package engine

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/tidwall/gjson"
)

// ensure DuckDuckGo implements Engine
var _ Engine = (*DuckDuckGo)(nil)

// DuckDuckGo is the primary image search engine. A search is two
// requests: the HTML results page yields a vqd request token, then the
// i.js endpoint returns the image results as JSON.
type DuckDuckGo struct {
	base string
	c    *client
}

var vqdPattern = regexp.MustCompile(`vqd=["']?([\d-]+)`)

// NewDuckDuckGo creates a DuckDuckGo engine. baseURL overrides the
// provider endpoint, mainly for tests; empty means the real site.
func NewDuckDuckGo(baseURL string, cfg ClientConfig) (*DuckDuckGo, error) {
	if baseURL == "" {
		baseURL = "https://duckduckgo.com"
	}
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &DuckDuckGo{base: baseURL, c: c}, nil
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search issues an image query and returns up to MaxResults candidates
// in provider order.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Candidate, error) {
	vqd, err := d.token(ctx, query)
	if err != nil {
		return nil, err
	}

	resultsURL := fmt.Sprintf("%s/i.js?l=us-en&o=json&q=%s&vqd=%s&f=,,,&p=1",
		d.base, url.QueryEscape(query), url.QueryEscape(vqd))

	_, _, body, err := d.c.get(ctx, resultsURL, map[string]string{
		"Referer": d.base + "/",
		"Accept":  "application/json, text/javascript, */*; q=0.01",
	})
	if err != nil {
		return nil, fmt.Errorf("duckduckgo results: %w", err)
	}

	var candidates []Candidate
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		c := Candidate{
			URL:    r.Get("image").String(),
			Title:  r.Get("title").String(),
			Source: d.Name(),
		}
		if c.URL != "" && c.Title != "" {
			candidates = append(candidates, c)
		}
		return len(candidates) < MaxResults
	})

	return candidates, nil
}

// token fetches the results page and extracts the vqd token the JSON
// endpoint requires.
func (d *DuckDuckGo) token(ctx context.Context, query string) (string, error) {
	tokenURL := fmt.Sprintf("%s/?q=%s&iax=images&ia=images", d.base, url.QueryEscape(query))

	_, _, body, err := d.c.get(ctx, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("duckduckgo token page: %w", err)
	}

	m := vqdPattern.FindSubmatch(body)
	if m == nil {
		// No token on what should be a results page usually means a
		// block page our detectors don't know yet
		return "", fmt.Errorf("no vqd token in response: %w", ErrRateLimited)
	}
	return string(m[1]), nil
}
