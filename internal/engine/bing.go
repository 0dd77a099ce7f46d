package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// ensure Bing implements Engine
var _ Engine = (*Bing)(nil)

// Bing is the fallback image search engine. It scrapes the image results
// page: each result anchor carries its metadata as JSON in the "m"
// attribute.
type Bing struct {
	base string
	c    *client
}

// NewBing creates a Bing engine. baseURL overrides the provider
// endpoint, mainly for tests; empty means the real site.
func NewBing(baseURL string, cfg ClientConfig) (*Bing, error) {
	if baseURL == "" {
		baseURL = "https://www.bing.com"
	}
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Bing{base: baseURL, c: c}, nil
}

func (b *Bing) Name() string { return "bing" }

// Search issues an image query and returns up to MaxResults candidates
// in page order.
func (b *Bing) Search(ctx context.Context, query string) ([]Candidate, error) {
	searchURL := fmt.Sprintf("%s/images/search?q=%s&form=HDRSC2&first=1",
		b.base, url.QueryEscape(query))

	_, _, body, err := b.c.get(ctx, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bing search: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bing parse: %w", err)
	}

	var candidates []Candidate
	doc.Find("a.iusc").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m, ok := s.Attr("m")
		if !ok {
			return true
		}

		meta := gjson.Parse(m)
		title := meta.Get("t").String()
		if title == "" {
			title = meta.Get("desc").String()
		}

		c := Candidate{
			URL:    meta.Get("murl").String(),
			Title:  title,
			Source: b.Name(),
		}
		if c.URL != "" && c.Title != "" {
			candidates = append(candidates, c)
		}
		return len(candidates) < MaxResults
	})

	return candidates, nil
}
