package rss

import (
	"context"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"rabbitrss/internal/model"
)

const feedAcceptHeader = "application/atom+xml, application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

// acceptTransport adds a feed-friendly Accept header; some hosts answer
// requests without one with an HTML page instead of the feed.
type acceptTransport struct {
	base http.RoundTripper
}

func (t acceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", feedAcceptHeader)
	}
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", "RabbitRSS/1.0")
	}
	return base.RoundTrip(clone)
}

// DirectFetcher parses a feed straight from its source, bypassing the
// conversion API. It normalizes into the same Feed shape the conversion path
// produces.
type DirectFetcher struct {
	parser *gofeed.Parser
}

// NewDirectFetcher creates a direct fetcher with the given per-fetch timeout.
func NewDirectFetcher(timeout time.Duration) *DirectFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout:   timeout,
		Transport: acceptTransport{base: http.DefaultTransport},
	}
	return &DirectFetcher{parser: fp}
}

// Fetch retrieves and normalizes the feed at feedURL. Like the conversion
// path, every call generates fresh feed and item ids.
func (d *DirectFetcher) Fetch(ctx context.Context, feedURL string) (model.Feed, error) {
	parsed, err := d.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return model.Feed{}, &FetchError{URL: feedURL, Err: err}
	}

	feed := model.Feed{
		ID:    model.NewID(),
		Title: parsed.Title,
		URL:   feedURL,
		Items: make([]model.FeedItem, len(parsed.Items)),
	}
	if parsed.Image != nil {
		feed.Image = parsed.Image.URL
	}
	for i, item := range parsed.Items {
		description := item.Description
		if description == "" {
			description = item.Content
		}
		pubDate := item.Published
		if pubDate == "" {
			pubDate = item.Updated
		}
		thumbnail := ""
		if item.Image != nil {
			thumbnail = item.Image.URL
		}
		feed.Items[i] = model.FeedItem{
			ID:          model.NewID(),
			Title:       item.Title,
			Description: description,
			Link:        item.Link,
			PubDate:     pubDate,
			Thumbnail:   thumbnail,
			IsRead:      false,
		}
	}
	return feed, nil
}
