// Package rss provides feed fetching, parsing and refresh reconciliation.
package rss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rabbitrss/internal/logger"
	"rabbitrss/internal/model"
	"rabbitrss/internal/storage"
)

const defaultFetchTimeout = 10 * time.Second

// ParserConfig controls how feeds are turned into Feed records.
type ParserConfig struct {
	// ConversionURL is the feed-to-JSON conversion endpoint. The feed URL is
	// passed as the rss_url query parameter.
	ConversionURL string
	// UseConversion selects the conversion API; when false every fetch goes
	// directly to the feed with the bundled parser.
	UseConversion bool
	// Timeout bounds a single fetch.
	Timeout time.Duration
}

// Parser converts a feed URL into a normalized Feed record, consulting the
// snapshot cache first. Every successful parse generates fresh feed and item
// ids, which is why refresh merging matches items by link rather than id.
type Parser struct {
	cfg    ParserConfig
	cache  *storage.Cache
	client *http.Client
	direct *DirectFetcher
}

// conversionResponse is the JSON shape of the conversion API.
type conversionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Feed    struct {
		Title string `json:"title"`
		Image string `json:"image"`
	} `json:"feed"`
	Items []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Link        string `json:"link"`
		PubDate     string `json:"pubDate"`
		Thumbnail   string `json:"thumbnail"`
	} `json:"items"`
}

// NewParser creates a parser over the given cache.
func NewParser(cfg ParserConfig, cache *storage.Cache) *Parser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	return &Parser{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: cfg.Timeout},
		direct: NewDirectFetcher(cfg.Timeout),
	}
}

// ParseFeed returns the Feed at feedURL. A cached snapshot younger than the
// cache TTL is returned without a network call; otherwise the feed is fetched,
// normalized, cached and returned.
func (p *Parser) ParseFeed(ctx context.Context, feedURL string) (model.Feed, error) {
	if cached, ok := p.cache.Get(feedURL); ok {
		return cached, nil
	}

	feed, err := p.fetch(ctx, feedURL)
	if err != nil {
		return model.Feed{}, err
	}
	if err := validate(feed); err != nil {
		return model.Feed{}, err
	}

	if err := p.cache.Set(feedURL, feed); err != nil {
		logger.Warnf("caching %s failed: %v", feedURL, err)
	}
	return feed, nil
}

func (p *Parser) fetch(ctx context.Context, feedURL string) (model.Feed, error) {
	if !p.cfg.UseConversion {
		return p.direct.Fetch(ctx, feedURL)
	}
	feed, err := p.fetchConversion(ctx, feedURL)
	if err != nil {
		// The conversion service being unreachable should not take the
		// reader down with it; fall back to parsing the feed ourselves.
		// Transport errors surface as *url.Error. An answer from the
		// service, even a failing one, is taken at face value.
		var ue *url.Error
		if errors.As(err, &ue) {
			logger.Warnf("conversion API unreachable for %s, parsing directly: %v", feedURL, err)
			return p.direct.Fetch(ctx, feedURL)
		}
		return model.Feed{}, err
	}
	return feed, nil
}

// fetchConversion asks the conversion API to turn the feed into JSON.
func (p *Parser) fetchConversion(ctx context.Context, feedURL string) (model.Feed, error) {
	reqURL := p.cfg.ConversionURL + "?rss_url=" + url.QueryEscape(feedURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Feed{}, &FetchError{URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", "RabbitRSS/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Feed{}, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Feed{}, &FetchError{URL: feedURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var data conversionResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return model.Feed{}, &ParseError{URL: feedURL, Message: fmt.Sprintf("malformed conversion response: %v", err)}
	}
	if data.Status != "ok" {
		return model.Feed{}, &ParseError{URL: feedURL, Message: data.Message}
	}

	feed := model.Feed{
		ID:    model.NewID(),
		Title: data.Feed.Title,
		URL:   feedURL,
		Image: data.Feed.Image,
		Items: make([]model.FeedItem, len(data.Items)),
	}
	for i, item := range data.Items {
		feed.Items[i] = model.FeedItem{
			ID:          model.NewID(),
			Title:       item.Title,
			Description: item.Description,
			Link:        item.Link,
			PubDate:     item.PubDate,
			Thumbnail:   item.Thumbnail,
			IsRead:      false,
		}
	}
	return feed, nil
}

// validate rejects feeds with nothing in them.
func validate(feed model.Feed) error {
	if feed.Title == "" && len(feed.Items) == 0 {
		return &ValidationError{URL: feed.URL, Reason: "feed has no title and no items"}
	}
	return nil
}

// FormatMediumURL normalizes a bare username or @username into the canonical
// Medium feed URL. Inputs already carrying a URL scheme pass through.
func FormatMediumURL(input string) string {
	if strings.HasPrefix(input, "@") || !strings.Contains(input, "://") {
		username := strings.TrimPrefix(input, "@")
		return "https://medium.com/feed/@" + username
	}
	return input
}
