package rss

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/storage"
)

// fakeConversion serves canned conversion-API answers keyed by the rss_url
// query parameter and counts requests.
type fakeConversion struct {
	responses map[string]conversionResponse
	requests  int
}

func (f *fakeConversion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests++
	feedURL := r.URL.Query().Get("rss_url")
	resp, ok := f.responses[feedURL]
	if !ok {
		resp = conversionResponse{Status: "error", Message: "unknown feed"}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func okResponse(title string, links ...string) conversionResponse {
	var resp conversionResponse
	resp.Status = "ok"
	resp.Feed.Title = title
	for _, link := range links {
		resp.Items = append(resp.Items, struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Link        string `json:"link"`
			PubDate     string `json:"pubDate"`
			Thumbnail   string `json:"thumbnail"`
		}{
			Title:       "item " + link,
			Description: "<p>about " + link + "</p>",
			Link:        link,
			PubDate:     "2026-08-30 10:00:00",
		})
	}
	return resp
}

func newTestParser(t *testing.T, conversionURL string) *Parser {
	t.Helper()
	cache := storage.NewCache(kv.NewMemory(), 0)
	return NewParser(ParserConfig{
		ConversionURL: conversionURL,
		UseConversion: true,
	}, cache)
}

func TestParseFeedMapsConversionResponse(t *testing.T) {
	fake := &fakeConversion{responses: map[string]conversionResponse{
		"https://a.com/rss": okResponse("Example Blog", "https://a.com/1", "https://a.com/2"),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	feed, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)

	assert.NotEmpty(t, feed.ID)
	assert.Equal(t, "Example Blog", feed.Title)
	assert.Equal(t, "https://a.com/rss", feed.URL)
	require.Len(t, feed.Items, 2)
	for _, it := range feed.Items {
		assert.NotEmpty(t, it.ID)
		assert.False(t, it.IsRead, "freshly parsed items start unread")
	}
	assert.Equal(t, "https://a.com/1", feed.Items[0].Link)
	assert.Equal(t, "<p>about https://a.com/1</p>", feed.Items[0].Description)
}

func TestParseFeedServesSecondCallFromCache(t *testing.T) {
	fake := &fakeConversion{responses: map[string]conversionResponse{
		"https://a.com/rss": okResponse("Example", "https://a.com/1"),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	first, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)
	second, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.requests, "cache hit must not reach the network")
	assert.Equal(t, first, second, "cached snapshot is returned as stored, ids included")
}

func TestParseFeedGeneratesFreshIdsPerParse(t *testing.T) {
	fake := &fakeConversion{responses: map[string]conversionResponse{
		"https://a.com/rss": okResponse("Example", "https://a.com/1"),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	first, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)
	require.NoError(t, p.cache.Clear("https://a.com/rss"))
	second, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Items[0].ID, second.Items[0].ID)
	assert.Equal(t, first.Items[0].Link, second.Items[0].Link, "the link is the stable identity")
}

func TestParseFeedUpstreamFailureStatus(t *testing.T) {
	ts := httptest.NewServer(&fakeConversion{}) // every feed answers status=error
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	_, err := p.ParseFeed(context.Background(), "https://a.com/rss")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "unknown feed")
}

func TestParseFeedHTTPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	_, err := p.ParseFeed(context.Background(), "https://a.com/rss")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestParseFeedAcceptsNonCanonical2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(okResponse("Example", "https://a.com/1"))
	}))
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	feed, err := p.ParseFeed(context.Background(), "https://a.com/rss")
	require.NoError(t, err)
	assert.Equal(t, "Example", feed.Title)
}

func TestParseFeedMalformedBodyKeepsDecodeError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	_, err := p.ParseFeed(context.Background(), "https://a.com/rss")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "malformed conversion response")
	assert.Contains(t, parseErr.Error(), "invalid character", "the decode error says what was wrong")
}

func TestParseFeedRejectsEmptyFeed(t *testing.T) {
	fake := &fakeConversion{responses: map[string]conversionResponse{
		"https://a.com/rss": {Status: "ok"}, // no title, no items
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	p := newTestParser(t, ts.URL)
	_, err := p.ParseFeed(context.Background(), "https://a.com/rss")

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "got %v", err)
}

func TestFormatMediumURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "at-username", input: "@bob", want: "https://medium.com/feed/@bob"},
		{name: "bare username", input: "bob", want: "https://medium.com/feed/@bob"},
		{name: "full url passes through", input: "https://example.com/feed", want: "https://example.com/feed"},
		{name: "non-https scheme passes through", input: "http://example.com/rss", want: "http://example.com/rss"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMediumURL(tt.input))
		})
	}
}
