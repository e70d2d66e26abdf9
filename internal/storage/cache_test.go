package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/model"
)

func testFeed() model.Feed {
	return model.Feed{
		ID:    "f1",
		Title: "Example",
		URL:   "https://a.com/rss",
		Items: []model.FeedItem{
			{ID: "i1", Title: "one", Link: "https://a.com/1", PubDate: "2026-08-30 10:00:00", IsRead: true},
			{ID: "i2", Title: "two", Link: "https://a.com/2"},
		},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(kv.NewMemory(), 0)
	feed := testFeed()

	require.NoError(t, c.Set(feed.URL, feed))
	got, ok := c.Get(feed.URL)
	require.True(t, ok)
	assert.Equal(t, feed, got, "snapshot round-trips unchanged")
}

func TestCacheMissOnUnknownURL(t *testing.T) {
	c := NewCache(kv.NewMemory(), 0)
	_, ok := c.Get("https://never-stored.com/rss")
	assert.False(t, ok)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	backend := kv.NewMemory()
	c := NewCache(backend, 0)

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set("https://a.com/rss", testFeed()))

	// Just inside the window.
	c.now = func() time.Time { return now.Add(5*time.Minute - time.Second) }
	_, ok := c.Get("https://a.com/rss")
	assert.True(t, ok, "entry younger than the TTL is a hit")

	// Past the window the entry reads as absent and is purged.
	c.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	_, ok = c.Get("https://a.com/rss")
	assert.False(t, ok)

	_, present, err := backend.Get("rss-cache-https://a.com/rss")
	require.NoError(t, err)
	assert.False(t, present, "stale entry is evicted on access")
}

func TestCacheClear(t *testing.T) {
	c := NewCache(kv.NewMemory(), 0)
	require.NoError(t, c.Set("https://a.com/rss", testFeed()))
	require.NoError(t, c.Clear("https://a.com/rss"))
	_, ok := c.Get("https://a.com/rss")
	assert.False(t, ok)
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	backend := kv.NewMemory()
	require.NoError(t, backend.Set("rss-cache-https://a.com/rss", "{not json"))

	c := NewCache(backend, 0)
	_, ok := c.Get("https://a.com/rss")
	assert.False(t, ok)

	_, present, err := backend.Get("rss-cache-https://a.com/rss")
	require.NoError(t, err)
	assert.False(t, present)
}
