package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/model"
	"rabbitrss/internal/notify"
	"rabbitrss/internal/rss"
	"rabbitrss/internal/storage"
)

// newConversionServer fakes the feed-to-JSON conversion API. Feed URLs
// containing "bad" answer with a failure status.
func newConversionServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		feedURL := r.URL.Query().Get("rss_url")
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(feedURL, "bad") {
			fmt.Fprint(w, `{"status":"error","message":"not a feed"}`)
			return
		}
		fmt.Fprintf(w, `{
			"status": "ok",
			"feed": {"title": "Feed for %[1]s"},
			"items": [
				{"title": "first", "description": "<p>first</p>", "link": "%[1]s/1", "pubDate": "2026-08-30 10:00:00"},
				{"title": "second", "description": "<p>second</p>", "link": "%[1]s/2", "pubDate": "2026-08-29 10:00:00"}
			]
		}`, feedURL)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestServer(t *testing.T) (*Server, *storage.FeedStore) {
	t.Helper()
	conversion := newConversionServer(t)

	backend := kv.NewMemory()
	store := storage.NewFeedStore(backend)
	cache := storage.NewCache(backend, time.Minute)
	parser := rss.NewParser(rss.ParserConfig{
		ConversionURL: conversion.URL,
		UseConversion: true,
	}, cache)
	registry := notify.NewRegistry(backend)
	dispatcher := notify.NewDispatcher(store)
	refresher := rss.NewRefresher(store, parser, dispatcher)

	return New(store, parser, refresher, registry), store
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeFeed(t *testing.T, rec *httptest.ResponseRecorder) model.Feed {
	t.Helper()
	var feed model.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	return feed
}

func TestAddAndListFeeds(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	feed := decodeFeed(t, rec)
	assert.Equal(t, "Feed for https://a.com/rss", feed.Title)
	assert.Len(t, feed.Items, 2)

	rec = doJSON(t, s, http.MethodGet, "/api/feeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feeds []model.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feeds))
	require.Len(t, feeds, 1)
	assert.Equal(t, feed.ID, feeds[0].ID)
}

func TestAddFeedByMediumUsername(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"username": "@bob"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	feed := decodeFeed(t, rec)
	assert.Equal(t, "https://medium.com/feed/@bob", feed.URL)
}

func TestAddDuplicateFeedConflicts(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddUnparseableFeedSurfacesMessage(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://bad.com/rss"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a feed")
}

func TestRemoveFeed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	feed := decodeFeed(t, rec)

	rec = doJSON(t, s, http.MethodDelete, "/api/feeds/"+feed.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/feeds", nil)
	var feeds []model.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feeds))
	assert.Empty(t, feeds)
}

func TestMarkRead(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	feed := decodeFeed(t, rec)

	rec = doJSON(t, s, http.MethodPost, "/api/mark-read", map[string]string{
		"feed_id": feed.ID,
		"item_id": feed.Items[0].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var feeds []model.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feeds))
	assert.True(t, feeds[0].Items[0].IsRead)
	assert.False(t, feeds[0].Items[1].IsRead)
}

func TestMarkReadUnknownFeed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/mark-read", map[string]string{
		"feed_id": "nope",
		"item_id": "nope",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.AddFeed(model.Feed{
		ID:    "f1",
		Title: "Feed A",
		URL:   "https://a.com/rss",
		Items: []model.FeedItem{{ID: "i1", Link: "https://a.com/rss/1", IsRead: true}},
	}))

	rec := doJSON(t, s, http.MethodPost, "/api/feeds/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result rss.RefreshResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Feeds)
	assert.Equal(t, 1, result.NewItems, "only the second item is new")
}

func TestCheckEndpointEmptyStore(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/feeds/check", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"new_items":0`)
}

func TestImportDeduplicatesByURL(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := "https://a.com/rss\nhttps://b.com/rss\n\nhttps://bad.com/rss\n"
	req := httptest.NewRequest(http.MethodPost, "/api/feeds/import", strings.NewReader(body))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
		Failed   int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
}

func TestExportReturnsURLList(t *testing.T) {
	s, _ := newTestServer(t)

	for _, url := range []string{"https://a.com/rss", "https://b.com/rss"} {
		rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": url})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/feeds/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://a.com/rss\nhttps://b.com/rss", rec.Body.String())
}

func TestOPMLExportImportRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/feeds", map[string]string{"url": "https://a.com/rss"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/feeds/export-opml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://a.com/rss")
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
}

func TestSettingsRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), model.PermissionDefault)

	granted := model.PermissionGranted
	interval := 30
	rec = doJSON(t, s, http.MethodPost, "/api/settings", map[string]interface{}{
		"notification_permission": granted,
		"polling_interval":        interval,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"notification_permission":"granted"`)
	assert.Contains(t, rec.Body.String(), `"polling_interval":30`)
}

func TestSettingsRejectsUnknownPermission(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/settings", map[string]string{
		"notification_permission": "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]interface{}{
		"endpoint": "https://push.example.com/abc",
		"keys":     map[string]string{"p256dh": "p", "auth": "a"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Subscriber string `json:"subscriber"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Subscriber, "server assigns an id to new subscribers")

	rec = doJSON(t, s, http.MethodDelete, "/api/notifications/"+resp.Subscriber, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscriptionRequiresEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/notifications", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
