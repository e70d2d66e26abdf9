// Package server provides the HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rabbitrss/internal/model"
	"rabbitrss/internal/notify"
	"rabbitrss/internal/opml"
	"rabbitrss/internal/rss"
	"rabbitrss/internal/storage"
)

// Server is the main HTTP server.
type Server struct {
	store     *storage.FeedStore
	parser    *rss.Parser
	refresher *rss.Refresher
	registry  *notify.Registry
	router    chi.Router
}

// New creates a new server.
func New(store *storage.FeedStore, parser *rss.Parser, refresher *rss.Refresher, registry *notify.Registry) *Server {
	s := &Server{
		store:     store,
		parser:    parser,
		refresher: refresher,
		registry:  registry,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Delete("/feeds/{feedID}", s.handleRemoveFeed)
		r.Post("/feeds/refresh", s.handleRefresh)
		r.Get("/feeds/check", s.handleCheck)
		r.Post("/feeds/import", s.handleImport)
		r.Get("/feeds/export", s.handleExport)
		r.Post("/feeds/import-opml", s.handleImportOPML)
		r.Get("/feeds/export-opml", s.handleExportOPML)
		r.Post("/mark-read", s.handleMarkRead)
		r.Post("/notifications", s.handleSaveSubscription)
		r.Delete("/notifications/{subscriber}", s.handleRemoveSubscription)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)
	})

	s.router = r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// --- Feed Handlers ---

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if feeds == nil {
		feeds = []model.Feed{}
	}
	s.writeJSON(w, http.StatusOK, feeds)
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feedURL := strings.TrimSpace(req.URL)
	if username := strings.TrimSpace(req.Username); username != "" {
		feedURL = rss.FormatMediumURL(username)
	}
	if feedURL == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "url or username is required")
		return
	}

	feed, err := s.parser.ParseFeed(r.Context(), feedURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.AddFeed(feed); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	feeds, err := s.store.RemoveFeed(feedID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feeds)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.RefreshAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	newItems, err := s.refresher.CheckAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"new_items": newItems,
	})
}

// --- Import/Export Handlers ---

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "could not read request body")
		return
	}

	imported, skipped, failed := 0, 0, 0
	for _, line := range strings.Split(string(body), "\n") {
		feedURL := strings.TrimSpace(line)
		if feedURL == "" {
			continue
		}
		feed, err := s.parser.ParseFeed(r.Context(), feedURL)
		if err != nil {
			failed++
			continue
		}
		if err := s.store.AddFeed(feed); err != nil {
			if errors.Is(err, storage.ErrDuplicateFeed) {
				skipped++
				continue
			}
			s.writeError(w, err)
			return
		}
		imported++
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": imported,
		"skipped":  skipped,
		"failed":   failed,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds()
	if err != nil {
		s.writeError(w, err)
		return
	}
	urls := make([]string, len(feeds))
	for i, f := range feeds {
		urls[i] = f.URL
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, strings.Join(urls, "\n"))
}

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("failed to parse OPML: %v", err))
		return
	}

	imported, skipped, failed := 0, 0, 0
	for _, entry := range entries {
		feed, err := s.parser.ParseFeed(r.Context(), entry.URL)
		if err != nil {
			failed++
			continue
		}
		if err := s.store.AddFeed(feed); err != nil {
			if errors.Is(err, storage.ErrDuplicateFeed) {
				skipped++
				continue
			}
			s.writeError(w, err)
			return
		}
		imported++
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"imported": imported,
		"skipped":  skipped,
		"failed":   failed,
		"total":    len(entries),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.GetFeeds()
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries := make([]opml.FeedEntry, len(feeds))
	for i, f := range feeds {
		entries[i] = opml.FeedEntry{Title: f.Title, URL: f.URL}
	}
	data, err := opml.Export("Rabbit RSS Feeds", entries)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=rabbit-rss-feeds.opml")
	w.Write(data)
}

// --- Read-state Handler ---

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedID string `json:"feed_id"`
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	feeds, err := s.store.MarkItemAsRead(req.FeedID, req.ItemID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feeds)
}

// --- Notification Handlers ---

func (s *Server) handleSaveSubscription(w http.ResponseWriter, r *http.Request) {
	var sub model.PushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	if sub.Endpoint == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "subscription has no endpoint")
		return
	}
	// First-time subscribers get an id assigned; they present it again to
	// replace or remove the subscription.
	if sub.Subscriber == "" {
		sub.Subscriber = model.NewID()
	}
	if err := s.registry.Save(sub); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message":    "subscription saved",
		"subscriber": sub.Subscriber,
	})
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	subscriber := chi.URLParam(r, "subscriber")
	if err := s.registry.Remove(subscriber); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "subscription removed"})
}

// --- Settings Handlers ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	permission, err := s.store.Setting(model.SettingNotificationPermission)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if permission == "" {
		permission = model.PermissionDefault
	}
	intervalStr, err := s.store.Setting(model.SettingPollingInterval)
	if err != nil {
		s.writeError(w, err)
		return
	}
	interval, _ := strconv.Atoi(intervalStr)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notification_permission": permission,
		"polling_interval":        interval,
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NotificationPermission *string `json:"notification_permission"`
		PollingInterval        *int    `json:"polling_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NotificationPermission != nil {
		switch *req.NotificationPermission {
		case model.PermissionGranted, model.PermissionDenied, model.PermissionDefault:
		default:
			s.writeErrorMessage(w, http.StatusBadRequest, "unknown notification permission")
			return
		}
		if err := s.store.SetSetting(model.SettingNotificationPermission, *req.NotificationPermission); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.PollingInterval != nil {
		if *req.PollingInterval <= 0 {
			s.writeErrorMessage(w, http.StatusBadRequest, "polling interval must be positive")
			return
		}
		if err := s.store.SetSetting(model.SettingPollingInterval, strconv.Itoa(*req.PollingInterval)); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Fetch, parse and
// validation failures surface their specific message, so a dialog on the
// other end can show the user why their feed was rejected.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var fetchErr *rss.FetchError
	var parseErr *rss.ParseError
	var validationErr *rss.ValidationError
	switch {
	case errors.Is(err, storage.ErrDuplicateFeed):
		s.writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrFeedNotFound), errors.Is(err, storage.ErrItemNotFound):
		s.writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.As(err, &fetchErr), errors.As(err, &parseErr), errors.As(err, &validationErr):
		s.writeErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.writeErrorMessage(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
