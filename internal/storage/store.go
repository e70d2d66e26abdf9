// Package storage persists the feed collection and cached feed snapshots.
//
// The collection is stored whole under a single key, the way the original
// browser build kept it in localStorage: every mutation is a read-modify-write
// of the full JSON array. A revision counter stored beside the collection lets
// the refresher detect when an overlapping refresh has already written a newer
// copy.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/model"
)

// Storage keys.
const (
	feedsKey      = "rabbit-rss-feeds"
	revisionKey   = "rabbit-rss-revision"
	settingPrefix = "rabbit-rss-setting-"
)

// Sentinel errors returned by FeedStore.
var (
	ErrDuplicateFeed = errors.New("a feed with this URL already exists")
	ErrFeedNotFound  = errors.New("feed not found")
	ErrItemNotFound  = errors.New("item not found")
	ErrStaleRevision = errors.New("stored collection changed since it was read")
)

// FeedStore holds the user's feed collection in a key-value backend.
type FeedStore struct {
	mu sync.Mutex
	kv kv.Store
}

// NewFeedStore creates a store over the given backend.
func NewFeedStore(backend kv.Store) *FeedStore {
	return &FeedStore{kv: backend}
}

// GetFeeds returns the stored collection. An absent key reads as the empty
// collection rather than an error, matching a fresh or unavailable store.
func (s *FeedStore) GetFeeds() ([]model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, _, err := s.load()
	return feeds, err
}

// GetFeedsWithRevision returns the collection together with the revision it
// was read at, for use with CompareAndSaveFeeds.
func (s *FeedStore) GetFeedsWithRevision() ([]model.Feed, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// SaveFeeds overwrites the stored collection. Last write wins.
func (s *FeedStore) SaveFeeds(feeds []model.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, rev, err := s.load()
	if err != nil {
		return err
	}
	return s.save(feeds, rev+1)
}

// CompareAndSaveFeeds overwrites the stored collection only if no save
// happened since the caller read it at baseRevision. Returns ErrStaleRevision
// otherwise.
func (s *FeedStore) CompareAndSaveFeeds(feeds []model.Feed, baseRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, rev, err := s.load()
	if err != nil {
		return err
	}
	if rev != baseRevision {
		return ErrStaleRevision
	}
	return s.save(feeds, rev+1)
}

// AddFeed appends a feed to the collection. A feed whose URL is already
// present is rejected with ErrDuplicateFeed.
func (s *FeedStore) AddFeed(feed model.Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, rev, err := s.load()
	if err != nil {
		return err
	}
	for _, f := range feeds {
		if f.URL == feed.URL {
			return ErrDuplicateFeed
		}
	}
	return s.save(append(feeds, feed), rev+1)
}

// RemoveFeed deletes the feed with the given id and returns the updated
// collection. Removing an unknown id is a no-op.
func (s *FeedStore) RemoveFeed(feedID string) ([]model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, rev, err := s.load()
	if err != nil {
		return nil, err
	}
	updated := feeds[:0]
	for _, f := range feeds {
		if f.ID != feedID {
			updated = append(updated, f)
		}
	}
	if err := s.save(updated, rev+1); err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkItemAsRead sets isRead on one item and returns the updated collection.
// The transition is one-way and idempotent: an already-read item stays read.
func (s *FeedStore) MarkItemAsRead(feedID, itemID string) ([]model.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds, rev, err := s.load()
	if err != nil {
		return nil, err
	}
	fi := -1
	for i, f := range feeds {
		if f.ID == feedID {
			fi = i
			break
		}
	}
	if fi < 0 {
		return nil, ErrFeedNotFound
	}
	found := false
	for i, it := range feeds[fi].Items {
		if it.ID == itemID {
			feeds[fi].Items[i].IsRead = true
			found = true
			break
		}
	}
	if !found {
		return nil, ErrItemNotFound
	}
	if err := s.save(feeds, rev+1); err != nil {
		return nil, err
	}
	return feeds, nil
}

// Setting returns the stored value for a settings key, or "" when unset.
func (s *FeedStore) Setting(key string) (string, error) {
	val, _, err := s.kv.Get(settingPrefix + key)
	return val, err
}

// SetSetting saves a settings value.
func (s *FeedStore) SetSetting(key, value string) error {
	return s.kv.Set(settingPrefix+key, value)
}

// load reads the collection and its revision. Callers hold the mutex.
func (s *FeedStore) load() ([]model.Feed, int64, error) {
	raw, ok, err := s.kv.Get(feedsKey)
	if err != nil {
		return nil, 0, err
	}
	var feeds []model.Feed
	if ok {
		if err := json.Unmarshal([]byte(raw), &feeds); err != nil {
			return nil, 0, fmt.Errorf("decode stored feeds: %w", err)
		}
	}
	rev := int64(0)
	if rawRev, ok, err := s.kv.Get(revisionKey); err != nil {
		return nil, 0, err
	} else if ok {
		rev, _ = strconv.ParseInt(rawRev, 10, 64)
	}
	return feeds, rev, nil
}

// save writes the collection and revision. Callers hold the mutex.
func (s *FeedStore) save(feeds []model.Feed, revision int64) error {
	if feeds == nil {
		feeds = []model.Feed{}
	}
	data, err := json.Marshal(feeds)
	if err != nil {
		return fmt.Errorf("encode feeds: %w", err)
	}
	if err := s.kv.Set(feedsKey, string(data)); err != nil {
		return err
	}
	return s.kv.Set(revisionKey, strconv.FormatInt(revision, 10))
}
