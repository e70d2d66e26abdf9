package rss

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"rabbitrss/internal/logger"
	"rabbitrss/internal/model"
	"rabbitrss/internal/storage"
)

// maxSaveRetries bounds how often a refresh re-bases onto a collection that
// moved underneath it before giving up.
const maxSaveRetries = 3

// Notifier is the single decision point for "new items detected".
type Notifier interface {
	NotifyNewItems(ctx context.Context, feedTitle string, newItems int)
}

// Refresher re-fetches every stored feed, merges the results against the
// stored copies and persists the merged collection.
type Refresher struct {
	store    *storage.FeedStore
	parser   *Parser
	notifier Notifier
}

// NewRefresher creates a refresher.
func NewRefresher(store *storage.FeedStore, parser *Parser, notifier Notifier) *Refresher {
	return &Refresher{store: store, parser: parser, notifier: notifier}
}

// RefreshResult summarizes one batch refresh.
type RefreshResult struct {
	Feeds    int `json:"feeds"`
	NewItems int `json:"new_items"`
	Failed   int `json:"failed"`
}

// RefreshAll fetches all stored feeds concurrently and saves the merged
// collection once every fetch has finished. A feed whose fetch fails keeps
// its previous stored copy; one bad feed never fails the batch. New items
// are announced through the notifier, once per feed.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshResult, error) {
	feeds, revision, err := r.store.GetFeedsWithRevision()
	if err != nil {
		return RefreshResult{}, err
	}
	if len(feeds) == 0 {
		return RefreshResult{}, nil
	}

	merged := make([]model.Feed, len(feeds))
	counts := make([]int, len(feeds))
	failed := make([]bool, len(feeds))

	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed model.Feed) {
			defer wg.Done()
			fresh, err := r.parser.ParseFeed(ctx, feed.URL)
			if err != nil {
				logger.Warnf("refresh of %s failed, keeping stored copy: %v", feed.URL, err)
				merged[i] = feed
				failed[i] = true
				return
			}
			merged[i], counts[i] = Reconcile(feed, fresh)
		}(i, feed)
	}
	wg.Wait()

	result := RefreshResult{Feeds: len(feeds)}
	for i, count := range counts {
		if failed[i] {
			result.Failed++
		}
		if count > 0 {
			result.NewItems += count
			r.notifier.NotifyNewItems(ctx, merged[i].Title, count)
		}
	}

	if err := r.saveMerged(merged, revision); err != nil {
		return result, err
	}
	return result, nil
}

// saveMerged persists the merged collection, re-basing onto the current
// stored state when another writer got there first.
func (r *Refresher) saveMerged(merged []model.Feed, baseRevision int64) error {
	byURL := make(map[string]model.Feed, len(merged))
	for _, f := range merged {
		byURL[f.URL] = f
	}

	for attempt := 0; ; attempt++ {
		err := r.store.CompareAndSaveFeeds(merged, baseRevision)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrStaleRevision) || attempt >= maxSaveRetries {
			return err
		}

		// Someone saved while we were fetching. Re-read, fold our fetch
		// results into the fresh collection and try again. Feeds added or
		// removed meanwhile are respected; read flags marked meanwhile win
		// because reads are monotone.
		current, revision, loadErr := r.store.GetFeedsWithRevision()
		if loadErr != nil {
			return loadErr
		}
		rebased := make([]model.Feed, len(current))
		for i, stored := range current {
			if fetched, ok := byURL[stored.URL]; ok {
				rebased[i], _ = Reconcile(stored, fetched)
			} else {
				rebased[i] = stored
			}
		}
		merged = rebased
		baseRevision = revision
		logger.Debugf("refresh re-based onto revision %d", revision)
	}
}

// CheckAll re-parses every stored feed and announces new items without
// rewriting the stored collection. This is the cron-style check: it compares
// against whatever was last persisted, not against what any client has seen.
func (r *Refresher) CheckAll(ctx context.Context) (int, error) {
	feeds, err := r.store.GetFeeds()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, feed := range feeds {
		fresh, err := r.parser.ParseFeed(ctx, feed.URL)
		if err != nil {
			logger.Warnf("check of %s failed: %v", feed.URL, err)
			continue
		}
		_, count := Reconcile(feed, fresh)
		if count > 0 {
			total += count
			r.notifier.NotifyNewItems(ctx, feed.Title, count)
		}
	}
	return total, nil
}

// Poller runs periodic refreshes.
type Poller struct {
	refresher       *Refresher
	store           *storage.FeedStore
	defaultInterval time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

// NewPoller creates a background poller.
func NewPoller(refresher *Refresher, store *storage.FeedStore, defaultInterval time.Duration) *Poller {
	return &Poller{
		refresher:       refresher,
		store:           store,
		defaultInterval: defaultInterval,
		stopChan:        make(chan struct{}),
	}
}

// interval resolves the polling interval, preferring the stored setting.
func (p *Poller) interval() time.Duration {
	val, err := p.store.Setting(model.SettingPollingInterval)
	if err == nil && val != "" {
		if mins, err := strconv.Atoi(val); err == nil && mins > 0 {
			return time.Duration(mins) * time.Minute
		}
	}
	return p.defaultInterval
}

// Start begins the polling loop. The timer re-fires on a fixed interval
// whether or not the previous refresh finished; the revision guard in the
// store keeps an overlapping pair from clobbering each other's writes.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			interval := p.interval()
			select {
			case <-p.stopChan:
				return
			case <-time.After(interval):
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			result, err := p.refresher.RefreshAll(ctx)
			cancel()
			if err != nil {
				logger.Errorf("poller refresh: %v", err)
				continue
			}
			logger.Infof("poller: refreshed %d feeds, %d new items", result.Feeds, result.NewItems)
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
