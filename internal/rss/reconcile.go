package rss

import "rabbitrss/internal/model"

// Reconcile merges a freshly parsed feed against the previously stored
// version of the same feed. Items are matched by link: a matched item keeps
// the stored read flag, an unmatched one is new and unread. The merged feed
// takes its ordering and every other field from fresh, except the feed id,
// which stays the stored one so the feed's identity survives the refresh.
// Items the source no longer returns are dropped.
//
// Reconcile is pure; persisting the result and announcing newCount are the
// caller's job.
func Reconcile(stored, fresh model.Feed) (merged model.Feed, newCount int) {
	readByLink := make(map[string]bool, len(stored.Items))
	for _, it := range stored.Items {
		readByLink[it.Link] = it.IsRead
	}

	merged = fresh
	merged.ID = stored.ID
	merged.Items = make([]model.FeedItem, len(fresh.Items))
	for i, it := range fresh.Items {
		if isRead, ok := readByLink[it.Link]; ok {
			it.IsRead = isRead
		} else {
			it.IsRead = false
			newCount++
		}
		merged.Items[i] = it
	}
	return merged, newCount
}
