// Package model defines shared data structures.
package model

import "github.com/google/uuid"

// FeedItem represents a single article/entry from a feed.
// Ids are regenerated on every parse, so merge identity is the Link.
type FeedItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"` // HTML as delivered by the source
	Link        string `json:"link"`
	PubDate     string `json:"pubDate"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	IsRead      bool   `json:"isRead"`
}

// Feed represents an RSS/Atom feed subscription with its items, newest first.
// ID is generated once when the feed is added and survives refreshes; URL is
// the feed's natural key and never changes.
type Feed struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Image string     `json:"image,omitempty"`
	Items []FeedItem `json:"items"`
}

// UnreadCount returns the number of items not yet read.
func (f Feed) UnreadCount() int {
	n := 0
	for _, it := range f.Items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// CacheEntry is a timestamped feed snapshot.
type CacheEntry struct {
	Data      Feed  `json:"data"`
	Timestamp int64 `json:"timestamp"` // epoch milliseconds
}

// SubscriptionKeys holds the client keys of a web-push subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is one subscriber's web-push subscription.
type PushSubscription struct {
	Subscriber string           `json:"subscriber"`
	Endpoint   string           `json:"endpoint"`
	Keys       SubscriptionKeys `json:"keys"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// Settings key constants.
const (
	SettingNotificationPermission = "notification_permission"
	SettingPollingInterval        = "polling_interval_minutes"
)

// Notification permission states, mirroring the browser Notification API.
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionDefault = "default"
)
