// Package notify delivers best-effort notifications about new feed items.
//
// All delivery paths hang off one Dispatcher with a single decision point:
// the refresher reports "feed X has N new items" once, and the dispatcher
// checks permission and fans out to every configured sender. A sender failing
// is logged and never propagated; notifications are an enhancement, not a
// guarantee.
package notify

import (
	"context"
	"fmt"

	"rabbitrss/internal/logger"
	"rabbitrss/internal/model"
)

// Notification is the payload delivered to every sender. The JSON shape is
// what the push service worker on the receiving end expects.
type Notification struct {
	Title     string `json:"title"`
	FeedTitle string `json:"feedTitle"`
	NewItems  int    `json:"newItemsCount"`
}

// Body returns the human-readable notification text.
func (n Notification) Body() string {
	noun := "articles"
	if n.NewItems == 1 {
		noun = "article"
	}
	return fmt.Sprintf("%s has %d new %s", n.FeedTitle, n.NewItems, noun)
}

// Sender is one delivery path.
type Sender interface {
	// Name identifies the sender in logs.
	Name() string
	// Send delivers a single notification.
	Send(ctx context.Context, n Notification) error
}

// PermissionSource reports the user's notification permission.
type PermissionSource interface {
	Setting(key string) (string, error)
}

// Dispatcher gates notifications on permission and fans them out.
type Dispatcher struct {
	permissions PermissionSource
	senders     []Sender
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(permissions PermissionSource, senders ...Sender) *Dispatcher {
	return &Dispatcher{permissions: permissions, senders: senders}
}

// NotifyNewItems reports new items in a feed. It does nothing unless the user
// has granted notification permission, and swallows delivery failures.
func (d *Dispatcher) NotifyNewItems(ctx context.Context, feedTitle string, newItems int) {
	if newItems <= 0 {
		return
	}
	permission, err := d.permissions.Setting(model.SettingNotificationPermission)
	if err != nil {
		logger.Warnf("read notification permission: %v", err)
		return
	}
	if permission != model.PermissionGranted {
		return
	}

	n := Notification{
		Title:     "New RSS Updates",
		FeedTitle: feedTitle,
		NewItems:  newItems,
	}
	for _, s := range d.senders {
		if err := s.Send(ctx, n); err != nil {
			logger.Errorf("%s notification failed: %v", s.Name(), err)
		}
	}
}
