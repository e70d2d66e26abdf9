package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"rabbitrss/internal/kv"
	"rabbitrss/internal/logger"
	"rabbitrss/internal/model"
)

const subscriptionPrefix = "rabbit-rss-push-"

// Registry keeps web-push subscriptions keyed by subscriber id, so multiple
// clients can subscribe independently and unsubscribe without clobbering each
// other.
type Registry struct {
	kv kv.Store
}

// NewRegistry creates a registry over the given backend.
func NewRegistry(backend kv.Store) *Registry {
	return &Registry{kv: backend}
}

// Save stores or replaces the subscription for its subscriber id.
func (r *Registry) Save(sub model.PushSubscription) error {
	if sub.Subscriber == "" {
		return fmt.Errorf("subscription has no subscriber id")
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return r.kv.Set(subscriptionPrefix+sub.Subscriber, string(data))
}

// Remove deletes the subscription for subscriber.
func (r *Registry) Remove(subscriber string) error {
	return r.kv.Delete(subscriptionPrefix + subscriber)
}

// List returns every stored subscription. Corrupt entries are skipped.
func (r *Registry) List() ([]model.PushSubscription, error) {
	entries, err := r.kv.List(subscriptionPrefix)
	if err != nil {
		return nil, err
	}
	subs := make([]model.PushSubscription, 0, len(entries))
	for key, raw := range entries {
		var sub model.PushSubscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			logger.Warnf("dropping corrupt push subscription %s: %v", key, err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// VAPIDConfig holds web-push signing credentials.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Contact    string
}

// Configured reports whether push can be used at all.
func (c VAPIDConfig) Configured() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// PushSender delivers notifications over web push to every registered
// subscription. Unlike the local path it reaches clients with no page open.
type PushSender struct {
	registry *Registry
	vapid    VAPIDConfig
}

// NewPushSender creates a push sender.
func NewPushSender(registry *Registry, vapid VAPIDConfig) *PushSender {
	return &PushSender{registry: registry, vapid: vapid}
}

// Name identifies the sender in logs.
func (p *PushSender) Name() string { return "push" }

// Send pushes the notification to every subscription. A subscription the push
// service reports as gone is removed from the registry; other failures are
// collected but do not stop the remaining deliveries.
func (p *PushSender) Send(ctx context.Context, n Notification) error {
	subs, err := p.registry.List()
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	failed := 0
	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}, &webpush.Options{
			Subscriber:      p.vapid.Contact,
			VAPIDPublicKey:  p.vapid.PublicKey,
			VAPIDPrivateKey: p.vapid.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			logger.Warnf("push to %s failed: %v", sub.Subscriber, err)
			failed++
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			logger.Infof("push subscription %s is gone, removing", sub.Subscriber)
			_ = p.registry.Remove(sub.Subscriber)
		} else if resp.StatusCode >= 400 {
			logger.Warnf("push to %s rejected: HTTP %d", sub.Subscriber, resp.StatusCode)
			failed++
		}
		resp.Body.Close()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d push deliveries failed", failed, len(subs))
	}
	return nil
}
