package notify

import (
	"context"

	"rabbitrss/internal/logger"
)

// LocalSender is the in-process delivery path, the stand-in for the in-page
// notification the browser build showed while the tab was open. It surfaces
// the notification in the structured log, where a local UI or an operator
// tailing the log picks it up.
type LocalSender struct{}

// Name identifies the sender in logs.
func (LocalSender) Name() string { return "local" }

// Send logs the notification.
func (LocalSender) Send(_ context.Context, n Notification) error {
	logger.Infof("%s: %s", n.Title, n.Body())
	return nil
}
