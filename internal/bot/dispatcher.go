package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Dispatcher delivers a formatted message to a slash command's response URL.
type Dispatcher interface {
	Dispatch(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error
}

// WebhookDispatcher posts JSON payloads to Slack response URLs.
type WebhookDispatcher struct {
	client *http.Client
}

// NewWebhookDispatcher creates a dispatcher whose requests time out after
// timeout.
func NewWebhookDispatcher(timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{client: &http.Client{Timeout: timeout}}
}

// Dispatch sends msg once. Failures are returned, never retried.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	return slack.PostWebhookCustomHTTPContext(ctx, responseURL, d.client, msg)
}
