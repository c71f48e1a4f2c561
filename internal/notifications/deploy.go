package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/character"
	"github.com/ghabxph/dnd-relay/internal/command"
)

// DeploymentNotifier announces a freshly started relay to the operators'
// incoming webhooks.
type DeploymentNotifier struct {
	webhooks []string
	logger   *zap.Logger
	post     func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

func NewDeploymentNotifier(webhooks []string, logger *zap.Logger) *DeploymentNotifier {
	return &DeploymentNotifier{
		webhooks: webhooks,
		logger:   logger,
		post:     slack.PostWebhookContext,
	}
}

func (n *DeploymentNotifier) NotifyDeployment(ctx context.Context, version string, roster *character.Roster) error {
	return n.SendConcurrentNotifications(ctx, n.FormatDeploymentMessage(version, roster, time.Now()))
}

func (n *DeploymentNotifier) FormatDeploymentMessage(version string, roster *character.Roster, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":crossed_swords: *Character relay online* - v%s\n", version)
	fmt.Fprintf(&b, ":clock3: Started at: %s\n\n", at.UTC().Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("*Commands:*\n")
	for _, c := range roster.Commands {
		switch c.Style {
		case command.StylePlayer:
			fmt.Fprintf(&b, "• `%s` speaks as %s\n", c.Path, roster.Characters.Name(c.Character))
		default:
			fmt.Fprintf(&b, "• `%s` (%s)\n", c.Path, c.Style)
		}
	}
	fmt.Fprintf(&b, "\n:busts_in_silhouette: %d characters on the roster", roster.Characters.Len())

	return b.String()
}

func (n *DeploymentNotifier) SendConcurrentNotifications(ctx context.Context, message string) error {
	if len(n.webhooks) == 0 {
		n.logger.Info("No notification webhooks configured, skipping deployment notification")
		return nil
	}

	type result struct {
		webhook int
		err     error
	}
	results := make(chan result, len(n.webhooks))

	for i, url := range n.webhooks {
		go func(i int, url string) {
			results <- result{webhook: i, err: n.post(ctx, url, &slack.WebhookMessage{Text: message})}
		}(i, url)
	}

	var failed int
	for range n.webhooks {
		if r := <-results; r.err != nil {
			failed++
			n.logger.Error("Failed to send deployment notification",
				zap.Error(r.err),
				zap.Int("webhook", r.webhook))
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to send notifications to %d webhooks", failed)
	}

	n.logger.Info("Deployment notifications sent successfully",
		zap.Int("webhooks", len(n.webhooks)))

	return nil
}
