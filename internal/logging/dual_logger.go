package logging

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Notifier delivers an operator-facing message somewhere outside the logs.
type Notifier func(ctx context.Context, text string) error

// DualLogger logs errors to the console and, when a notifier is set, also
// reports them to the operators' Slack channel. Requesters never see these.
type DualLogger struct {
	zapLogger *zap.Logger
	notify    Notifier
}

// ErrorContext contains context information for error logging
type ErrorContext struct {
	RequestID string
	ChannelID string
	UserName  string
	Command   string
	Component string
	Operation string
}

// NewDualLogger creates a new dual logger instance. notify may be nil.
func NewDualLogger(zapLogger *zap.Logger, notify Notifier) *DualLogger {
	return &DualLogger{
		zapLogger: zapLogger,
		notify:    notify,
	}
}

// WebhookNotifier posts operator messages to Slack incoming webhooks. Each
// post gives up after timeout.
func WebhookNotifier(urls []string, timeout time.Duration) Notifier {
	if len(urls) == 0 {
		return nil
	}
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, text string) error {
		var failed []string
		for _, u := range urls {
			if err := slack.PostWebhookCustomHTTPContext(ctx, u, client, &slack.WebhookMessage{Text: text}); err != nil {
				failed = append(failed, err.Error())
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("failed to notify %d webhook(s): %s", len(failed), strings.Join(failed, "; "))
		}
		return nil
	}
}

// LogError logs an error to the console and, if configured, to Slack
func (dl *DualLogger) LogError(ctx context.Context, errCtx *ErrorContext, err error, message string) {
	dl.logToConsole(errCtx, err, message)

	if dl.notify != nil {
		dl.logToSlack(ctx, errCtx, err, message)
	}
}

// LogErrorf logs a formatted error message
func (dl *DualLogger) LogErrorf(ctx context.Context, errCtx *ErrorContext, err error, format string, args ...interface{}) {
	dl.LogError(ctx, errCtx, err, fmt.Sprintf(format, args...))
}

func (dl *DualLogger) logToConsole(errCtx *ErrorContext, err error, message string) {
	dl.zapLogger.Error(message,
		zap.String("request_id", errCtx.RequestID),
		zap.String("component", errCtx.Component),
		zap.String("operation", errCtx.Operation),
		zap.String("command", errCtx.Command),
		zap.String("channel_id", errCtx.ChannelID),
		zap.String("user_name", errCtx.UserName),
		zap.Error(err),
		zap.String("stack_trace", string(debug.Stack())),
	)
}

func (dl *DualLogger) logToSlack(ctx context.Context, errCtx *ErrorContext, err error, message string) {
	if notifyErr := dl.notify(ctx, FormatSlackMessage(errCtx, err, message, time.Now())); notifyErr != nil {
		// Console only, or a broken webhook would loop.
		dl.zapLogger.Error("Failed to post error message to Slack",
			zap.String("request_id", errCtx.RequestID),
			zap.Error(notifyErr))
	}
}

// FormatSlackMessage renders an error report for operators.
func FormatSlackMessage(errCtx *ErrorContext, err error, message string, at time.Time) string {
	var parts []string
	parts = append(parts, fmt.Sprintf(":rotating_light: *Error in %s* [%s]", errCtx.Component, at.Format("15:04:05")))
	parts = append(parts, fmt.Sprintf("*Operation*: %s", errCtx.Operation))
	parts = append(parts, fmt.Sprintf("*Message*: %s", message))
	parts = append(parts, fmt.Sprintf("*Error*: %v", err))

	if errCtx.Command != "" {
		parts = append(parts, fmt.Sprintf("*Command*: %s by %s in %s", errCtx.Command, errCtx.UserName, errCtx.ChannelID))
	}
	if errCtx.RequestID != "" {
		parts = append(parts, fmt.Sprintf("*Request*: %s", errCtx.RequestID))
	}

	return strings.Join(parts, "\n")
}

// CreateErrorContext creates an ErrorContext from common parameters
func CreateErrorContext(component, operation string) *ErrorContext {
	return &ErrorContext{
		Component: component,
		Operation: operation,
	}
}

// WithRequest adds the slash command's identifying fields to an ErrorContext
func (ec *ErrorContext) WithRequest(requestID, command, channelID, userName string) *ErrorContext {
	ec.RequestID = requestID
	ec.Command = command
	ec.ChannelID = channelID
	ec.UserName = userName
	return ec
}
