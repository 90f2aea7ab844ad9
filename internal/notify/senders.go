package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	senderNameLog     = "log"
	senderNameWebhook = "webhook"
	recipientOperator = "operators"
)

// LogSender writes notifications to the structured log. It is the delivery channel of
// last resort and the only one in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender backed by logger.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (sender *LogSender) Name() string { return senderNameLog }

func (sender *LogSender) Send(_ context.Context, notification boxoffice.Notification) error {
	recipient := notification.Recipient
	if recipient == "" {
		recipient = recipientOperator
	}
	fields := []zap.Field{
		zap.String("kind", string(notification.Kind)),
		zap.String("recipient", recipient),
		zap.String("subject", notification.Subject),
		zap.String("body", notification.Body),
	}
	if len(notification.Attributes) > 0 {
		fields = append(fields, zap.Any("attributes", notification.Attributes))
	}
	if notification.Recipient == "" {
		sender.logger.Warn("operator notification", fields...)
		return nil
	}
	sender.logger.Info("notification", fields...)
	return nil
}

// WebhookSender posts operator notifications as JSON to an alerting endpoint.
// Buyer-addressed notifications are skipped.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender validates the endpoint URL.
func NewWebhookSender(url string, timeout time.Duration) (*WebhookSender, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: alert webhook url %q", boxoffice.ErrInvalidServiceConfig, url)
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}}, nil
}

func (sender *WebhookSender) Name() string { return senderNameWebhook }

type webhookPayload struct {
	Kind       string            `json:"kind"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (sender *WebhookSender) Send(ctx context.Context, notification boxoffice.Notification) error {
	if notification.Recipient != "" {
		return nil
	}
	body, err := json.Marshal(webhookPayload{
		Kind:       string(notification.Kind),
		Subject:    notification.Subject,
		Body:       notification.Body,
		Attributes: notification.Attributes,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, sender.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := sender.client.Do(request)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post alert: status %d", response.StatusCode)
	}
	return nil
}
