// Package notification carries messages out of the service. The Channel is
// fire-and-forget from the caller's point of view: errors are reported, not
// retried here.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
)

// Channel sends one message to one address.
type Channel interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewChannel picks the outbound implementation from configuration: a webhook
// relay when a URL is configured, otherwise a log-only channel suitable for
// development.
func NewChannel(cfg config.NotificationConfig, logger *zap.Logger) Channel {
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		return &webhookChannel{
			url:    cfg.WebhookURL,
			from:   cfg.EmailFrom,
			client: &http.Client{Timeout: 10 * time.Second},
		}
	}
	logger.Warn("NOTIFY_WEBHOOK_URL not set; outbound messages will only be logged")
	return &logChannel{from: cfg.EmailFrom, logger: logger}
}

type webhookMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type webhookChannel struct {
	url    string
	from   string
	client *http.Client
}

func (c *webhookChannel) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(webhookMessage{
		From:    c.from,
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

type logChannel struct {
	from   string
	logger *zap.Logger
}

func (c *logChannel) Send(ctx context.Context, to, subject, body string) error {
	c.logger.Info("outbound message",
		zap.String("from", c.from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
