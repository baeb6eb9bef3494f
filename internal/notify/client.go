// Package notify provides the webhook client that hands engine notifications to the email automation service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ecgtrainer/gamification-engine/internal/config"
	prommetrics "github.com/ecgtrainer/gamification-engine/internal/metrics"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

// Notification kinds.
const (
	KindStreakAtRisk = "streak_at_risk"
	KindReengagement = "reengagement"
)

// Client handles webhook notifications.
type Client struct {
	webhookURL string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new notification client.
func NewClient(cfg *config.NotifyConfig, log *logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Notification is the webhook payload.
type Notification struct {
	Kind   string                 `json:"kind"`
	UserID uint                   `json:"user_id"`
	SentAt time.Time              `json:"sent_at"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Send posts a notification. A disabled client drops it silently.
func (c *Client) Send(ctx context.Context, n *Notification) error {
	if !c.enabled {
		c.log.Debug().Str("kind", n.Kind).Msg("Notifications are disabled, skipping")
		return nil
	}

	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		prommetrics.RecordNotificationFailed(n.Kind)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		prommetrics.RecordNotificationFailed(n.Kind)
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	prommetrics.RecordNotificationSent(n.Kind)
	c.log.Debug().
		Str("kind", n.Kind).
		Uint("user_id", n.UserID).
		Msg("Sent notification")

	return nil
}

// SendStreakAtRisk tells the user their streak breaks unless they practice soon.
func (c *Client) SendStreakAtRisk(ctx context.Context, userID uint, streak int, hoursRemaining float64) error {
	return c.Send(ctx, &Notification{
		Kind:   KindStreakAtRisk,
		UserID: userID,
		Data: map[string]interface{}{
			"current_streak":  streak,
			"hours_remaining": hoursRemaining,
		},
	})
}

// SendReengagement invites an inactive user back with their personal XP event.
func (c *Client) SendReengagement(ctx context.Context, userID uint, inactiveDays int, event *models.XPEvent) error {
	data := map[string]interface{}{
		"inactive_days": inactiveDays,
	}
	if event != nil {
		data["event_id"] = event.ID
		data["multiplier"] = event.MultiplierType
		data["ends_at"] = event.EndAt
	}
	return c.Send(ctx, &Notification{
		Kind:   KindReengagement,
		UserID: userID,
		Data:   data,
	})
}
