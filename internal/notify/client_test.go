package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecgtrainer/gamification-engine/internal/config"
	"github.com/ecgtrainer/gamification-engine/internal/models"
	"github.com/ecgtrainer/gamification-engine/pkg/logger"
)

func TestSendStreakAtRisk(t *testing.T) {
	var got Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(&config.NotifyConfig{WebhookURL: server.URL, Enabled: true, Timeout: 2}, logger.Nop())
	require.NoError(t, client.SendStreakAtRisk(context.Background(), 7, 12, 5.5))

	assert.Equal(t, KindStreakAtRisk, got.Kind)
	assert.Equal(t, uint(7), got.UserID)
	assert.False(t, got.SentAt.IsZero())
	assert.Equal(t, float64(12), got.Data["current_streak"])
	assert.Equal(t, 5.5, got.Data["hours_remaining"])
}

func TestSendReengagementIncludesEvent(t *testing.T) {
	var got Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer server.Close()

	client := NewClient(&config.NotifyConfig{WebhookURL: server.URL, Enabled: true}, logger.Nop())
	event := &models.XPEvent{ID: 4, MultiplierType: models.Multiplier2x, EndAt: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, client.SendReengagement(context.Background(), 3, 7, event))

	assert.Equal(t, KindReengagement, got.Kind)
	assert.Equal(t, float64(7), got.Data["inactive_days"])
	assert.Equal(t, "2x", got.Data["multiplier"])
	assert.Equal(t, float64(4), got.Data["event_id"])
}

func TestSendDisabledDoesNothing(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(&config.NotifyConfig{WebhookURL: server.URL, Enabled: false}, logger.Nop())
	require.NoError(t, client.SendStreakAtRisk(context.Background(), 1, 3, 2))
	assert.False(t, called)
}

func TestSendNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(&config.NotifyConfig{WebhookURL: server.URL, Enabled: true}, logger.Nop())
	err := client.SendStreakAtRisk(context.Background(), 1, 3, 2)
	assert.ErrorContains(t, err, "502")
}

func TestSendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(&config.NotifyConfig{WebhookURL: url, Enabled: true, Timeout: 1}, logger.Nop())
	assert.Error(t, client.SendStreakAtRisk(context.Background(), 1, 3, 2))
}
