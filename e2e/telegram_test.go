//go:build e2e

package e2e

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/fgeck/powerctl/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func TestTelegramSendWakeNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger(), "e2e-test-host")

	result, err := svc.SendNotification(context.Background(), cfg, models.ActionEvent{
		Action:    models.ActionWake,
		RequestID: "e2e-wake-1",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramSendShutdownNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger(), "e2e-test-host")

	result, err := svc.SendNotification(context.Background(), cfg, models.ActionEvent{
		Action:    models.ActionShutdown,
		RequestID: "e2e-shutdown-1",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramSendFailureNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger(), "e2e-test-host")

	result, err := svc.SendNotification(context.Background(), cfg, models.ActionEvent{
		Action:    models.ActionWake,
		RequestID: "e2e-wake-2",
		Time:      time.Now(),
		Error:     errors.New("sendto: network is unreachable"),
	})

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	cfg := models.TelegramConfig{
		BotToken: "invalid:token",
		ChatID:   "-100123456789",
	}

	svc := telegram.New(testLogger(), "test")

	result, err := svc.SendNotification(context.Background(), cfg, models.ActionEvent{
		Action:    models.ActionWake,
		RequestID: "r1",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}

func TestTelegramInvalidChatID_E2E(t *testing.T) {
	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	cfg := models.TelegramConfig{
		BotToken: botToken,
		ChatID:   "invalid-chat-id",
	}

	svc := telegram.New(testLogger(), "test")

	result, err := svc.SendNotification(context.Background(), cfg, models.ActionEvent{
		Action:    models.ActionShutdown,
		RequestID: "r1",
		Time:      time.Now(),
	})

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
