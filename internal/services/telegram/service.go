// Package telegram provides Telegram notification services.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Telegram notification operations.
type Service interface {
	SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.ActionEvent) (*models.TelegramResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the Telegram Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
	baseURL    string
	hostname   string
}

// New creates a new Telegram service. hostname identifies the agent in messages.
func New(logger zerolog.Logger, hostname string) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   logger,
		baseURL:  "https://api.telegram.org",
		hostname: hostname,
	}
}

// NewWithClient creates a new Telegram service with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient, baseURL, hostname string) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		hostname:   hostname,
	}
}

// sendMessageRequest is the request body for Telegram sendMessage API.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendNotification reports an executed wake or shutdown via Telegram.
func (s *Impl) SendNotification(ctx context.Context, cfg models.TelegramConfig, event models.ActionEvent) (*models.TelegramResult, error) {
	result := &models.TelegramResult{}

	s.logger.Debug().
		Str("chat_id", cfg.ChatID).
		Str("action", event.Action.String()).
		Msg("sending Telegram notification")

	jsonBody, err := json.Marshal(sendMessageRequest{
		ChatID:    cfg.ChatID,
		Text:      s.formatMessage(event),
		ParseMode: "HTML",
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal request: %w", err)
		return result, nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		result.Error = fmt.Errorf("failed to create request: %w", err)
		return result, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send request: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("telegram API returned status %d", resp.StatusCode)
		return result, nil
	}

	result.MessageSent = true
	s.logger.Info().Msg("Telegram notification sent")

	return result, nil
}

func (s *Impl) formatMessage(event models.ActionEvent) string {
	var b bytes.Buffer

	switch {
	case event.Error != nil:
		b.WriteString(fmt.Sprintf("❌ <b>%s failed</b>\n\n", title(event.Action)))
	case event.Action == models.ActionWake:
		b.WriteString("⚡ <b>Wake-on-LAN sent</b>\n\n")
	default:
		b.WriteString("🔌 <b>Shutdown requested</b>\n\n")
	}

	b.WriteString(fmt.Sprintf("<b>Agent:</b> %s\n", escapeHTML(s.hostname)))
	b.WriteString(fmt.Sprintf("<b>Request:</b> <code>%s</code>\n", escapeHTML(event.RequestID)))
	b.WriteString(fmt.Sprintf("<b>Time:</b> %s\n", event.Time.Format("2006-01-02 15:04:05")))

	if event.Error != nil {
		b.WriteString(fmt.Sprintf("<b>Error:</b> <code>%s</code>\n", escapeHTML(event.Error.Error())))
	}
	if event.Action == models.ActionShutdown && event.Error == nil {
		b.WriteString("\nThe shutdown will be repeated until a wake request arrives.\n")
	}

	return b.String()
}

func title(a models.Action) string {
	if a == models.ActionWake {
		return "Wake"
	}
	return "Shutdown"
}

// escapeHTML escapes HTML special characters.
func escapeHTML(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
