// Package control talks to the control server that queues wake and shutdown
// requests for the agent.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/rs/zerolog"
)

// maxResponseBytes bounds how much of a poll response is read.
const maxResponseBytes = 64 << 10

// Service defines the interface for control server operations.
type Service interface {
	Poll(ctx context.Context, cfg models.ServerConfig) (*models.PollOutcome, error)
	Acknowledge(ctx context.Context, cfg models.ServerConfig, requestID string, action models.Action) (*models.AckResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the control Service interface.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new control server client.
func New(logger zerolog.Logger, timeout time.Duration) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// NewWithClient creates a new control server client with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Poll fetches the pending command state. Transport failures, non-2xx
// responses and undecodable bodies are reported in the outcome's Error.
// Error responses are never decoded, even when they carry a JSON body.
func (s *Impl) Poll(ctx context.Context, cfg models.ServerConfig) (*models.PollOutcome, error) {
	outcome := &models.PollOutcome{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PollURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		outcome.Error = fmt.Errorf("failed to poll control server: %w", err)
		return outcome, nil
	}
	defer func() { _ = resp.Body.Close() }()

	outcome.StatusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		outcome.Error = fmt.Errorf("failed to read poll response: %w", err)
		return outcome, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome.Error = fmt.Errorf("control server returned status %d", resp.StatusCode)
		return outcome, nil
	}

	s.logger.Debug().RawJSON("response", compactOrQuote(body)).Msg("server response")

	result, err := DecodePollResult(body)
	if err != nil {
		outcome.Error = err
		return outcome, nil
	}
	outcome.Result = result

	return outcome, nil
}

// DecodePollResult decodes a poll response body. Absent or null fields take
// their zero value; anything that is not a JSON object of the expected shape
// is an error.
func DecodePollResult(body []byte) (models.PollResult, error) {
	var result models.PollResult

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return result, fmt.Errorf("malformed poll response: expected a JSON object")
	}

	if err := json.Unmarshal(trimmed, &result); err != nil {
		return models.PollResult{}, fmt.Errorf("malformed poll response: %w", err)
	}

	return result, nil
}

// Acknowledge tells the control server that a request was acted upon.
func (s *Impl) Acknowledge(ctx context.Context, cfg models.ServerConfig, requestID string, action models.Action) (*models.AckResult, error) {
	result := &models.AckResult{}

	jsonBody, err := json.Marshal(models.Ack{
		RequestID: requestID,
		Status:    models.AckStatusSent,
		Action:    action.String(),
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal acknowledgment: %w", err)
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.AckURL(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("failed to send acknowledgment: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.StatusCode = resp.StatusCode
	result.Sent = true

	s.logger.Info().
		Str("request_id", requestID).
		Str("action", action.String()).
		Int("status", resp.StatusCode).
		Msg("acknowledgment sent")

	return result, nil
}

// compactOrQuote keeps debug output valid JSON even for garbage responses.
func compactOrQuote(body []byte) []byte {
	var b bytes.Buffer
	if err := json.Compact(&b, body); err == nil {
		return b.Bytes()
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
