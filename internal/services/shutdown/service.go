// Package shutdown forwards shutdown requests to the listener running on the
// target host.
package shutdown

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for shutdown dispatch.
type Service interface {
	Dispatch(ctx context.Context, cfg models.ShutdownConfig) (*models.ShutdownResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the shutdown Service interface over HTTP.
type Impl struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new HTTP shutdown dispatcher.
func New(logger zerolog.Logger, timeout time.Duration) *Impl {
	return &Impl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// NewWithClient creates a new shutdown dispatcher with a custom HTTP client (for testing).
func NewWithClient(logger zerolog.Logger, httpClient HTTPClient) *Impl {
	return &Impl{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Dispatch posts an empty JSON object to the shutdown endpoint. Any response
// counts as delivered; the body is not inspected.
func (s *Impl) Dispatch(ctx context.Context, cfg models.ShutdownConfig) (*models.ShutdownResult, error) {
	result := &models.ShutdownResult{}
	start := time.Now()

	s.logger.Info().Str("url", cfg.URL).Msg("sending shutdown command")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("failed to send shutdown command: %w", err)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	result.Delivered = true
	result.StatusCode = resp.StatusCode

	s.logger.Info().
		Int("status", resp.StatusCode).
		Dur("duration", result.Duration).
		Msg("shutdown command sent")

	return result, nil
}
