// Package runner drives the agent's control loop: it polls the control server,
// routes requests, dispatches wake and shutdown actions and re-issues an
// outstanding shutdown until a wake request supersedes it.
package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/fgeck/powerctl/internal/services/control"
	"github.com/fgeck/powerctl/internal/services/mqtt"
	"github.com/fgeck/powerctl/internal/services/router"
	"github.com/fgeck/powerctl/internal/services/shutdown"
	"github.com/fgeck/powerctl/internal/services/ssh"
	"github.com/fgeck/powerctl/internal/services/telegram"
	"github.com/fgeck/powerctl/internal/services/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for the control loop.
type Service interface {
	Run(ctx context.Context) error
}

// Services groups the collaborators of the control loop. Telegram and MQTT
// are optional and may be nil.
type Services struct {
	Control  control.Service
	WOL      wol.Service
	Shutdown shutdown.Service
	Telegram telegram.Service
	MQTT     mqtt.Service
}

// Impl implements the runner Service interface. All fields are owned by the
// goroutine calling Run or Tick.
type Impl struct {
	cfg    models.AgentConfig
	svc    Services
	logger zerolog.Logger

	state    models.ControllerState
	lastPoll time.Time
	polled   bool
}

// New creates a new runner with the default services for cfg. MQTT is not
// connected here; attach a connected service with WithMQTT.
func New(logger zerolog.Logger, cfg models.AgentConfig) *Impl {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "powerctl"
	}

	svc := Services{
		Control: control.New(logger, cfg.Server.Timeout),
		WOL:     wol.New(logger),
	}

	if cfg.Shutdown.Method == models.ShutdownMethodSSH {
		svc.Shutdown = ssh.New(logger)
	} else {
		svc.Shutdown = shutdown.New(logger, cfg.Shutdown.Timeout)
	}

	if cfg.Telegram != nil {
		svc.Telegram = telegram.New(logger, hostname)
	}

	return NewWithServices(logger, cfg, svc)
}

// NewWithServices creates a new runner with custom services (for testing).
func NewWithServices(logger zerolog.Logger, cfg models.AgentConfig, svc Services) *Impl {
	return &Impl{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
}

// WithMQTT attaches an event publisher and returns the runner.
func (s *Impl) WithMQTT(publisher mqtt.Service) *Impl {
	s.svc.MQTT = publisher
	return s
}

// State returns a copy of the current controller state.
func (s *Impl) State() models.ControllerState {
	return s.state
}

// Run ticks the control loop until ctx is cancelled. Per-tick failures are
// logged and never end the loop.
func (s *Impl) Run(ctx context.Context) error {
	tick := s.cfg.Intervals.Tick
	if tick <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", tick)
	}

	s.logger.Info().
		Str("poll_url", s.cfg.Server.PollURL).
		Dur("poll_interval", s.cfg.Intervals.Poll).
		Dur("retry_interval", s.cfg.Intervals.ShutdownRetry).
		Str("shutdown_method", s.cfg.Shutdown.Method).
		Msg("starting control loop")

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().
				Bool("shutdown_mode", s.state.ShutdownMode).
				Str("last_request_id", s.state.LastProcessedRequestID).
				Msg("control loop stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick runs at most one timed action: a poll when the poll interval has
// elapsed, otherwise a shutdown re-issue when one is due.
func (s *Impl) Tick(ctx context.Context, now time.Time) {
	if !s.polled || now.Sub(s.lastPoll) >= s.cfg.Intervals.Poll {
		s.polled = true
		s.lastPoll = now
		s.poll(ctx, now)
		return
	}

	if router.RetryDue(s.state, now, s.cfg.Intervals.ShutdownRetry) {
		s.state = router.MarkRetry(s.state, now)
		s.logger.Info().
			Str("request_id", s.state.LastProcessedRequestID).
			Msg("retrying shutdown command")

		err := s.dispatchShutdown(ctx)
		s.notify(ctx, models.ActionEvent{
			Action:    models.ActionShutdown,
			RequestID: s.state.LastProcessedRequestID,
			Retry:     true,
			Time:      now,
			Error:     err,
		})
		s.publishState(ctx)
	}
}

func (s *Impl) poll(ctx context.Context, now time.Time) {
	outcome, err := s.svc.Control.Poll(ctx, s.cfg.Server)
	if err != nil {
		s.logger.Error().Err(err).Msg("poll failed")
		return
	}
	if outcome.Error != nil {
		s.logger.Warn().
			Err(outcome.Error).
			Int("status", outcome.StatusCode).
			Msg("poll failed, retrying next interval")
		return
	}

	decision, next := router.Evaluate(outcome.Result, s.state, now)

	switch decision.Action {
	case models.ActionNone:
		s.logNoAction(decision)
		return
	case models.ActionWake:
		s.logger.Info().Str("request_id", decision.RequestID).Msg("new wake request received")
		if s.state.ShutdownMode {
			s.logger.Info().Msg("exiting shutdown mode")
		}
	case models.ActionShutdown:
		s.logger.Info().Str("request_id", decision.RequestID).Msg("new shutdown request received")
	}

	// The transition is committed before any side effect runs.
	s.state = next

	var actionErr error
	if decision.Action == models.ActionWake {
		actionErr = s.wake(ctx)
	} else {
		actionErr = s.dispatchShutdown(ctx)
	}

	s.acknowledge(ctx, decision)
	s.notify(ctx, models.ActionEvent{
		Action:    decision.Action,
		RequestID: decision.RequestID,
		Time:      now,
		Error:     actionErr,
	})
	s.publishState(ctx)
}

func (s *Impl) logNoAction(decision router.Decision) {
	switch decision.Reason {
	case router.ReasonDuplicate:
		s.logger.Info().Str("request_id", decision.RequestID).Msg("duplicate request ignored")
	case router.ReasonNoAction:
		s.logger.Warn().Str("request_id", decision.RequestID).Msg("request carries neither wake nor shutdown")
	default:
		if !s.state.ShutdownMode {
			s.logger.Debug().Msg("no wake/shutdown request pending")
		}
	}
}

func (s *Impl) wake(ctx context.Context) error {
	result, err := s.svc.WOL.Wake(ctx, s.cfg.Target)
	if err != nil {
		s.logger.Error().Err(err).Msg("WOL failed")
		return err
	}
	if result.Error != nil {
		s.logger.Error().
			Err(result.Error).
			Str("mac", s.cfg.Target.MACAddress).
			Msg("WOL failed, wake abandoned")
		return result.Error
	}

	s.logger.Info().
		Str("broadcast", result.Target).
		Dur("duration", result.Duration).
		Msg("WOL completed")
	return nil
}

func (s *Impl) dispatchShutdown(ctx context.Context) error {
	result, err := s.svc.Shutdown.Dispatch(ctx, s.cfg.Shutdown)
	if err != nil {
		s.logger.Error().Err(err).Msg("shutdown dispatch failed")
		return err
	}
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("failed to send shutdown command")
		return result.Error
	}

	s.logger.Info().
		Bool("delivered", result.Delivered).
		Int("status", result.StatusCode).
		Msg("shutdown command delivered")
	return nil
}

// acknowledge reports the action to the control server. Failures are logged
// only; the state transition stands.
func (s *Impl) acknowledge(ctx context.Context, decision router.Decision) {
	result, err := s.svc.Control.Acknowledge(ctx, s.cfg.Server, decision.RequestID, decision.Action)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", decision.RequestID).Msg("failed to send acknowledgment")
		return
	}
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Str("request_id", decision.RequestID).Msg("failed to send acknowledgment")
	}
}

func (s *Impl) notify(ctx context.Context, event models.ActionEvent) {
	if s.svc.MQTT != nil {
		result, err := s.svc.MQTT.PublishEvent(ctx, event)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to publish MQTT event")
		} else if result.Error != nil {
			s.logger.Warn().Err(result.Error).Msg("failed to publish MQTT event")
		}
	}

	// Retries would flood the chat; only new requests are reported.
	if s.svc.Telegram == nil || s.cfg.Telegram == nil || event.Retry {
		return
	}

	result, err := s.svc.Telegram.SendNotification(ctx, *s.cfg.Telegram, event)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("failed to send Telegram notification")
	}
}

func (s *Impl) publishState(ctx context.Context) {
	if s.svc.MQTT == nil {
		return
	}

	result, err := s.svc.MQTT.PublishState(ctx, s.state)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to publish MQTT state")
		return
	}
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("failed to publish MQTT state")
	}
}
