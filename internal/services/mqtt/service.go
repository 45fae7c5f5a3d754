// Package mqtt publishes agent activity to an MQTT broker: one event per
// executed action and a retained snapshot of the controller state.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/fgeck/powerctl/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// Service defines the interface for MQTT publishing.
type Service interface {
	PublishEvent(ctx context.Context, event models.ActionEvent) (*models.MQTTResult, error)
	PublishState(ctx context.Context, state models.ControllerState) (*models.MQTTResult, error)
	Close()
}

// Publisher wraps the paho client for mocking.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

// DefaultPublisher publishes through a connected paho client.
type DefaultPublisher struct {
	client paho.Client
}

// Connect dials the broker described by cfg.
func Connect(cfg models.MQTTConfig, logger zerolog.Logger) (*DefaultPublisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return &DefaultPublisher{client: client}, nil
}

// Publish sends payload with QoS 1 and waits for the broker to accept it.
func (p *DefaultPublisher) Publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *DefaultPublisher) Close() {
	p.client.Disconnect(250)
}

// DefaultClientID returns a broker-unique client id for this process.
func DefaultClientID() string {
	return "powerctl-" + uuid.New().String()[:8]
}

type eventPayload struct {
	Agent     string `json:"agent"`
	Action    string `json:"action"`
	RequestID string `json:"id"`
	Retry     bool   `json:"retry"`
	Time      string `json:"time"`
	Error     string `json:"error,omitempty"`
}

type statePayload struct {
	Agent               string `json:"agent"`
	ShutdownMode        bool   `json:"shutdown_mode"`
	LastRequestID       string `json:"last_request_id"`
	LastShutdownAttempt string `json:"last_shutdown_attempt,omitempty"`
}

// Impl implements the MQTT Service interface.
type Impl struct {
	publisher Publisher
	prefix    string
	agentID   string
	logger    zerolog.Logger
}

// New connects to the broker and returns a publishing service.
func New(logger zerolog.Logger, cfg models.MQTTConfig) (*Impl, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID()
	}

	publisher, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewWithPublisher(logger, publisher, cfg.TopicPrefix, cfg.ClientID), nil
}

// NewWithPublisher creates a service with a custom publisher (for testing).
func NewWithPublisher(logger zerolog.Logger, publisher Publisher, prefix, agentID string) *Impl {
	return &Impl{
		publisher: publisher,
		prefix:    prefix,
		agentID:   agentID,
		logger:    logger,
	}
}

// EventTopic is the topic action events are published to.
func (s *Impl) EventTopic() string { return s.prefix + "/event" }

// StateTopic is the retained topic holding the latest controller state.
func (s *Impl) StateTopic() string { return s.prefix + "/state" }

// PublishEvent publishes an executed action.
func (s *Impl) PublishEvent(ctx context.Context, event models.ActionEvent) (*models.MQTTResult, error) {
	payload := eventPayload{
		Agent:     s.agentID,
		Action:    event.Action.String(),
		RequestID: event.RequestID,
		Retry:     event.Retry,
		Time:      event.Time.UTC().Format(time.RFC3339),
	}
	if event.Error != nil {
		payload.Error = event.Error.Error()
	}

	return s.publish(ctx, s.EventTopic(), false, payload)
}

// PublishState publishes the controller state as a retained message.
func (s *Impl) PublishState(ctx context.Context, state models.ControllerState) (*models.MQTTResult, error) {
	payload := statePayload{
		Agent:         s.agentID,
		ShutdownMode:  state.ShutdownMode,
		LastRequestID: state.LastProcessedRequestID,
	}
	if !state.LastShutdownAttempt.IsZero() {
		payload.LastShutdownAttempt = state.LastShutdownAttempt.UTC().Format(time.RFC3339)
	}

	return s.publish(ctx, s.StateTopic(), true, payload)
}

func (s *Impl) publish(ctx context.Context, topic string, retained bool, v any) (*models.MQTTResult, error) {
	result := &models.MQTTResult{Topic: topic}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	if err := s.publisher.Publish(topic, retained, data); err != nil {
		result.Error = fmt.Errorf("failed to publish to %s: %w", topic, err)
		return result, nil
	}

	result.Published = true
	s.logger.Debug().Str("topic", topic).Msg("published MQTT message")

	return result, nil
}

// Close disconnects the publisher.
func (s *Impl) Close() {
	s.publisher.Close()
}
