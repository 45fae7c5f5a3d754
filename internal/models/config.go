// Package models contains the data structures used throughout powerctl.
package models

import (
	"strings"
	"time"
)

// AgentConfig holds the complete configuration for the power-control agent.
type AgentConfig struct {
	Server    ServerConfig
	Target    WOLConfig
	Shutdown  ShutdownConfig
	Intervals IntervalSettings
	Telegram  *TelegramConfig // nil if not configured
	MQTT      *MQTTConfig     // nil if not configured
}

// ServerConfig holds the control server settings.
type ServerConfig struct {
	PollURL string
	Timeout time.Duration // per-request HTTP timeout
}

// AckURL returns the acknowledgment endpoint derived from the poll URL.
func (c ServerConfig) AckURL() string {
	return strings.TrimRight(c.PollURL, "/") + "/ack"
}

// IntervalSettings defines the cadence of the control loop.
type IntervalSettings struct {
	Poll          time.Duration
	ShutdownRetry time.Duration
	Tick          time.Duration // granularity of the loop's timer checks
}
