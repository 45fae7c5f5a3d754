// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/fgeck/powerctl/internal/services/wol"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// POWERCTL_SERVER_POLL_URL for server.poll_url.
const EnvPrefix = "POWERCTL"

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AgentConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AgentConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadEnv loads configuration from POWERCTL_* environment variables only.
func (p *Parser) LoadEnv() (*models.AgentConfig, error) {
	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AgentConfig, error) {
	cfg := &models.AgentConfig{}

	// Control server (required).
	cfg.Server = models.ServerConfig{
		PollURL: p.expandEnv(p.v.GetString("server.poll_url")),
		Timeout: p.v.GetDuration("server.timeout"),
	}
	if cfg.Server.PollURL == "" {
		return nil, fmt.Errorf("server.poll_url is required")
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 10 * time.Second
	}

	// Wake-on-LAN target (required).
	cfg.Target = models.WOLConfig{
		MACAddress:  p.expandEnv(p.v.GetString("target.mac_address")),
		BroadcastIP: p.v.GetString("target.broadcast_ip"),
		Port:        p.v.GetInt("target.port"),
	}
	if cfg.Target.MACAddress == "" {
		return nil, fmt.Errorf("target.mac_address is required")
	}
	if cfg.Target.BroadcastIP == "" {
		cfg.Target.BroadcastIP = "255.255.255.255"
	}
	if cfg.Target.Port == 0 {
		cfg.Target.Port = 9
	}

	// Shutdown dispatch.
	cfg.Shutdown = models.ShutdownConfig{
		Method:  p.v.GetString("shutdown.method"),
		URL:     p.expandEnv(p.v.GetString("shutdown.url")),
		Timeout: p.v.GetDuration("shutdown.timeout"),
	}
	if cfg.Shutdown.Method == "" {
		cfg.Shutdown.Method = models.ShutdownMethodHTTP
	}
	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = 10 * time.Second
	}

	switch cfg.Shutdown.Method {
	case models.ShutdownMethodHTTP:
		if cfg.Shutdown.URL == "" {
			return nil, fmt.Errorf("shutdown.url is required when shutdown.method is http")
		}
	case models.ShutdownMethodSSH:
		sshCfg, err := p.parseSSH()
		if err != nil {
			return nil, err
		}
		cfg.Shutdown.SSH = sshCfg
	default:
		return nil, fmt.Errorf("shutdown.method must be one of: http, ssh")
	}

	// Loop intervals.
	cfg.Intervals = models.IntervalSettings{
		Poll:          p.v.GetDuration("intervals.poll"),
		ShutdownRetry: p.v.GetDuration("intervals.shutdown_retry"),
		Tick:          p.v.GetDuration("intervals.tick"),
	}
	if cfg.Intervals.Poll == 0 {
		cfg.Intervals.Poll = 5 * time.Second
	}
	if cfg.Intervals.ShutdownRetry == 0 {
		cfg.Intervals.ShutdownRetry = 10 * time.Second
	}
	if cfg.Intervals.Tick == 0 {
		cfg.Intervals.Tick = 100 * time.Millisecond
	}

	// Optional Telegram notifications.
	if p.v.IsSet("telegram.bot_token") || p.v.IsSet("telegram.chat_id") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	// Optional MQTT publisher.
	if p.v.IsSet("mqtt.broker") {
		cfg.MQTT = &models.MQTTConfig{
			Broker:      p.expandEnv(p.v.GetString("mqtt.broker")),
			TopicPrefix: p.v.GetString("mqtt.topic_prefix"),
			ClientID:    p.v.GetString("mqtt.client_id"),
			Username:    p.expandEnv(p.v.GetString("mqtt.username")),
			Password:    p.expandEnv(p.v.GetString("mqtt.password")),
		}

		if cfg.MQTT.Broker == "" {
			return nil, fmt.Errorf("mqtt.broker must not be empty")
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "powerctl"
		}
		cfg.MQTT.TopicPrefix = strings.TrimRight(cfg.MQTT.TopicPrefix, "/")
	}

	return cfg, nil
}

func (p *Parser) parseSSH() (*models.SSHShutdownConfig, error) {
	cfg := &models.SSHShutdownConfig{
		Host:          p.v.GetString("shutdown.ssh.host"),
		Port:          p.v.GetInt("shutdown.ssh.port"),
		Username:      p.v.GetString("shutdown.ssh.username"),
		KeyPath:       p.expandEnv(p.v.GetString("shutdown.ssh.key_path")),
		ShutdownDelay: p.v.GetInt("shutdown.ssh.shutdown_delay"),
		OS:            p.v.GetString("shutdown.ssh.os"),
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("shutdown.ssh.host is required when shutdown.method is ssh")
	}
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("shutdown.ssh.key_path is required when shutdown.method is ssh")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Username == "" {
		cfg.Username = "root"
	}
	if cfg.ShutdownDelay < 0 {
		return nil, fmt.Errorf("shutdown.ssh.shutdown_delay must not be negative")
	}
	if cfg.OS == "" {
		cfg.OS = "linux"
	}
	validOS := map[string]bool{"linux": true, "windows": true}
	if !validOS[cfg.OS] {
		return nil, fmt.Errorf("shutdown.ssh.os must be one of: linux, windows")
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.AgentConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validateURL("server.poll_url", cfg.Server.PollURL); err != nil {
		return err
	}

	if _, err := wol.ParseMAC(cfg.Target.MACAddress); err != nil {
		return fmt.Errorf("target.mac_address: %w", err)
	}
	if net.ParseIP(cfg.Target.BroadcastIP) == nil {
		return fmt.Errorf("target.broadcast_ip %q is not an IP address", cfg.Target.BroadcastIP)
	}
	if cfg.Target.Port < 1 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535")
	}

	if cfg.Shutdown.Method == models.ShutdownMethodHTTP {
		if err := validateURL("shutdown.url", cfg.Shutdown.URL); err != nil {
			return err
		}
	} else if cfg.Shutdown.SSH == nil {
		return fmt.Errorf("shutdown.ssh is required when shutdown.method is ssh")
	}

	if cfg.Intervals.Poll <= 0 || cfg.Intervals.ShutdownRetry <= 0 || cfg.Intervals.Tick <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	// A poll takes every tick when tick >= poll, which starves the retry.
	if cfg.Intervals.Tick >= cfg.Intervals.Poll {
		return fmt.Errorf("intervals.tick must be shorter than intervals.poll")
	}
	if cfg.Intervals.Tick > cfg.Intervals.ShutdownRetry {
		return fmt.Errorf("intervals.tick must not exceed intervals.shutdown_retry")
	}

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", key)
	}
	return nil
}
