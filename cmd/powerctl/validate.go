package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/fgeck/powerctl/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var probe bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration without polling the control server.
With --probe, also test SSH connectivity when shutdown.method is ssh.`,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&probe, "probe", false, "test connectivity to the shutdown target")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Control Server:")
	fmt.Printf("  Poll URL: %s\n", cfg.Server.PollURL)
	fmt.Printf("  Ack URL: %s\n", cfg.Server.AckURL())
	fmt.Printf("  Timeout: %s\n", cfg.Server.Timeout)
	fmt.Println()
	fmt.Println("Wake-on-LAN Target:")
	fmt.Printf("  MAC Address: %s\n", cfg.Target.MACAddress)
	fmt.Printf("  Broadcast: %s:%d\n", cfg.Target.BroadcastIP, cfg.Target.Port)
	fmt.Println()
	fmt.Println("Shutdown:")
	fmt.Printf("  Method: %s\n", cfg.Shutdown.Method)
	if cfg.Shutdown.Method == models.ShutdownMethodHTTP {
		fmt.Printf("  URL: %s\n", cfg.Shutdown.URL)
		fmt.Printf("  Timeout: %s\n", cfg.Shutdown.Timeout)
	} else {
		fmt.Printf("  Host: %s:%d\n", cfg.Shutdown.SSH.Host, cfg.Shutdown.SSH.Port)
		fmt.Printf("  Username: %s\n", cfg.Shutdown.SSH.Username)
		fmt.Printf("  OS: %s\n", cfg.Shutdown.SSH.OS)
		fmt.Printf("  Command: %s\n", ssh.ShutdownCommand(*cfg.Shutdown.SSH))
	}
	fmt.Println()
	fmt.Println("Intervals:")
	fmt.Printf("  Poll: %s\n", cfg.Intervals.Poll)
	fmt.Printf("  Shutdown retry: %s\n", cfg.Intervals.ShutdownRetry)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  MQTT: %v\n", cfg.MQTT != nil)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if cfg.MQTT != nil {
		fmt.Println()
		fmt.Println("MQTT Configuration:")
		fmt.Printf("  Broker: %s\n", cfg.MQTT.Broker)
		fmt.Printf("  Topic prefix: %s\n", cfg.MQTT.TopicPrefix)
	}

	if probe && cfg.Shutdown.Method == models.ShutdownMethodSSH {
		result, err := ssh.New(log.Logger).TestConnection(context.Background(), *cfg.Shutdown.SSH)
		if err != nil {
			return err
		}
		if result.Error != nil {
			log.Error().Err(result.Error).Msg("SSH probe failed")
			return result.Error
		}
		fmt.Println()
		fmt.Println("SSH probe: OK")
	}

	return nil
}
