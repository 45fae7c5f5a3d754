package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/powerctl/internal/services/mqtt"
	"github.com/fgeck/powerctl/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop",
	Long: `Run the control loop until interrupted:
1. Poll the control server every intervals.poll
2. Execute new wake (Wake-on-LAN) or shutdown requests once per request id
3. Acknowledge each executed request
4. Re-send an outstanding shutdown every intervals.shutdown_retry until a wake
   request arrives
5. Report executed actions to Telegram and MQTT (if configured)`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("poll_url", cfg.Server.PollURL).
		Str("mac", cfg.Target.MACAddress).
		Str("shutdown_method", cfg.Shutdown.Method).
		Msg("configuration loaded")

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	agent := runner.New(log.Logger, *cfg)

	// The broker is optional: without it the agent still does its job.
	if cfg.MQTT != nil {
		mqttSvc, err := mqtt.New(log.Logger, *cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT disabled")
		} else {
			defer mqttSvc.Close()
			agent.WithMQTT(mqttSvc)
		}
	}

	return agent.Run(ctx)
}
