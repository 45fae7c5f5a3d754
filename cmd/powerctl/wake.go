package main

import (
	"context"
	"fmt"

	"github.com/fgeck/powerctl/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Send one Wake-on-LAN packet to the configured target",
	Long: `Send a single magic packet to target.mac_address via target.broadcast_ip
without contacting the control server. Useful to check that the target wakes
before running the agent.`,
	RunE: wakeTarget,
}

func wakeTarget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := wol.New(log.Logger).Wake(context.Background(), cfg.Target)
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Msg("WOL failed")
		return fmt.Errorf("WOL failed: %w", result.Error)
	}

	fmt.Printf("Magic packet sent to %s via %s\n", cfg.Target.MACAddress, result.Target)
	return nil
}
