// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/fgeck/powerctl/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// DefaultPort is the discard port conventionally used for magic packets.
const DefaultPort = 9

var macPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client broadcasts a prepared magic packet.
type Client interface {
	Broadcast(addr string, packet models.MagicPacket) error
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Broadcast validates the packet layout and sends it to addr.
func (c *DefaultClient) Broadcast(addr string, packet models.MagicPacket) error {
	var mp wol.MagicPacket
	if err := mp.UnmarshalBinary(packet[:]); err != nil {
		return fmt.Errorf("malformed magic packet: %w", err)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mp.Target); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// ParseMAC parses exactly six colon-separated two-digit hex groups.
func ParseMAC(s string) (models.MACAddress, error) {
	var mac models.MACAddress

	if !macPattern.MatchString(s) {
		return mac, fmt.Errorf("invalid MAC address %q: want six colon-separated hex bytes", s)
	}

	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	copy(mac[:], hw)

	return mac, nil
}

// BuildMagicPacket returns the magic packet for mac.
func BuildMagicPacket(mac models.MACAddress) models.MagicPacket {
	var packet models.MagicPacket

	for i := 0; i < 6; i++ {
		packet[i] = 0xFF
	}
	for i := 0; i < 16; i++ {
		copy(packet[6+i*6:], mac[:])
	}

	return packet
}

// BroadcastAddr joins the broadcast IP and port, defaulting the port to 9.
func BroadcastAddr(cfg models.WOLConfig) (string, error) {
	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		return "", fmt.Errorf("invalid broadcast IP: %s", cfg.BroadcastIP)
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	return net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	client Client
	logger zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		client: &DefaultClient{},
		logger: logger,
	}
}

// NewWithClient creates a new WOL service with a custom client (for testing).
func NewWithClient(logger zerolog.Logger, client Client) *Impl {
	return &Impl{
		client: client,
		logger: logger,
	}
}

// Wake builds the magic packet for the configured MAC and broadcasts it once.
// An invalid MAC or broadcast address aborts the send; neither is retried.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()

	mac, err := ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = err
		return result, nil
	}

	addr, err := BroadcastAddr(cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}
	result.Target = addr

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", addr).
		Msg("sending WOL packet")

	if err := s.client.Broadcast(addr, BuildMagicPacket(mac)); err != nil {
		result.Duration = time.Since(start)
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.PacketSent = true
	result.Duration = time.Since(start)
	s.logger.Info().Msg("WOL packet sent successfully")

	return result, nil
}
