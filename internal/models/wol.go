package models

import "time"

// MACAddress is a 6-byte hardware address.
type MACAddress [6]byte

// MagicPacketSize is the length of a Wake-on-LAN magic packet.
const MagicPacketSize = 102

// MagicPacket is the Wake-on-LAN payload: 6 bytes of 0xFF followed by the
// target MAC repeated 16 times.
type MagicPacket [MagicPacketSize]byte

// WOLConfig holds the Wake-on-LAN target configuration.
type WOLConfig struct {
	MACAddress  string
	BroadcastIP string
	Port        int
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent bool
	Target     string // broadcast address the packet was sent to
	Duration   time.Duration
	Error      error
}
