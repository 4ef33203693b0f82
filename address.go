package twowire

import "periph.io/x/conn/v3/physic"

// Peer address limits, 7-bit addressing.
const (
	AddressGeneralCall byte = 0x00
	AddressMin         byte = 0x01
	AddressMinUsual    byte = 0x03
	AddressMaxUsual    byte = 0x77
	AddressMax         byte = 0x7F
	// AddressNone marks a session without a selected peer.
	AddressNone byte = 0xFF
)

// GeneralCallReset is the general call command resetting every peer.
const GeneralCallReset byte = 0x06

const (
	ClockStandard = 100 * physic.KiloHertz
	ClockFast     = 400 * physic.KiloHertz
)

// ValidAddress reports whether addr can be used for a transaction.
func ValidAddress(addr byte) bool {
	return addr >= AddressMin && addr <= AddressMax
}

// NormalizeClock returns f when it is a supported bus speed, ClockStandard
// otherwise.
func NormalizeClock(f physic.Frequency) physic.Frequency {
	switch f {
	case ClockStandard, ClockFast:
		return f
	default:
		return ClockStandard
	}
}
