package twowire

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
var ErrNackAddress = fmt.Errorf("no acknowledge on address")
var ErrNackData = fmt.Errorf("no acknowledge on data")
var ErrTimeout = fmt.Errorf("bus timeout")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is a transaction level bus: every call is one complete
// START..STOP exchange with a peer.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// Driver is the byte level capability of one hardware I2C peripheral.
// Bytes written between BeginTransmission and EndTransmission are queued
// in the peripheral buffer of BufferSize bytes and put on the wire by
// EndTransmission. Status values are platform native, 0 meaning success;
// Family tells how to read the others.
type Driver interface {
	Begin() error
	SetClock(f physic.Frequency) error
	BeginTransmission(addr byte)
	// PutByte returns the number of bytes queued, 0 when the buffer is full.
	PutByte(b byte) int
	EndTransmission(stop bool) uint8
	// RequestFrom reads n bytes into the receive buffer and returns how many
	// arrived.
	RequestFrom(addr byte, n int, stop bool) int
	Available() int
	GetByte() byte
	End()
	BufferSize() int
	Family() Family
}

// PinMapper is implemented by peripherals with software assigned pins.
type PinMapper interface {
	SetPins(sda, scl uint8) error
}
