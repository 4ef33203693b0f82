// Package i2c connects transaction-level I2C buses (host adapters, USB
// bridges, gobot connectors, TinyGo buses) to the byte-level twowire.Driver
// used by twowire.Session.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
)

const DefaultBufferSize = 32

// SpeedSetter is implemented by buses with a configurable clock.
type SpeedSetter interface {
	SetSpeed(ctx context.Context, f physic.Frequency) error
}

// Initializer is implemented by buses that need a presence check or setup
// before the first transfer.
type Initializer interface {
	Init(ctx context.Context) error
}

// WriteReader is implemented by buses able to write and then read in one
// transaction with a repeated start in between.
type WriteReader interface {
	WriteReadAddr(ctx context.Context, address byte, w, r []byte) error
}

type BridgeOpts struct {
	BufferSize int
	Logger     *slog.Logger
}

type BridgeOpt func(*BridgeOpts)

func WithBufferSize(size int) BridgeOpt {
	return func(o *BridgeOpts) {
		o.BufferSize = size
	}
}

func WithLogger(l *slog.Logger) BridgeOpt {
	return func(o *BridgeOpts) {
		o.Logger = l
	}
}

var _ twowire.Driver = &Bridge{}

// Bridge buffers the bytes of a transmission and hands them to the
// underlying bus in one write when the transmission ends. On a WriteReader
// bus a transmission ending without stop is held back: a following request
// from the same peer turns both into one write-read transaction, anything
// else writes it out first. Other buses decide the framing of each write, so
// a transmission ending without stop still releases the line there.
type Bridge struct {
	ctx  context.Context
	bus  twowire.I2CBus
	log  *slog.Logger
	size int

	addr     byte
	tx       []byte
	overflow bool
	rx       []byte

	pendingAddr byte
	pending     []byte
	failed      uint8
}

func NewBridge(ctx context.Context, bus twowire.I2CBus, opts ...BridgeOpt) *Bridge {
	config := BridgeOpts{
		BufferSize: DefaultBufferSize,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &Bridge{
		ctx:  ctx,
		bus:  bus,
		log:  config.Logger,
		size: config.BufferSize,
		tx:   make([]byte, 0, config.BufferSize),
	}
}

func (b *Bridge) Begin() error {
	initializer, ok := b.bus.(Initializer)
	if !ok {
		return nil
	}
	if err := initializer.Init(b.ctx); err != nil {
		return fmt.Errorf("could not initialize bus: %w", err)
	}
	return nil
}

func (b *Bridge) SetClock(f physic.Frequency) error {
	s, ok := b.bus.(SpeedSetter)
	if !ok {
		return nil
	}
	return s.SetSpeed(b.ctx, f)
}

func (b *Bridge) BeginTransmission(addr byte) {
	b.failed = b.flush()
	b.addr = addr
	b.tx = b.tx[:0]
	b.overflow = false
}

func (b *Bridge) PutByte(v byte) int {
	if len(b.tx) >= b.size {
		b.overflow = true
		return 0
	}
	b.tx = append(b.tx, v)
	return 1
}

func (b *Bridge) EndTransmission(stop bool) uint8 {
	if b.failed != 0 {
		code := b.failed
		b.failed = 0
		return code
	}
	if b.overflow {
		return uint8(twowire.ErrorBuffer)
	}
	if _, ok := b.bus.(WriteReader); ok && !stop && len(b.tx) > 0 {
		b.pendingAddr = b.addr
		b.pending = append(b.pending[:0], b.tx...)
		return 0
	}
	return b.write(b.addr, b.tx, stop)
}

func (b *Bridge) write(addr byte, data []byte, stop bool) uint8 {
	err := b.bus.WriteToAddr(b.ctx, addr, data)
	if err != nil {
		b.log.Debug("bus write failed", "address", fmt.Sprintf("%#02x", addr), "bytes", len(data), "stop", stop, "error", err)
		return status(err, len(data) == 0)
	}
	return 0
}

// flush writes out a held transmission.
func (b *Bridge) flush() uint8 {
	if len(b.pending) == 0 {
		return 0
	}
	code := b.write(b.pendingAddr, b.pending, true)
	b.pending = b.pending[:0]
	return code
}

func (b *Bridge) RequestFrom(addr byte, n int, stop bool) int {
	b.rx = b.rx[:0]
	if n <= 0 {
		return 0
	}
	buf := make([]byte, min(n, b.size))
	var err error
	if wr, ok := b.bus.(WriteReader); ok && len(b.pending) > 0 && b.pendingAddr == addr {
		err = wr.WriteReadAddr(b.ctx, addr, b.pending, buf)
		b.pending = b.pending[:0]
	} else if code := b.flush(); code != 0 {
		b.log.Debug("held write failed before read", "address", fmt.Sprintf("%#02x", addr), "result", twowire.ResultCode(code))
		return 0
	} else {
		err = b.bus.ReadFromAddr(b.ctx, addr, buf)
	}
	if err != nil {
		b.log.Debug("bus read failed", "address", fmt.Sprintf("%#02x", addr), "bytes", len(buf), "stop", stop, "error", err)
		return 0
	}
	b.rx = append(b.rx, buf...)
	return len(buf)
}

func (b *Bridge) Available() int {
	return len(b.rx)
}

func (b *Bridge) GetByte() byte {
	if len(b.rx) == 0 {
		return 0xFF
	}
	v := b.rx[0]
	b.rx = b.rx[1:]
	return v
}

func (b *Bridge) End() {
	if code := b.flush(); code != 0 {
		b.log.Warn("could not write held transmission", "result", twowire.ResultCode(code))
	}
	if err := b.bus.Release(b.ctx); err != nil {
		b.log.Warn("could not release bus", "error", err)
	}
}

func (b *Bridge) BufferSize() int {
	return b.size
}

func (b *Bridge) Family() twowire.Family {
	return twowire.FamilyWire
}

// status translates a bus error into a Wire family status. An empty write is
// an address probe, so an unclassified failure there counts as a missing
// peer.
func status(err error, probe bool) uint8 {
	switch {
	case errors.Is(err, twowire.ErrNackAddress):
		return uint8(twowire.ErrorNackAddr)
	case errors.Is(err, twowire.ErrNackData):
		return uint8(twowire.ErrorNackData)
	case errors.Is(err, twowire.ErrBusBusy), errors.Is(err, twowire.ErrTimeout):
		return uint8(twowire.ErrorNackOther)
	case probe:
		return uint8(twowire.ErrorNackAddr)
	}
	return uint8(twowire.ErrorNackOther)
}
