// Package environment holds light sensor drivers built on a twowire session.
package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mklimuk/twowire"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

// Mode is a BH1750 measurement instruction.
type Mode byte

const (
	ModeContinuousHigh  Mode = 0b00010000
	ModeContinuousHigh2 Mode = 0b00010001
	ModeContinuousLow   Mode = 0b00010011
	ModeOneTimeHigh     Mode = 0b00100000
	ModeOneTimeHigh2    Mode = 0b00100001
	ModeOneTimeLow      Mode = 0b00100011
)

const (
	opCodePowerOn = 0b00000001
	opCodeReset   = 0b00000111
)

// measurement returns the worst case conversion time of the mode.
func (m Mode) measurement() time.Duration {
	switch m {
	case ModeContinuousLow, ModeOneTimeLow:
		// typically 16ms, max 24ms
		return 25 * time.Millisecond
	default:
		// typically 120ms, max 180ms
		return 180 * time.Millisecond
	}
}

type BH1750Opts struct {
	Mode  Mode
	Sleep func(time.Duration)
}

type BH1750Opt func(*BH1750Opts)

func WithMode(m Mode) BH1750Opt {
	return func(o *BH1750Opts) {
		o.Mode = m
	}
}

func WithSleep(sleep func(time.Duration)) BH1750Opt {
	return func(o *BH1750Opts) {
		o.Sleep = sleep
	}
}

type BH1750 struct {
	bus   *twowire.Session
	addr  byte
	mode  Mode
	sleep func(time.Duration)
	buf   []byte
}

func NewBH1750(bus *twowire.Session, addr byte, opts ...BH1750Opt) *BH1750 {
	config := BH1750Opts{
		Mode:  ModeOneTimeLow,
		Sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &BH1750{
		bus:   bus,
		addr:  addr,
		mode:  config.Mode,
		sleep: config.Sleep,
		buf:   make([]byte, 2),
	}
}

// Reset powers the sensor on and clears its data register.
func (sensor *BH1750) Reset(ctx context.Context) error {
	if err := sensor.selectSensor(ctx); err != nil {
		return err
	}
	if err := sensor.bus.SendCommand(opCodePowerOn); err != nil {
		return fmt.Errorf("could not power on: %w", err)
	}
	if err := sensor.bus.SendCommand(opCodeReset); err != nil {
		return fmt.Errorf("could not reset: %w", err)
	}
	return nil
}

func (sensor *BH1750) GetLux(ctx context.Context) (int, error) {
	if err := sensor.selectSensor(ctx); err != nil {
		return 0, err
	}
	err := sensor.bus.SendCommand(uint16(sensor.mode))
	if err != nil {
		return 0, fmt.Errorf("could not write command: %w", err)
	}
	sensor.sleep(sensor.mode.measurement())
	err = sensor.bus.Receive(sensor.buf, false)
	if err != nil {
		return 0, fmt.Errorf("could not read data: %w", err)
	}
	// one count is 1/1.2 lx, half of that in the high resolution 2 modes
	raw := int(binary.BigEndian.Uint16(sensor.buf))
	if sensor.mode == ModeContinuousHigh2 || sensor.mode == ModeOneTimeHigh2 {
		return raw * 5 / 12, nil
	}
	return raw * 5 / 6, nil
}

func (sensor *BH1750) selectSensor(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sensor.bus.SetAddress(sensor.addr); err != nil {
		return fmt.Errorf("sensor %#02x not available: %w", sensor.addr, err)
	}
	return nil
}
