// Package adapter drives USB to I2C bridge chips.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
	"github.com/mklimuk/twowire/wirectx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// BufferSize is the largest I2C payload carried by one HID report.
const BufferSize = 60

const (
	reportSize    = 64
	engineClock   = 12_000_000
	maskAddrNack  = 0x40
	stateAddrNack = 0x25
	cmdStatus     = 0x10
	cmdWrite      = 0x90
	cmdRead       = 0x91
	cmdGetData    = 0x40
	subCancel     = 0x10
	subSetSpeed   = 0x20
	speedNotSet   = 0x21
	readEngineErr = 0x41
)

var ErrCommandFailed = errors.New("command failed")
var ErrNotFound = errors.New("MCP2221 device not found")
var ErrAmbiguous = errors.New("ambiguous device identification")

// Opener opens the HID endpoint of the adapter selected by ctx.
type Opener func(ctx context.Context) (io.ReadWriteCloser, error)

type Opts struct {
	ResponseWait time.Duration
	Opener       Opener
}

type Opt func(*Opts)

func WithResponseWait(wait time.Duration) Opt {
	return func(o *Opts) {
		o.ResponseWait = wait
	}
}

func WithOpener(open Opener) Opt {
	return func(o *Opts) {
		o.Opener = open
	}
}

var _ twowire.I2CBus = &MCP2221{}

type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	open         Opener
}

type MCP2221Status struct {
	I2CState               int    `yaml:"i2c_state"`
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	AddressNack            bool   `yaml:"address_nack"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(opts ...Opt) *MCP2221 {
	config := Opts{
		ResponseWait: 50 * time.Millisecond,
		Opener:       openHID,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: config.ResponseWait,
		open:         config.Opener,
	}
}

// Enumerate lists the adapters attached to the host.
func Enumerate() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

// Init checks that the adapter selected by ctx can be opened.
func (d *MCP2221) Init(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	port, err := d.open(ctx)
	if err != nil {
		return err
	}
	return port.Close()
}

// SetSpeed programs the I2C clock divider of the adapter engine.
func (d *MCP2221) SetSpeed(ctx context.Context, f physic.Frequency) error {
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return fmt.Errorf("invalid i2c speed %s", f)
	}
	divider := engineClock/hz - 3
	if divider < 1 || divider > 0xFF {
		return fmt.Errorf("i2c speed %s out of adapter range", f)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = subSetSpeed
	d.request[4] = byte(divider)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] == speedNotSet {
		return fmt.Errorf("speed not set: %w", twowire.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > BufferSize {
		return fmt.Errorf("write of %d bytes exceeds adapter buffer of %d", len(buffer), BufferSize)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] != 0x00 {
		slog.Debug("adapter busy", "address", address)
		return twowire.ErrBusBusy
	}
	status, err := d.status(ctx)
	if err != nil {
		return fmt.Errorf("write to %x not confirmed: %w", address, err)
	}
	if status.AddressNack {
		// the engine stays blocked after a NACK until the transfer is cancelled
		if _, err := d.releaseBus(ctx); err != nil {
			slog.Warn("could not release adapter after nack", "error", err)
		}
		return fmt.Errorf("write to %x: %w", address, twowire.ErrNackAddress)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > BufferSize {
		return fmt.Errorf("read of %d bytes exceeds adapter buffer of %d", len(buffer), BufferSize)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] != 0x00 {
		return twowire.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetData
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == readEngineErr {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine: %w", twowire.ErrNackAddress)
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.status(ctx)
}

func (d *MCP2221) status(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return nil, ErrCommandFailed
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8: I2C engine state, 0x25 after an address NACK
		9-10: requested I2C transfer length (LE)
		11-12: already transferred number of bytes (LE)
		13: internal I2C data buffer counter
		14: current I2C communication speed divider value
		15: current I2C timeout value
		16-17: I2C address being used
		20: ACK status, bit 6 set on address NACK
		25: read pending
	*/
	return &MCP2221Status{
		I2CState:               int(buffer[8]),
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
		AddressNack:            buffer[8] == stateAddrNack || buffer[20]&maskAddrNack != 0,
		ReadPending:            int(buffer[25]),
	}
}

// Release cancels any transfer still held by the adapter engine.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = subCancel
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	dev, err := d.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := wirectx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "report", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.responseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "report", hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to %#02x answers command %#02x", d.request[0], d.response[0])
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}

func openHID(ctx context.Context) (io.ReadWriteCloser, error) {
	devs := Enumerate()
	if len(devs) == 0 {
		return nil, ErrNotFound
	}
	idx, selected := wirectx.Device(ctx)
	if !selected {
		if len(devs) > 1 {
			return nil, ErrAmbiguous
		}
		idx = 0
	}
	if idx < 0 || idx >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}
