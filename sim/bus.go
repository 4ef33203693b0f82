// Package sim provides an in-memory I2C peripheral. It records every
// transaction it sees and answers for the devices attached to it, which makes
// it a stand-in for hardware in tests and dry runs.
package sim

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
)

const DefaultBufferSize = 32

var ErrPins = errors.New("sim: SDA and SCL must differ")

// Transaction is one begin/end or request cycle seen by the peripheral.
type Transaction struct {
	Addr   byte
	Write  []byte
	Read   int
	Stop   bool
	Status uint8
}

func (t Transaction) String() string {
	if t.Read > 0 {
		return fmt.Sprintf("R %#02x n=%d stop=%t status=%d", t.Addr, t.Read, t.Stop, t.Status)
	}
	return fmt.Sprintf("W %#02x % x stop=%t status=%d", t.Addr, t.Write, t.Stop, t.Status)
}

// Device is a peer attached to the simulated bus.
type Device struct {
	Addr     byte
	Received []byte
	Response []byte
	Resets   int
}

type Opts struct {
	BufferSize int
	Family     twowire.Family
}

type Opt func(*Opts)

func WithBufferSize(size int) Opt {
	return func(o *Opts) {
		o.BufferSize = size
	}
}

func WithFamily(f twowire.Family) Opt {
	return func(o *Opts) {
		o.Family = f
	}
}

var _ twowire.Driver = &Bus{}

type Bus struct {
	config  Opts
	devices map[byte]*Device
	log     []Transaction

	open     bool
	addr     byte
	tx       []byte
	overflow bool
	rx       []byte

	running  bool
	begins   int
	ends     int
	clocks   []physic.Frequency
	endCalls int
	failEnd  map[int]uint8
	beginErr error
}

func New(opts ...Opt) *Bus {
	config := Opts{
		BufferSize: DefaultBufferSize,
		Family:     twowire.FamilyWire,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{
		config:  config,
		devices: make(map[byte]*Device),
		failEnd: make(map[int]uint8),
	}
}

// AddDevice attaches a peer answering reads from response.
func (b *Bus) AddDevice(addr byte, response ...byte) *Device {
	d := &Device{Addr: addr, Response: response}
	b.devices[addr] = d
	return d
}

func (b *Bus) Device(addr byte) *Device {
	return b.devices[addr]
}

// FailEndTransmission makes the call-th EndTransmission (counting from 0)
// report status.
func (b *Bus) FailEndTransmission(call int, status uint8) {
	b.failEnd[call] = status
}

func (b *Bus) FailBegin(err error) {
	b.beginErr = err
}

func (b *Bus) Transactions() []Transaction {
	return b.log
}

// Writes returns the write transactions only.
func (b *Bus) Writes() []Transaction {
	var res []Transaction
	for _, t := range b.log {
		if t.Read == 0 {
			res = append(res, t)
		}
	}
	return res
}

// Reads returns the read transactions only.
func (b *Bus) Reads() []Transaction {
	var res []Transaction
	for _, t := range b.log {
		if t.Read > 0 {
			res = append(res, t)
		}
	}
	return res
}

func (b *Bus) ClearLog() {
	b.log = nil
}

func (b *Bus) Running() bool              { return b.running }
func (b *Bus) Begins() int                { return b.begins }
func (b *Bus) Ends() int                  { return b.ends }
func (b *Bus) Clocks() []physic.Frequency { return b.clocks }
func (b *Bus) BufferSize() int            { return b.config.BufferSize }
func (b *Bus) Family() twowire.Family     { return b.config.Family }

func (b *Bus) Begin() error {
	if b.beginErr != nil {
		return b.beginErr
	}
	b.running = true
	b.begins++
	return nil
}

func (b *Bus) SetClock(f physic.Frequency) error {
	b.clocks = append(b.clocks, f)
	return nil
}

func (b *Bus) End() {
	b.running = false
	b.ends++
}

func (b *Bus) BeginTransmission(addr byte) {
	b.open = true
	b.addr = addr
	b.tx = b.tx[:0]
	b.overflow = false
}

func (b *Bus) PutByte(v byte) int {
	if !b.open || len(b.tx) >= b.config.BufferSize {
		b.overflow = true
		return 0
	}
	b.tx = append(b.tx, v)
	return 1
}

func (b *Bus) EndTransmission(stop bool) uint8 {
	t := Transaction{Addr: b.addr, Write: append([]byte(nil), b.tx...), Stop: stop}
	call := b.endCalls
	b.endCalls++
	b.open = false
	switch status, ok := b.failEnd[call]; {
	case ok:
		t.Status = status
	case b.overflow:
		t.Status = uint8(twowire.ErrorBuffer)
	case b.addr == twowire.AddressGeneralCall:
		t.Status = b.generalCall(t.Write)
	default:
		d, present := b.devices[b.addr]
		if !present {
			t.Status = b.config.Family.NackAddress()
			break
		}
		d.Received = append(d.Received, t.Write...)
	}
	b.log = append(b.log, t)
	return t.Status
}

func (b *Bus) generalCall(data []byte) uint8 {
	if len(b.devices) == 0 {
		return b.config.Family.NackAddress()
	}
	if len(data) == 1 && data[0] == twowire.GeneralCallReset {
		for _, d := range b.devices {
			d.Resets++
		}
	}
	return 0
}

// RequestFrom delivers at most n bytes of the device response; a device
// running out of response data produces a short read.
func (b *Bus) RequestFrom(addr byte, n int, stop bool) int {
	b.rx = b.rx[:0]
	t := Transaction{Addr: addr, Read: n, Stop: stop}
	d, present := b.devices[addr]
	if !present {
		t.Status = b.config.Family.NackAddress()
		b.log = append(b.log, t)
		return 0
	}
	got := min(n, b.config.BufferSize, len(d.Response))
	b.rx = append(b.rx, d.Response[:got]...)
	d.Response = d.Response[got:]
	b.log = append(b.log, t)
	return got
}

func (b *Bus) Available() int {
	return len(b.rx)
}

func (b *Bus) GetByte() byte {
	if len(b.rx) == 0 {
		return 0xFF
	}
	v := b.rx[0]
	b.rx = b.rx[1:]
	return v
}

var _ twowire.PinMapper = &PinnedBus{}

// PinnedBus is a simulated peripheral with software assigned pins.
type PinnedBus struct {
	*Bus
	sda uint8
	scl uint8
}

func NewPinned(opts ...Opt) *PinnedBus {
	return &PinnedBus{Bus: New(opts...)}
}

func (b *PinnedBus) SetPins(sda, scl uint8) error {
	if sda == scl {
		return ErrPins
	}
	b.sda = sda
	b.scl = scl
	return nil
}

func (b *PinnedBus) Pins() (sda, scl uint8) {
	return b.sda, b.scl
}
