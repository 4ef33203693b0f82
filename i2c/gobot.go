package i2c

import (
	"context"
	"fmt"
	"sync"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/twowire"
)

var _ twowire.I2CBus = &GobotBus{}

// GobotBus runs transfers through gobot generic drivers, one per peer
// address, started lazily on the given connector and bus number.
type GobotBus struct {
	connector gobot.Connector
	bus       int
	mx        sync.Mutex
	drivers   map[byte]*gobot.GenericDriver
}

func NewGobotBus(connector gobot.Connector, bus int) *GobotBus {
	return &GobotBus{
		connector: connector,
		bus:       bus,
		drivers:   make(map[byte]*gobot.GenericDriver),
	}
}

func (b *GobotBus) driver(address byte) (*gobot.GenericDriver, error) {
	if d, ok := b.drivers[address]; ok {
		return d, nil
	}
	d := gobot.NewGenericDriver(b.connector, fmt.Sprintf("twowire-%02x", address), int(address), func(c gobot.Config) {
		c.SetBus(b.bus)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("could not start driver for %#02x: %w", address, err)
	}
	b.drivers[address] = d
	return d, nil
}

// WriteToAddr writes buffer to the peer. An empty buffer probes the peer
// with a one byte read, the closest thing a gobot connection offers to an
// address-only transaction.
func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	if len(buffer) == 0 {
		err = d.Read(make([]byte, 1))
		if err != nil {
			return fmt.Errorf("%w: %v", twowire.ErrNackAddress, err)
		}
		return nil
	}
	err = d.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#02x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return err
	}
	err = d.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#02x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close halts every driver started by the bus.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var first error
	for addr, d := range b.drivers {
		if err := d.Halt(); err != nil && first == nil {
			first = fmt.Errorf("could not halt driver for %#02x: %w", addr, err)
		}
		delete(b.drivers, addr)
	}
	return first
}
