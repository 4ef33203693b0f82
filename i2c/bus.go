package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/twowire"
)

var _ twowire.I2CBus = &GenericBus{}

// GenericBus is a host I2C bus (Linux i2c-dev and friends) opened through
// periph.io.
type GenericBus struct {
	*TxBus
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		TxBus: NewTxBus(bus),
		bus:   bus,
	}, nil
}

func (b *GenericBus) SetSpeed(_ context.Context, f physic.Frequency) error {
	err := b.bus.SetSpeed(f)
	if err != nil {
		return fmt.Errorf("could not set i2c bus speed to %s: %w", f, err)
	}
	return nil
}

// Pins returns the names of the SDA and SCL lines when the host exposes
// them.
func (b *GenericBus) Pins() (sda, scl string) {
	p, ok := b.bus.(i2c.Pins)
	if !ok {
		return "", ""
	}
	return p.SDA().Name(), p.SCL().Name()
}

func (b *GenericBus) String() string {
	return b.bus.String()
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
