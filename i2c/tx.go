package i2c

import (
	"context"
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/twowire"
)

var (
	_ twowire.I2CBus = &TxBus{}
	_ WriteReader    = &TxBus{}
)

// TxBus turns a bus exposing a combined write-then-read Tx into a
// twowire.I2CBus. TinyGo machine.I2C, tinygo drivers shims and periph.io
// buses all have this shape.
type TxBus struct {
	tx drivers.I2C
}

func NewTxBus(tx drivers.I2C) *TxBus {
	return &TxBus{tx: tx}
}

func (b *TxBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.tx.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.tx.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

// WriteReadAddr writes w and reads r with a repeated start in between.
func (b *TxBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.tx.Tx(uint16(address), w, r)
	if err != nil {
		return fmt.Errorf("could not transfer on i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *TxBus) Release(ctx context.Context) error {
	return nil
}
