package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/twowire"
)

type recordedTx struct {
	addr uint16
	w    []byte
	r    int
}

type fakeTx struct {
	calls    []recordedTx
	response []byte
	err      error
}

func (f *fakeTx) Tx(addr uint16, w, r []byte) error {
	f.calls = append(f.calls, recordedTx{addr: addr, w: append([]byte(nil), w...), r: len(r)})
	copy(r, f.response)
	return f.err
}

func TestTxBus(t *testing.T) {
	tx := &fakeTx{response: []byte{0x0A, 0x0B}}
	bus := NewTxBus(tx)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, 0x40, []byte{0x01}))
	buf := make([]byte, 2)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x40, buf))
	assert.Equal(t, []byte{0x0A, 0x0B}, buf)
	require.NoError(t, bus.WriteReadAddr(ctx, 0x40, []byte{0x02}, buf))
	require.NoError(t, bus.Release(ctx))

	assert.Equal(t, []recordedTx{
		{addr: 0x40, w: []byte{0x01}},
		{addr: 0x40, r: 2},
		{addr: 0x40, w: []byte{0x02}, r: 2},
	}, tx.calls)
}

func TestTxBusErrors(t *testing.T) {
	tx := &fakeTx{err: assert.AnError}
	bus := NewTxBus(tx)
	assert.ErrorIs(t, bus.WriteToAddr(context.Background(), 0x40, nil), assert.AnError)
	assert.ErrorIs(t, bus.ReadFromAddr(context.Background(), 0x40, make([]byte, 1)), assert.AnError)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.WriteToAddr(ctx, 0x40, nil), context.Canceled)
	assert.Len(t, tx.calls, 2)
}

func TestTxBusSessionRepeatedStart(t *testing.T) {
	tx := &fakeTx{response: []byte{0xBE, 0xEF}}
	s := twowire.New(NewBridge(context.Background(), NewTxBus(tx)))
	require.NoError(t, s.SetAddress(0x23))
	buf := make([]byte, 2)
	require.NoError(t, s.ReceiveCommand(0x05, buf, false))
	assert.Equal(t, []byte{0xBE, 0xEF}, buf)
	require.NoError(t, s.SendCommand(0x06))

	assert.Equal(t, []recordedTx{
		{addr: 0x23},
		{addr: 0x23, w: []byte{0x05}, r: 2},
		{addr: 0x23, w: []byte{0x06}},
	}, tx.calls)
}
