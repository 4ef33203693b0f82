package i2c

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
)

// MockI2CBus is a mock implementation of twowire.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSpeedBus adds clock and init control to the mock bus.
type MockSpeedBus struct {
	MockI2CBus
}

func (m *MockSpeedBus) SetSpeed(ctx context.Context, f physic.Frequency) error {
	return m.Called(ctx, f).Error(0)
}

func (m *MockSpeedBus) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockWriteReadBus adds combined write-read transactions to the mock bus.
type MockWriteReadBus struct {
	MockI2CBus
}

func (m *MockWriteReadBus) WriteReadAddr(ctx context.Context, address byte, w, r []byte) error {
	args := m.Called(ctx, address, w, r)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(r) {
		copy(r, data)
	}
	return args.Error(1)
}

func empty() interface{} {
	return mock.MatchedBy(func(b []byte) bool { return len(b) == 0 })
}

func TestBridgeWrite(t *testing.T) {
	ctx := context.Background()
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", ctx, byte(0x23), []byte{0x01, 0x02}).Return(nil).Once()
	b := NewBridge(ctx, bus)
	b.BeginTransmission(0x23)
	assert.Equal(t, 1, b.PutByte(0x01))
	assert.Equal(t, 1, b.PutByte(0x02))
	assert.Equal(t, uint8(0), b.EndTransmission(true))
	bus.AssertExpectations(t)
}

func TestBridgeOverflow(t *testing.T) {
	bus := &MockI2CBus{}
	b := NewBridge(context.Background(), bus, WithBufferSize(2))
	b.BeginTransmission(0x23)
	b.PutByte(0x01)
	b.PutByte(0x02)
	assert.Equal(t, 0, b.PutByte(0x03))
	assert.Equal(t, uint8(twowire.ErrorBuffer), b.EndTransmission(true))
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 2, b.BufferSize())
}

func TestBridgeWriteStatus(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		err    error
		status uint8
	}{
		{"nack address", []byte{0x01}, fmt.Errorf("write: %w", twowire.ErrNackAddress), 2},
		{"nack data", []byte{0x01}, twowire.ErrNackData, 3},
		{"busy", []byte{0x01}, twowire.ErrBusBusy, 4},
		{"timeout", []byte{0x01}, twowire.ErrTimeout, 4},
		{"unknown", []byte{0x01}, errors.New("io error"), 4},
		{"unknown on probe", nil, errors.New("io error"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &MockI2CBus{}
			bus.On("WriteToAddr", mock.Anything, byte(0x23), mock.Anything).Return(tt.err)
			b := NewBridge(context.Background(), bus)
			b.BeginTransmission(0x23)
			for _, v := range tt.data {
				b.PutByte(v)
			}
			assert.Equal(t, tt.status, b.EndTransmission(true))
		})
	}
}

func TestBridgeRead(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("ReadFromAddr", mock.Anything, byte(0x23), mock.Anything).Return([]byte{0xAA, 0xBB}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(0x24), mock.Anything).Return(nil, twowire.ErrNackAddress).Once()
	b := NewBridge(context.Background(), bus)

	assert.Equal(t, 2, b.RequestFrom(0x23, 2, true))
	assert.Equal(t, 2, b.Available())
	assert.Equal(t, byte(0xAA), b.GetByte())
	assert.Equal(t, byte(0xBB), b.GetByte())
	assert.Equal(t, byte(0xFF), b.GetByte())

	assert.Equal(t, 0, b.RequestFrom(0x24, 2, true))
	assert.Equal(t, 0, b.Available())
	assert.Equal(t, 0, b.RequestFrom(0x23, 0, true))
	bus.AssertExpectations(t)
}

type ctxKey struct{}

func TestBridgeLifecycle(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "adapter")
	bus := &MockSpeedBus{}
	bus.On("Init", ctx).Return(nil).Once()
	bus.On("SetSpeed", ctx, twowire.ClockFast).Return(nil).Once()
	bus.On("Release", ctx).Return(nil).Once()
	b := NewBridge(ctx, bus)
	require.NoError(t, b.Begin())
	require.NoError(t, b.SetClock(twowire.ClockFast))
	b.End()
	assert.Equal(t, twowire.FamilyWire, b.Family())
	bus.AssertExpectations(t)
}

func TestBridgeInitFailure(t *testing.T) {
	bus := &MockSpeedBus{}
	bus.On("Init", mock.Anything).Return(assert.AnError)
	b := NewBridge(context.Background(), bus)
	assert.ErrorIs(t, b.Begin(), assert.AnError)
}

func TestBridgePlainBus(t *testing.T) {
	bus := &MockI2CBus{}
	b := NewBridge(context.Background(), bus, WithBufferSize(0))
	assert.NoError(t, b.Begin())
	assert.NoError(t, b.SetClock(twowire.ClockFast))
	assert.Equal(t, DefaultBufferSize, b.BufferSize())
}

func TestBridgeSession(t *testing.T) {
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x23), empty()).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x23), []byte{0, 1, 2, 3}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x23), []byte{4, 5}).Return(nil).Once()
	s := twowire.New(NewBridge(context.Background(), bus, WithBufferSize(4)))
	require.NoError(t, s.SetAddress(0x23))
	require.NoError(t, s.Send([]byte{0, 1, 2, 3, 4, 5}, false))
	bus.AssertExpectations(t)
}

func TestBridgeWriteRead(t *testing.T) {
	ctx := context.Background()
	bus := &MockWriteReadBus{}
	bus.On("WriteReadAddr", ctx, byte(0x23), []byte{0x10}, mock.Anything).Return([]byte{0xAA, 0xBB}, nil).Once()
	b := NewBridge(ctx, bus)
	b.BeginTransmission(0x23)
	b.PutByte(0x10)
	assert.Equal(t, uint8(0), b.EndTransmission(false))
	assert.Equal(t, 2, b.RequestFrom(0x23, 2, true))
	assert.Equal(t, byte(0xAA), b.GetByte())
	assert.Equal(t, byte(0xBB), b.GetByte())
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestBridgeHeldWriteFlushed(t *testing.T) {
	tests := []struct {
		name  string
		next  func(b *Bridge)
		calls []string
	}{
		{"next transmission", func(b *Bridge) {
			b.BeginTransmission(0x23)
			b.PutByte(0x02)
			b.EndTransmission(true)
		}, []string{"WriteToAddr", "WriteToAddr"}},
		{"read from other peer", func(b *Bridge) {
			b.RequestFrom(0x24, 1, true)
		}, []string{"WriteToAddr", "ReadFromAddr"}},
		{"end", func(b *Bridge) {
			b.End()
		}, []string{"WriteToAddr", "Release"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &MockWriteReadBus{}
			bus.On("WriteToAddr", mock.Anything, byte(0x23), []byte{0x01}).Return(nil).Once()
			bus.On("WriteToAddr", mock.Anything, byte(0x23), []byte{0x02}).Return(nil).Maybe()
			bus.On("ReadFromAddr", mock.Anything, byte(0x24), mock.Anything).Return([]byte{0xCC}, nil).Maybe()
			bus.On("Release", mock.Anything).Return(nil).Maybe()
			b := NewBridge(context.Background(), bus)
			b.BeginTransmission(0x23)
			b.PutByte(0x01)
			require.Equal(t, uint8(0), b.EndTransmission(false))
			bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
			tt.next(b)
			require.Len(t, bus.Calls, len(tt.calls))
			for i, method := range tt.calls {
				assert.Equal(t, method, bus.Calls[i].Method)
			}
			assert.Equal(t, []byte{0x01}, bus.Calls[0].Arguments.Get(2))
		})
	}
}

func TestBridgeHeldWriteFailure(t *testing.T) {
	bus := &MockWriteReadBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x23), mock.Anything).Return(twowire.ErrNackData).Once()
	b := NewBridge(context.Background(), bus)
	b.BeginTransmission(0x23)
	b.PutByte(0x01)
	require.Equal(t, uint8(0), b.EndTransmission(false))
	b.BeginTransmission(0x23)
	b.PutByte(0x02)
	assert.Equal(t, uint8(twowire.ErrorNackData), b.EndTransmission(true))
	bus.AssertExpectations(t)
}

func TestBridgeReceiveCommandRepeatedStart(t *testing.T) {
	bus := &MockWriteReadBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x23), empty()).Return(nil).Once()
	bus.On("WriteReadAddr", mock.Anything, byte(0x23), []byte{0x10}, mock.Anything).Return([]byte{0xBE, 0xEF}, nil).Once()
	s := twowire.New(NewBridge(context.Background(), bus))
	require.NoError(t, s.SetAddress(0x23))
	buf := make([]byte, 2)
	require.NoError(t, s.ReceiveCommand(0x10, buf, false))
	assert.Equal(t, []byte{0xBE, 0xEF}, buf)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
}
