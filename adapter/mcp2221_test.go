package adapter

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/twowire"
	"github.com/mklimuk/twowire/i2c"
	"github.com/mklimuk/twowire/wirectx"
)

type fakePort struct {
	requests  [][]byte
	responses [][]byte
	closed    int
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.requests = append(p.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	req := p.requests[len(p.requests)-1]
	res := make([]byte, reportSize)
	res[0] = req[0]
	if len(p.responses) > 0 {
		res = p.responses[0]
		p.responses = p.responses[1:]
	}
	return copy(b, res), nil
}

func (p *fakePort) Close() error {
	p.closed++
	return nil
}

func report(values ...byte) []byte {
	res := make([]byte, reportSize)
	copy(res, values)
	return res
}

func newTestAdapter(port *fakePort) *MCP2221 {
	return NewMCP2221(WithResponseWait(0), WithOpener(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return port, nil
	}))
}

func TestWriteToAddr(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port)
	err := d.WriteToAddr(context.Background(), 0x23, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Len(t, port.requests, 2)
	assert.Equal(t, []byte{cmdWrite, 0x02, 0x00, 0x46, 0x01, 0x02}, port.requests[0][:6])
	assert.Equal(t, byte(cmdStatus), port.requests[1][0])
	assert.Equal(t, 2, port.closed)
}

func TestWriteToAddrNack(t *testing.T) {
	status := report(cmdStatus)
	status[20] = maskAddrNack
	port := &fakePort{responses: [][]byte{report(cmdWrite), status, report(cmdStatus)}}
	d := newTestAdapter(port)
	err := d.WriteToAddr(context.Background(), 0x23, nil)
	require.ErrorIs(t, err, twowire.ErrNackAddress)
	require.Len(t, port.requests, 3)
	assert.Equal(t, byte(subCancel), port.requests[2][2])
}

func TestWriteToAddrBusy(t *testing.T) {
	port := &fakePort{responses: [][]byte{report(cmdWrite, 0x01)}}
	d := newTestAdapter(port)
	err := d.WriteToAddr(context.Background(), 0x23, []byte{0x10})
	assert.ErrorIs(t, err, twowire.ErrBusBusy)
}

func TestWriteToAddrTooLong(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port)
	err := d.WriteToAddr(context.Background(), 0x23, make([]byte, BufferSize+1))
	assert.Error(t, err)
	assert.Empty(t, port.requests)
}

func TestReadFromAddr(t *testing.T) {
	port := &fakePort{responses: [][]byte{
		report(cmdRead),
		report(cmdGetData, 0x00, 0x00, 0x03, 0xAA, 0xBB, 0xCC),
	}}
	d := newTestAdapter(port)
	buf := make([]byte, 3)
	err := d.ReadFromAddr(context.Background(), 0x23, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, buf)
	assert.Equal(t, []byte{cmdRead, 0x03, 0x00, 0x47}, port.requests[0][:4])
}

func TestReadFromAddrErrors(t *testing.T) {
	tests := []struct {
		name      string
		responses [][]byte
		target    error
	}{
		{"engine error", [][]byte{report(cmdRead), report(cmdGetData, readEngineErr)}, twowire.ErrNackAddress},
		{"busy", [][]byte{report(cmdRead, 0x01)}, twowire.ErrBusBusy},
		{"short data", [][]byte{report(cmdRead), report(cmdGetData, 0x00, 0x00, 0x01, 0xAA)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestAdapter(&fakePort{responses: tt.responses})
			err := d.ReadFromAddr(context.Background(), 0x23, make([]byte, 2))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestSetSpeed(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port)
	ctx := context.Background()
	require.NoError(t, d.SetSpeed(ctx, 100*physic.KiloHertz))
	assert.Equal(t, byte(subSetSpeed), port.requests[0][3])
	assert.Equal(t, byte(117), port.requests[0][4])

	port.responses = [][]byte{report(cmdStatus, 0x00, 0x00, speedNotSet)}
	assert.ErrorIs(t, d.SetSpeed(ctx, 400*physic.KiloHertz), twowire.ErrBusBusy)
	assert.Error(t, d.SetSpeed(ctx, physic.Hertz))
}

func TestWriteToAddrNackState(t *testing.T) {
	status := report(cmdStatus)
	status[8] = stateAddrNack
	port := &fakePort{responses: [][]byte{report(cmdWrite), status, report(cmdStatus)}}
	err := newTestAdapter(port).WriteToAddr(context.Background(), 0x50, nil)
	assert.ErrorIs(t, err, twowire.ErrNackAddress)
}

func TestBufferToStatus(t *testing.T) {
	buf := report()
	buf[8] = 0x25
	buf[9], buf[10] = 0x02, 0x01
	buf[11] = 0x05
	buf[14] = 117
	buf[16] = 0x46
	buf[20] = maskAddrNack
	status := bufferToStatus(buf)
	assert.Equal(t, 0x25, status.I2CState)
	assert.Equal(t, uint16(0x0102), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(5), status.LastWriteSentSize)
	assert.Equal(t, 117, status.I2CSpeedDivider)
	assert.Equal(t, "4600", status.CurrentAddress)
	assert.True(t, status.AddressNack)
}

func TestSessionOpenSelectsAdapter(t *testing.T) {
	port := &fakePort{}
	var selected []int
	d := NewMCP2221(WithResponseWait(0), WithOpener(func(ctx context.Context) (io.ReadWriteCloser, error) {
		idx, ok := wirectx.Device(ctx)
		if !ok {
			return nil, ErrAmbiguous
		}
		selected = append(selected, idx)
		return port, nil
	}))

	ctx := wirectx.SetDevice(context.Background(), 1)
	s := twowire.New(i2c.NewBridge(ctx, d, i2c.WithBufferSize(BufferSize)))
	require.NoError(t, s.Open())
	assert.Equal(t, []int{1, 1}, selected, "init and clock setup use the selected adapter")
	assert.Equal(t, byte(subSetSpeed), port.requests[0][3])

	s = twowire.New(i2c.NewBridge(context.Background(), d))
	err := s.Open()
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.ErrorIs(t, err, twowire.ErrorNackOther)
	assert.Contains(t, err.Error(), "ambiguous device identification")
}
