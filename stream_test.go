package twowire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/twowire"
	"github.com/mklimuk/twowire/sim"
)

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name    string
		opts    []twowire.SessionOpt
		command uint16
		want    []byte
	}{
		{"byte command", nil, 0x0023, []byte{0x23}},
		{"word command", nil, 0x1234, []byte{0x12, 0x34}},
		{"all bytes", []twowire.SessionOpt{twowire.WithStreamBytesAll()}, 0x0023, []byte{0x00, 0x23}},
		{"lsb first", []twowire.SessionOpt{twowire.WithStreamLSB()}, 0x1234, []byte{0x34, 0x12}},
		{"lsb first zero low byte", []twowire.SessionOpt{twowire.WithStreamLSB()}, 0x1200, []byte{0x12}},
		{"lsb first all bytes", []twowire.SessionOpt{twowire.WithStreamLSB(), twowire.WithStreamBytesAll()}, 0x1200, []byte{0x00, 0x12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := sim.New()
			s := connected(t, bus, tt.opts...)
			require.NoError(t, s.SendCommand(tt.command))
			assert.Equal(t, tt.want, bus.Device(peer).Received)
			assert.Equal(t, tt.command, s.LastCommand())
		})
	}
}

func TestSendCommandData(t *testing.T) {
	bus := sim.New()
	s := connected(t, bus)
	require.NoError(t, s.SendCommandData(0x01, 0x0203))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, bus.Device(peer).Received)
	assert.Len(t, bus.Writes(), 1)
	assert.Equal(t, uint16(0x01), s.LastCommand())

	s.SetStreamBytesAll(true)
	bus.Device(peer).Received = nil
	require.NoError(t, s.SendCommandData(0x01, 0x0003))
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x03}, bus.Device(peer).Received)
}
