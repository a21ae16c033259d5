package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCRC16KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{name: "ReadHoldingRegistersRequest", data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}, want: 0x0BC4},
		{name: "SingleByte", data: []byte{0x01}, want: 0x807E},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, crc16(tt.data))
		})
	}
}

// TestCRC16AppendedTrailerVerifies checks invariant #5: appending a buffer's
// own CRC-16 (little-endian) always verifies.
func TestCRC16AppendedTrailerVerifies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 250).Draw(t, "data")
		sum := crc16(data)
		frame := append(append([]byte{}, data...), byte(sum), byte(sum>>8))
		assert.True(t, crc16Verify(frame))
	})
}

func TestCRC16VerifyRejectsShortFrame(t *testing.T) {
	assert.False(t, crc16Verify([]byte{0x01}))
	assert.False(t, crc16Verify(nil))
}
