package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeReadCoilsRequest(t *testing.T) {
	pdu, err := encodeReadCoilsRequest(0x0013, 0x0025)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x13, 0x00, 0x25}, pdu)
}

func TestEncodeReadCoilsRequestRejectsOutOfRangeQuantity(t *testing.T) {
	_, err := encodeReadCoilsRequest(0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = encodeReadCoilsRequest(0, 2001)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDecodeReadCoilsResponse(t *testing.T) {
	// 19 coil states packed LSB-first into 3 bytes, from the classic FC01 example.
	pdu := []byte{0x01, 0x03, 0xCD, 0x6B, 0x05}
	status, err := decodeReadCoilsResponse(19, pdu)
	require.NoError(t, err)
	require.Len(t, status, 19)
	assert.True(t, status[0])
	assert.False(t, status[1])
	assert.True(t, status[2])
	assert.True(t, status[3])
}

func TestDecodeReadCoilsResponseByteCountMismatch(t *testing.T) {
	_, err := decodeReadCoilsResponse(19, []byte{0x01, 0x02, 0xCD, 0x6B})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ByteCountMismatch, de.Kind)
}

func TestEncodeDecodeWriteSingleCoilRoundTrip(t *testing.T) {
	pdu, err := encodeWriteSingleCoilRequest(0x00AC, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x00, 0xAC, 0xFF, 0x00}, pdu)
	assert.NoError(t, decodeWriteSingleCoilResponse(0x00AC, true, pdu))
	assert.Error(t, decodeWriteSingleCoilResponse(0x00AC, false, pdu))
}

func TestDecodeWriteSingleCoilResponseRejectsInvalidValue(t *testing.T) {
	pdu := []byte{0x05, 0x00, 0xAC, 0x12, 0x34}
	err := decodeWriteSingleCoilResponse(0x00AC, true, pdu)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidCoilValue, de.Kind)
}

func TestEncodeReadHoldingRegistersRequest(t *testing.T) {
	pdu, err := encodeReadHoldingRegistersRequest(0x006B, 0x0003)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x00, 0x6B, 0x00, 0x03}, pdu)
}

func TestDecodeReadHoldingRegistersResponse(t *testing.T) {
	pdu := []byte{0x03, 0x06, 0x02, 0x2B, 0x00, 0x00, 0x00, 0x64}
	regs, err := decodeReadHoldingRegistersResponse(3, pdu)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x022B, 0x0000, 0x0064}, regs)
}

func TestEncodeWriteMultipleRegistersRequest(t *testing.T) {
	pdu, err := encodeWriteMultipleRegistersRequest(0x0001, []uint16{0x000A, 0x0102})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}, pdu)
}

func TestEncodeReadWriteMultipleRegistersRequestRejectsOutOfRangeQuantities(t *testing.T) {
	_, err := encodeReadWriteMultipleRegistersRequest(0, 126, 0, []uint16{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = encodeReadWriteMultipleRegistersRequest(0, 1, 0, make([]uint16, 122))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestRegisterRoundTrip covers invariant #1: encoding then decoding a
// register read response recovers exactly the values that went in.
func TestRegisterRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := uint16(rapid.IntRange(1, 125).Draw(t, "qty"))
		values := make([]uint16, qty)
		for i := range values {
			values[i] = uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "value"))
		}
		count := byte(2 * qty)
		pdu := append([]byte{byte(FuncReadHoldingRegisters), count}, encodeRegistersForTest(values)...)
		got, err := decodeReadHoldingRegistersResponse(qty, pdu)
		require.NoError(t, err)
		assert.Equal(t, values, got)
	})
}

// TestBitRoundTrip covers invariant #2: packing then unpacking a coil status
// slice recovers exactly the bits that went in.
func TestBitRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		qty := uint16(rapid.IntRange(1, 2000).Draw(t, "qty"))
		status := make([]bool, qty)
		for i := range status {
			status[i] = rapid.Bool().Draw(t, "bit")
		}
		packed := packBits(status)
		assert.Equal(t, status, unpackBits(qty, packed))
	})
}

func encodeRegistersForTest(values []uint16) []byte {
	buf := make([]byte, 0, 2*len(values))
	for _, v := range values {
		buf = append(buf, byte(v>>8), byte(v))
	}
	return buf
}
