package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRTUFrameRoundTrip(t *testing.T) {
	frame, err := encodeRTUFrame(0x11, []byte{0x03, 0x00, 0x6B, 0x00, 0x03})
	require.NoError(t, err)

	decoded, err := decodeRTUFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), decoded.UnitID)
	assert.Equal(t, []byte{0x03, 0x00, 0x6B, 0x00, 0x03}, decoded.PDU)
}

func TestDecodeRTUFrameRejectsBadCRC(t *testing.T) {
	frame, _ := encodeRTUFrame(0x11, []byte{0x03, 0x00, 0x6B, 0x00, 0x03})
	frame[len(frame)-1] ^= 0xFF
	_, err := decodeRTUFrame(frame)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, CrcMismatch, de.Kind)
}

func TestDecodeRTUFrameRejectsShortFrame(t *testing.T) {
	_, err := decodeRTUFrame([]byte{0x11, 0x03})
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, Truncated, de.Kind)
}

func TestRTUFramerCompletesOnSilence(t *testing.T) {
	f := NewRTUFramer(19200)
	frame, _ := encodeRTUFrame(0x11, []byte{0x03, 0x00, 0x6B, 0x00, 0x03})

	base := time.Now()
	for i, b := range frame {
		_, err := f.Push(b, base.Add(time.Duration(i)*time.Microsecond))
		require.NoError(t, err)
	}

	got, err := f.Flush(base.Add(2 * time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, byte(0x11), got.UnitID)
}

func TestRTUFramerDiscardsOnMidGapSilence(t *testing.T) {
	f := NewRTUFramer(19200)
	frame, _ := encodeRTUFrame(0x11, []byte{0x03, 0x00, 0x6B, 0x00, 0x03})

	base := time.Now()
	_, err := f.Push(frame[0], base)
	require.NoError(t, err)

	// A gap in [t1.5, t3.5) discards the partial frame as malformed.
	got, err := f.Push(frame[1], base.Add(time.Millisecond))
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestRTUFramerReadyToTransmitGating(t *testing.T) {
	f := NewRTUFramer(19200)
	now := time.Now()
	assert.True(t, f.ReadyToTransmit(now))
	f.MarkTransmitted(now)
	assert.False(t, f.ReadyToTransmit(now.Add(time.Microsecond)))
	assert.True(t, f.ReadyToTransmit(now.Add(2*time.Millisecond)))
}

func TestCharTimesFixedAboveThreshold(t *testing.T) {
	t15, t35 := CharTimes(19200)
	assert.Equal(t, 750*time.Microsecond, t15)
	assert.Equal(t, 1750*time.Microsecond, t35)
}

func TestCharTimesDerivedBelowThreshold(t *testing.T) {
	t15, t35 := CharTimes(9600)
	assert.Greater(t, t35, t15)
	assert.Greater(t, t15, time.Duration(0))
}
