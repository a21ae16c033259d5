package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestNextTCPIDRolloverSequence covers invariant #3: generating 65536
// successive identifiers (with nothing held) yields 0..65535 in order, and
// generating 131072 yields two full cycles.
func TestNextTCPIDRolloverSequence(t *testing.T) {
	r := &Registry{tcpIDToHandle: make(map[uint16]uint64)}
	for cycle := 0; cycle < 2; cycle++ {
		for want := 0; want < 1<<16; want++ {
			id, ok := r.nextTCPID()
			require.True(t, ok)
			assert.Equal(t, uint16(want), id)
		}
	}
}

// TestNextTCPIDFailsWhenFullyOccupied covers ErrTooManyOutstanding: once
// every one of the 65536 identifiers is held, allocation fails.
func TestNextTCPIDFailsWhenFullyOccupied(t *testing.T) {
	r := &Registry{tcpIDToHandle: make(map[uint16]uint64)}
	for i := 0; i < 1<<16; i++ {
		r.tcpIDToHandle[uint16(i)] = uint64(i) + 1
	}
	_, ok := r.nextTCPID()
	assert.False(t, ok)
}

// TestMBAPRoundTrip covers invariant #4: decoding the re-assembled MBAP
// frame for any (tid, uid, pdu) yields the same triple.
func TestMBAPRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tid := uint16(rapid.IntRange(0, 0xFFFF).Draw(t, "tid"))
		uid := byte(rapid.IntRange(0, 0xFF).Draw(t, "uid"))
		pduLen := rapid.IntRange(1, 253).Draw(t, "pduLen")
		pdu := rapid.SliceOfN(rapid.Byte(), pduLen, pduLen).Draw(t, "pdu")

		adu, err := encodeMBAP(tid, uid, pdu)
		require.NoError(t, err)

		frames, err := NewTCPFramer().Feed(adu)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Equal(t, tid, frames[0].TransactionID)
		assert.Equal(t, uid, frames[0].UnitID)
		assert.Equal(t, pdu, frames[0].PDU)
	})
}
