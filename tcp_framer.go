package modbus

import (
	"encoding/binary"
	"fmt"
)

const mbapHeaderLen = 7

// maxPDULen is the largest a single PDU may be (§3): the MBAP length field
// constrains the frame to PDU ≤ 253 bytes (unit-id byte + PDU ≤ 254).
const maxPDULen = 253

// TCPFrame is one decoded MBAP frame: the correlation tag, the addressed
// unit, and the raw PDU bytes it carried.
type TCPFrame struct {
	TransactionID uint16
	UnitID        byte
	PDU           []byte
	// Suspect is set when the protocol identifier was not 0x0000. The frame
	// is still emitted — per §4.2, a client ignores frames whose
	// transaction id it does not hold, so a suspect frame simply won't
	// match anything and is dropped by the registry like any other miss.
	Suspect bool
}

// encodeMBAP wraps a PDU in the 7-byte MBAP header (§4.2).
func encodeMBAP(transactionID uint16, unitID byte, pdu []byte) ([]byte, error) {
	if len(pdu) < 1 || len(pdu) > maxPDULen {
		return nil, ErrInvalidArgument
	}
	adu := make([]byte, mbapHeaderLen+len(pdu))
	binary.BigEndian.PutUint16(adu[0:2], transactionID)
	binary.BigEndian.PutUint16(adu[2:4], 0x0000)
	binary.BigEndian.PutUint16(adu[4:6], uint16(1+len(pdu)))
	adu[6] = unitID
	copy(adu[7:], pdu)
	return adu, nil
}

// TCPFramer is a streaming, resumable MBAP decoder: bytes can be Fed in any
// split and the same frames come out the other end (invariant #6).
type TCPFramer struct {
	buf []byte
}

// NewTCPFramer returns a framer with empty scratch state.
func NewTCPFramer() *TCPFramer {
	return &TCPFramer{}
}

// Feed appends newly arrived bytes and returns every complete frame they
// allow decoding. An OversizedFrame error means the byte stream is
// desynchronized and the caller must disconnect (§4.2).
func (f *TCPFramer) Feed(data []byte) ([]TCPFrame, error) {
	f.buf = append(f.buf, data...)

	var frames []TCPFrame
	for {
		if len(f.buf) < mbapHeaderLen {
			return frames, nil
		}
		length := binary.BigEndian.Uint16(f.buf[4:6])
		if length < 2 {
			return frames, newDecodeError(OversizedFrame, fmt.Sprintf("mbap length field %d under 2 (no room for unit id + pdu)", length))
		}
		if length > 254 {
			return frames, newDecodeError(OversizedFrame, fmt.Sprintf("mbap length field %d exceeds 254", length))
		}
		total := mbapHeaderLen + int(length) - 1 // length includes the unit-id byte
		if len(f.buf) < total {
			return frames, nil
		}

		transactionID := binary.BigEndian.Uint16(f.buf[0:2])
		protocolID := binary.BigEndian.Uint16(f.buf[2:4])
		unitID := f.buf[6]
		pdu := make([]byte, total-mbapHeaderLen)
		copy(pdu, f.buf[mbapHeaderLen:total])

		frames = append(frames, TCPFrame{
			TransactionID: transactionID,
			UnitID:        unitID,
			PDU:           pdu,
			Suspect:       protocolID != 0x0000,
		})

		f.buf = f.buf[total:]
	}
}
