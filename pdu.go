package modbus

import "encoding/binary"

// A PDU is a Modbus Protocol Data Unit: the function-code byte followed by
// its function-specific payload, independent of transport. Request and
// response encodings for the same function code differ, so this codec is
// a set of per-function builder/parser pairs rather than one symmetric
// Encode/Decode — the asymmetry is intrinsic to the protocol (§4.1).

// encodeReadCoilsRequest builds FC 0x01: addr:u16, qty:u16 (1..2000).
func encodeReadCoilsRequest(addr, qty uint16) ([]byte, error) {
	if qty < 1 || qty > 2000 {
		return nil, ErrInvalidArgument
	}
	return put(5, byte(FuncReadCoils), addr, qty), nil
}

// decodeReadCoilsResponse parses FC 0x01's response: count:u8, bits.
func decodeReadCoilsResponse(qty uint16, pdu []byte) ([]bool, error) {
	return decodeBitsResponse(qty, pdu)
}

// encodeReadDiscreteInputsRequest builds FC 0x02: addr:u16, qty:u16 (1..2000).
func encodeReadDiscreteInputsRequest(addr, qty uint16) ([]byte, error) {
	if qty < 1 || qty > 2000 {
		return nil, ErrInvalidArgument
	}
	return put(5, byte(FuncReadDiscreteInputs), addr, qty), nil
}

// decodeReadDiscreteInputsResponse parses FC 0x02's response: count:u8, bits.
func decodeReadDiscreteInputsResponse(qty uint16, pdu []byte) ([]bool, error) {
	return decodeBitsResponse(qty, pdu)
}

func decodeBitsResponse(qty uint16, pdu []byte) ([]bool, error) {
	if len(pdu) < 2 {
		return nil, newDecodeError(Truncated, "bit response shorter than 2 bytes")
	}
	count := int(pdu[1])
	want := byteCount(qty)
	if count != want {
		return nil, newDecodeError(ByteCountMismatch, "declared byte count disagrees with quantity")
	}
	if len(pdu)-2 != count {
		return nil, newDecodeError(ByteCountMismatch, "payload length disagrees with declared byte count")
	}
	return unpackBits(qty, pdu[2:]), nil
}

// encodeReadHoldingRegistersRequest builds FC 0x03: addr:u16, qty:u16 (1..125).
func encodeReadHoldingRegistersRequest(addr, qty uint16) ([]byte, error) {
	if qty < 1 || qty > 125 {
		return nil, ErrInvalidArgument
	}
	return put(5, byte(FuncReadHoldingRegisters), addr, qty), nil
}

// decodeReadHoldingRegistersResponse parses FC 0x03's response: count:u8, N×u16.
func decodeReadHoldingRegistersResponse(qty uint16, pdu []byte) ([]uint16, error) {
	return decodeRegistersResponse(qty, pdu)
}

// encodeReadInputRegistersRequest builds FC 0x04: addr:u16, qty:u16 (1..125).
func encodeReadInputRegistersRequest(addr, qty uint16) ([]byte, error) {
	if qty < 1 || qty > 125 {
		return nil, ErrInvalidArgument
	}
	return put(5, byte(FuncReadInputRegisters), addr, qty), nil
}

// decodeReadInputRegistersResponse parses FC 0x04's response: count:u8, N×u16.
func decodeReadInputRegistersResponse(qty uint16, pdu []byte) ([]uint16, error) {
	return decodeRegistersResponse(qty, pdu)
}

func decodeRegistersResponse(qty uint16, pdu []byte) ([]uint16, error) {
	if len(pdu) < 2 {
		return nil, newDecodeError(Truncated, "register response shorter than 2 bytes")
	}
	count := int(pdu[1])
	if count != int(qty)*2 {
		return nil, newDecodeError(ByteCountMismatch, "declared byte count disagrees with quantity")
	}
	if len(pdu)-2 != count {
		return nil, newDecodeError(ByteCountMismatch, "payload length disagrees with declared byte count")
	}
	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(pdu[2+2*i:])
	}
	return regs, nil
}

// encodeWriteSingleCoilRequest builds FC 0x05: addr:u16, value:u16 ∈ {0x0000, 0xFF00}.
func encodeWriteSingleCoilRequest(addr uint16, value bool) ([]byte, error) {
	return put(5, byte(FuncWriteSingleCoil), addr, value), nil
}

// decodeWriteSingleCoilResponse parses FC 0x05's response, an echo of the
// request (function code + addr:u16 + value:u16, 5 bytes total).
func decodeWriteSingleCoilResponse(wantAddr uint16, wantValue bool, pdu []byte) error {
	if len(pdu) != 5 {
		return newDecodeError(Truncated, "write single coil response must be 5 bytes")
	}
	value := binary.BigEndian.Uint16(pdu[3:5])
	if value != 0x0000 && value != 0xFF00 {
		return newDecodeError(InvalidCoilValue, "coil value not 0x0000 or 0xFF00")
	}
	if binary.BigEndian.Uint16(pdu[1:3]) != wantAddr || (value == 0xFF00) != wantValue {
		return newDecodeError(ByteCountMismatch, "echo does not match request")
	}
	return nil
}

// encodeWriteSingleRegisterRequest builds FC 0x06: addr:u16, value:u16.
func encodeWriteSingleRegisterRequest(addr, value uint16) ([]byte, error) {
	return put(5, byte(FuncWriteSingleRegister), addr, value), nil
}

// decodeWriteSingleRegisterResponse parses FC 0x06's response, an echo of
// the request (function code + addr:u16 + value:u16, 5 bytes total).
func decodeWriteSingleRegisterResponse(wantAddr, wantValue uint16, pdu []byte) error {
	if len(pdu) != 5 {
		return newDecodeError(Truncated, "write single register response must be 5 bytes")
	}
	if binary.BigEndian.Uint16(pdu[1:3]) != wantAddr || binary.BigEndian.Uint16(pdu[3:5]) != wantValue {
		return newDecodeError(ByteCountMismatch, "echo does not match request")
	}
	return nil
}

// encodeWriteMultipleCoilsRequest builds FC 0x0F: addr:u16, qty:u16 (1..1968), count:u8, bits.
func encodeWriteMultipleCoilsRequest(addr uint16, status []bool) ([]byte, error) {
	qty := uint16(len(status))
	if qty < 1 || qty > 1968 {
		return nil, ErrInvalidArgument
	}
	count := byte(byteCount(qty))
	return put(6+int(count), byte(FuncWriteMultipleCoils), addr, qty, count, status), nil
}

// decodeWriteMultipleCoilsResponse parses FC 0x0F's response: addr:u16, qty:u16.
func decodeWriteMultipleCoilsResponse(wantAddr, wantQty uint16, pdu []byte) error {
	return decodeAddrQtyResponse(wantAddr, wantQty, pdu)
}

// encodeWriteMultipleRegistersRequest builds FC 0x10: addr:u16, qty:u16 (1..123), count:u8, N×u16.
func encodeWriteMultipleRegistersRequest(addr uint16, values []uint16) ([]byte, error) {
	qty := uint16(len(values))
	if qty < 1 || qty > 123 {
		return nil, ErrInvalidArgument
	}
	count := byte(2 * qty)
	return put(6+int(count), byte(FuncWriteMultipleRegisters), addr, qty, count, values), nil
}

// decodeWriteMultipleRegistersResponse parses FC 0x10's response: addr:u16, qty:u16.
func decodeWriteMultipleRegistersResponse(wantAddr, wantQty uint16, pdu []byte) error {
	return decodeAddrQtyResponse(wantAddr, wantQty, pdu)
}

func decodeAddrQtyResponse(wantAddr, wantQty uint16, pdu []byte) error {
	if len(pdu) != 5 {
		return newDecodeError(Truncated, "addr/qty response must be 5 bytes (function code + 4)")
	}
	if binary.BigEndian.Uint16(pdu[1:3]) != wantAddr || binary.BigEndian.Uint16(pdu[3:5]) != wantQty {
		return newDecodeError(ByteCountMismatch, "echo does not match request")
	}
	return nil
}

// encodeMaskWriteRegisterRequest builds FC 0x16: addr:u16, andMask:u16, orMask:u16.
func encodeMaskWriteRegisterRequest(addr, andMask, orMask uint16) ([]byte, error) {
	return put(7, byte(FuncMaskWriteRegister), addr, andMask, orMask), nil
}

// decodeMaskWriteRegisterResponse parses FC 0x16's response, an echo of the
// request (function code + addr:u16 + andMask:u16 + orMask:u16, 7 bytes total).
func decodeMaskWriteRegisterResponse(wantAddr, wantAnd, wantOr uint16, pdu []byte) error {
	if len(pdu) != 7 {
		return newDecodeError(Truncated, "mask write register response must be 7 bytes")
	}
	if binary.BigEndian.Uint16(pdu[1:3]) != wantAddr ||
		binary.BigEndian.Uint16(pdu[3:5]) != wantAnd ||
		binary.BigEndian.Uint16(pdu[5:7]) != wantOr {
		return newDecodeError(ByteCountMismatch, "echo does not match request")
	}
	return nil
}

// encodeReadWriteMultipleRegistersRequest builds FC 0x17: readAddr:u16,
// readQty:u16 (1..125), writeAddr:u16, writeQty:u16 (1..121), count:u8, N×u16.
func encodeReadWriteMultipleRegistersRequest(readAddr, readQty, writeAddr uint16, writeValues []uint16) ([]byte, error) {
	writeQty := uint16(len(writeValues))
	if readQty < 1 || readQty > 125 || writeQty < 1 || writeQty > 121 {
		return nil, ErrInvalidArgument
	}
	count := byte(2 * writeQty)
	return put(10+int(count), byte(FuncReadWriteMultipleRegisters), readAddr, readQty, writeAddr, writeQty, count, writeValues), nil
}

// decodeReadWriteMultipleRegistersResponse parses FC 0x17's response: count:u8, N×u16.
func decodeReadWriteMultipleRegistersResponse(readQty uint16, pdu []byte) ([]uint16, error) {
	return decodeRegistersResponse(readQty, pdu)
}
