package modbus

import "encoding/binary"

// byteCount returns the number of bytes needed to hold bitCount packed bits,
// per spec: ceil(qty/8).
func byteCount(bitCount uint16) int {
	return int((bitCount + 7) / 8)
}

// packBits packs quantity bools LSB-first: bit i of coil offset i lands in
// byte i/8, bit i%8. Unused high bits of the last byte stay zero.
func packBits(status []bool) []byte {
	buf := make([]byte, byteCount(uint16(len(status))))
	for i, on := range status {
		if on {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

// unpackBits is the inverse of packBits: it reads quantity LSB-first bits
// out of bytes, coil i at byte i/8 bit i%8.
func unpackBits(quantity uint16, bytes []byte) []bool {
	buf := make([]bool, quantity)
	for i := range buf {
		byteIdx, bitIdx := i/8, uint(i%8)
		if byteIdx >= len(bytes) {
			break
		}
		buf[i] = bytes[byteIdx]&(1<<bitIdx) != 0
	}
	return buf
}

// put assembles a byte slice of the given length from a sequence of
// heterogeneous fields, written in order. It mirrors the Modbus PDU layouts
// in §4.1: a handful of uint16/byte/slice fields concatenated big-endian.
func put(length int, args ...interface{}) []byte {
	buf := make([]byte, length)
	rest := buf
	for _, arg := range args {
		switch v := arg.(type) {
		case bool:
			rest = putBool(rest, v)
		case []bool:
			rest = putBoolS(rest, v)
		case byte:
			rest = putByte(rest, v)
		case []byte:
			rest = putByteS(rest, v)
		case uint16:
			rest = putUint16(rest, v)
		case []uint16:
			rest = putUint16S(rest, v)
		}
	}
	return buf
}

func putBool(buf []byte, arg bool) []byte {
	if arg {
		return putUint16(buf, 0xFF00)
	}
	return putUint16(buf, 0x0000)
}

func putBoolS(buf []byte, args []bool) []byte {
	packed := packBits(args)
	return buf[copy(buf, packed):]
}

func putByte(buf []byte, arg byte) []byte {
	buf[0] = arg
	return buf[1:]
}

func putByteS(buf []byte, args []byte) []byte {
	return buf[copy(buf, args):]
}

func putUint16(buf []byte, arg uint16) []byte {
	binary.BigEndian.PutUint16(buf, arg)
	return buf[2:]
}

func putUint16S(buf []byte, args []uint16) []byte {
	for _, arg := range args {
		buf = putUint16(buf, arg)
	}
	return buf
}
