package modbus

// CRC-16/Modbus: polynomial 0xA001 (the bit-reflected form of 0x8005),
// initial value 0xFFFF, no final xor, reflected input and output. Grounded
// on the reflected-shift loop used throughout the pack's RTU codecs
// (e.g. CreatorsLab-go-modbus, rolfl-modbus).

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		crc16Table[i] = crc
	}
}

// crc16 computes the CRC-16/Modbus checksum over data.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc
}

// crc16Verify reports whether the 2 trailing bytes of frame (little-endian)
// match the CRC of everything preceding them — the basis for invariant #5
// in §8: crc16(bytes ‖ crc16(bytes)_le) == 0.
func crc16Verify(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	body, trailer := frame[:len(frame)-2], frame[len(frame)-2:]
	want := crc16(body)
	return trailer[0] == byte(want) && trailer[1] == byte(want>>8)
}
