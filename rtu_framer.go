package modbus

import "time"

const maxRTUFrameLen = 256

// RTUFrame is one decoded RTU frame: the addressed unit and its PDU, with
// the trailing CRC already verified and stripped.
type RTUFrame struct {
	UnitID byte
	PDU    []byte
}

type rtuState int

const (
	rtuIdle rtuState = iota
	rtuReceiving
)

// CharTimes derives t1.5 and t3.5 from a baud rate, per §4.3: 11 bit-times
// per character (1 start + 8 data + 1 parity + 1 stop; no-parity counts the
// same width for timing). At ≥19200 baud the spec fixes these outright.
func CharTimes(baud int) (t15, t35 time.Duration) {
	if baud <= 0 || baud >= 19200 {
		return 750 * time.Microsecond, 1750 * time.Microsecond
	}
	charTime := time.Duration(11) * time.Second / time.Duration(baud)
	return charTime * 3 / 2, charTime * 7 / 2
}

// encodeRTUFrame wraps a PDU with its unit-id prefix and trailing
// CRC-16/Modbus, per §4.3.
func encodeRTUFrame(unitID byte, pdu []byte) ([]byte, error) {
	if len(pdu) < 1 || 1+len(pdu)+2 > maxRTUFrameLen {
		return nil, ErrInvalidArgument
	}
	frame := make([]byte, 0, 1+len(pdu)+2)
	frame = append(frame, unitID)
	frame = append(frame, pdu...)
	sum := crc16(frame)
	frame = append(frame, byte(sum), byte(sum>>8))
	return frame, nil
}

// decodeRTUFrame validates and strips the CRC off a complete buffer, per
// §4.3: frames under 4 bytes fail with a Truncated DecodeError, frames
// failing CRC with a CrcMismatch DecodeError.
func decodeRTUFrame(buf []byte) (RTUFrame, error) {
	if len(buf) < 4 {
		return RTUFrame{}, newDecodeError(Truncated, "rtu frame shorter than 4 bytes")
	}
	if !crc16Verify(buf) {
		return RTUFrame{}, newDecodeError(CrcMismatch, "rtu frame crc does not verify")
	}
	return RTUFrame{UnitID: buf[0], PDU: buf[1 : len(buf)-2]}, nil
}

// RTUFramer is the silence-delimited RTU decode state machine (§4.3). It
// owns no timer itself: bytes are pushed in as they arrive, and the caller
// calls Flush periodically to complete a frame once t3.5 of silence has
// passed (RTUTransport does so whenever a port read returns no bytes).
type RTUFramer struct {
	t15, t35     time.Duration
	state        rtuState
	buf          []byte
	lastInbound  time.Time
	lastOutbound time.Time
}

// NewRTUFramer returns a framer timed for the given baud rate.
func NewRTUFramer(baud int) *RTUFramer {
	t15, t35 := CharTimes(baud)
	return &RTUFramer{t15: t15, t35: t35}
}

// Push feeds one inbound byte at time now. It returns a decoded frame when
// the gap since the previous byte was long enough (≥ t3.5) to mark the
// *previous* buffer complete; the new byte then starts the next frame.
func (f *RTUFramer) Push(b byte, now time.Time) (*RTUFrame, error) {
	emit, err := f.silenceBoundary(now)
	f.buf = append(f.buf, b)
	f.state = rtuReceiving
	f.lastInbound = now
	return emit, err
}

// Flush is driven by an externally scheduled t3.5 timer: if the silence
// since the last byte has reached t3.5, the buffered frame (if any) is
// completed and returned.
func (f *RTUFramer) Flush(now time.Time) (*RTUFrame, error) {
	if f.state != rtuReceiving {
		return nil, nil
	}
	if now.Sub(f.lastInbound) < f.t35 {
		return nil, nil
	}
	return f.complete()
}

// silenceBoundary checks the gap between now and the last received byte
// against the two thresholds before a new byte is appended: a gap ≥ t3.5
// completes the pending frame; a gap in [t1.5, t3.5) discards it as
// malformed (the frame is simply gone — no error escalates for that case
// alone, matching §4.3's "discarded ... returns to Idle").
func (f *RTUFramer) silenceBoundary(now time.Time) (*RTUFrame, error) {
	if f.state != rtuReceiving {
		return nil, nil
	}
	gap := now.Sub(f.lastInbound)
	switch {
	case gap >= f.t35:
		return f.complete()
	case gap >= f.t15:
		f.buf = nil
		f.state = rtuIdle
		return nil, nil
	default:
		return nil, nil
	}
}

func (f *RTUFramer) complete() (*RTUFrame, error) {
	buf := f.buf
	f.buf = nil
	f.state = rtuIdle
	frame, err := decodeRTUFrame(buf)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

// ReadyToTransmit reports whether the line has been quiet for at least t3.5
// since both the last inbound byte and this framer's own last outbound
// frame — the inter-frame gating rule of §4.3.
func (f *RTUFramer) ReadyToTransmit(now time.Time) bool {
	since := f.lastInbound
	if f.lastOutbound.After(since) {
		since = f.lastOutbound
	}
	if since.IsZero() {
		return true
	}
	return now.Sub(since) >= f.t35
}

// MarkTransmitted records that a frame was just sent, for ReadyToTransmit's
// gating on the next call.
func (f *RTUFramer) MarkTransmitted(now time.Time) {
	f.lastOutbound = now
}
