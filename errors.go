package modbus

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument signals that an address, quantity or value given to a
// Client method violates the bounds of the targeted function code. It is
// returned before anything is written to the wire.
var ErrInvalidArgument = errors.New("modbus: invalid argument")

// ErrTimeout signals that a transaction's deadline elapsed before a matching
// response arrived.
var ErrTimeout = errors.New("modbus: request timed out")

// ErrCancelled signals that the caller cancelled a pending request.
var ErrCancelled = errors.New("modbus: request cancelled")

// ErrTooManyOutstanding signals that the TCP transaction-identifier space is
// exhausted: every one of the 65536 possible identifiers is currently held
// by a pending transaction.
var ErrTooManyOutstanding = errors.New("modbus: too many outstanding transactions")

// ErrNotConnected is returned by a Transport's Send when no underlying
// connection is currently available.
var ErrNotConnected = errors.New("modbus: not connected")

// ConnectionLostError wraps the cause reported by a transport's disconnect
// event. It is delivered to every transaction pending at the time of loss.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "modbus: connection lost"
	}
	return fmt.Sprintf("modbus: connection lost: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error {
	return e.Cause
}

// DecodeErrorKind enumerates the ways a PDU or frame can fail to decode.
type DecodeErrorKind int

const (
	// Truncated means fewer bytes were present than the function code requires.
	Truncated DecodeErrorKind = iota
	// QuantityOutOfRange means a request/response quantity field violates its
	// function-specific bound (e.g. 1..2000 for coils, 1..125 for registers).
	QuantityOutOfRange
	// ByteCountMismatch means the declared byte-count field disagrees with the
	// number of bytes actually present.
	ByteCountMismatch
	// UnsupportedFunction means the function code is not one of the 10
	// standard codes this codec implements.
	UnsupportedFunction
	// InvalidCoilValue means FC 0x05's value field is neither 0x0000 nor 0xFF00.
	InvalidCoilValue
	// CrcMismatch means an RTU frame's trailing CRC-16 does not verify.
	CrcMismatch
	// OversizedFrame means a framer (TCP or RTU) observed a frame larger than
	// the wire format permits, desynchronizing the byte stream.
	OversizedFrame
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case QuantityOutOfRange:
		return "quantity out of range"
	case ByteCountMismatch:
		return "byte count mismatch"
	case UnsupportedFunction:
		return "unsupported function"
	case InvalidCoilValue:
		return "invalid coil value"
	case CrcMismatch:
		return "crc mismatch"
	case OversizedFrame:
		return "oversized frame"
	default:
		return fmt.Sprintf("decode error %d", int(k))
	}
}

// DecodeError reports a malformed PDU or frame. Detail carries
// implementation-specific context (offending field, observed length, ...).
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return "modbus: decode error: " + e.Kind.String()
	}
	return fmt.Sprintf("modbus: decode error: %s: %s", e.Kind, e.Detail)
}

func newDecodeError(kind DecodeErrorKind, detail string) *DecodeError {
	return &DecodeError{Kind: kind, Detail: detail}
}
