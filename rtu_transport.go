package modbus

import (
	"context"
	"time"

	"github.com/goburrow/serial"
)

// RTUTransport is a Transport backed by a serial port opened through
// github.com/goburrow/serial. It owns the silence-timed RTUFramer directly:
// only the adapter has a real clock and a place to run the t3.5 timer the
// framer needs driven from outside (§4.3).
type RTUTransport struct {
	port    serial.Port
	framer  *RTUFramer
	recvCh  chan []byte
	eventCh chan ConnEvent
	closeCh chan struct{}
}

// RTUPortConfig mirrors github.com/goburrow/serial's Config, named locally
// so callers don't need to import that package just to dial a port.
type RTUPortConfig struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

// DialRTU opens the serial port described by cfg and starts the adapter's
// read loop.
func DialRTU(cfg RTUPortConfig) (*RTUTransport, error) {
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewRTUTransport(port, cfg.BaudRate), nil
}

// NewRTUTransport wraps an already-open serial.Port.
func NewRTUTransport(port serial.Port, baud int) *RTUTransport {
	t := &RTUTransport{
		port:    port,
		framer:  NewRTUFramer(baud),
		recvCh:  make(chan []byte, 16),
		eventCh: make(chan ConnEvent, 1),
		closeCh: make(chan struct{}),
	}
	t.eventCh <- ConnEvent{State: Connected}
	go t.readLoop()
	return t
}

// readLoop polls the port for bytes and drives the RTUFramer's silence
// detection: every arriving byte goes through Push (which checks the gap
// since the previous byte), and every read that returns no bytes calls
// Flush, since the underlying port has no event-driven API.
func (t *RTUTransport) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		now := time.Now()
		for i := 0; i < n; i++ {
			frame, ferr := t.framer.Push(buf[i], now)
			t.deliver(frame, ferr)
		}
		if n == 0 {
			frame, ferr := t.framer.Flush(now)
			t.deliver(frame, ferr)
		}
		if err != nil {
			select {
			case t.eventCh <- ConnEvent{State: Disconnected, Cause: err}:
			case <-t.closeCh:
			}
			close(t.recvCh)
			return
		}
		select {
		case <-t.closeCh:
			return
		default:
		}
	}
}

func (t *RTUTransport) deliver(frame *RTUFrame, err error) {
	if err != nil {
		// A malformed frame is simply dropped; the framer has already
		// returned to idle and will resynchronize on the next byte.
		return
	}
	if frame == nil {
		return
	}
	raw := make([]byte, 0, 1+len(frame.PDU))
	raw = append(raw, frame.UnitID)
	raw = append(raw, frame.PDU...)
	select {
	case t.recvCh <- raw:
	case <-t.closeCh:
	}
}

// Send transmits an already-framed RTU message (unit id + PDU + CRC),
// gating on the inter-frame silence interval the framer tracks.
func (t *RTUTransport) Send(ctx context.Context, data []byte) error {
	for !t.framer.ReadyToTransmit(time.Now()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	_, err := t.port.Write(data)
	t.framer.MarkTransmitted(time.Now())
	return err
}

// RecvStream implements Transport. Each delivered message is a complete,
// CRC-verified RTU frame: unit id byte followed by the PDU.
func (t *RTUTransport) RecvStream() <-chan []byte { return t.recvCh }

// ConnectionEvents implements Transport.
func (t *RTUTransport) ConnectionEvents() <-chan ConnEvent { return t.eventCh }

// Close shuts down the serial port and stops the read loop.
func (t *RTUTransport) Close() error {
	close(t.closeCh)
	return t.port.Close()
}
