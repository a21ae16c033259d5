package modbus

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// TCPTransport is a Transport backed by any net.Conn — a plain TCP dial, or
// a *tls.Conn for Modbus/TCP-over-TLS. Framing is left to the Client's
// TCPFramer; this type only pumps bytes (§4.6).
type TCPTransport struct {
	conn    net.Conn
	recvCh  chan []byte
	eventCh chan ConnEvent
	closeCh chan struct{}

	txN   uint64 // atomic; Send calls issued
	fragN uint64 // atomic; read fragments delivered on recvCh
}

// NewTCPTransport wraps an already-established connection and starts its
// background read loop. The caller remains responsible for dialing (and for
// TLS handshaking, if applicable) before calling this.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	t := &TCPTransport{
		conn:    conn,
		recvCh:  make(chan []byte, 16),
		eventCh: make(chan ConnEvent, 1),
		closeCh: make(chan struct{}),
	}
	t.eventCh <- ConnEvent{State: Connected}
	go t.readLoop()
	return t
}

func (t *TCPTransport) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			atomic.AddUint64(&t.fragN, 1)
			select {
			case t.recvCh <- chunk:
			case <-t.closeCh:
				return
			}
		}
		if err != nil {
			select {
			case t.eventCh <- ConnEvent{State: Disconnected, Cause: err}:
			case <-t.closeCh:
			}
			close(t.recvCh)
			return
		}
	}
}

// Send writes data to the connection, honoring ctx's deadline if one is set.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}
	atomic.AddUint64(&t.txN, 1)
	_, err := t.conn.Write(data)
	return err
}

// TxN reports how many Send calls have been issued, for operator diagnostics
// alongside FragN (pascaldekloe-modbus's TCPClient carries the same pair).
func (t *TCPTransport) TxN() uint64 { return atomic.LoadUint64(&t.txN) }

// FragN reports how many read fragments have been delivered on RecvStream.
func (t *TCPTransport) FragN() uint64 { return atomic.LoadUint64(&t.fragN) }

// RecvStream implements Transport.
func (t *TCPTransport) RecvStream() <-chan []byte { return t.recvCh }

// ConnectionEvents implements Transport.
func (t *TCPTransport) ConnectionEvents() <-chan ConnEvent { return t.eventCh }

// Close shuts down the underlying connection and stops the read loop.
func (t *TCPTransport) Close() error {
	close(t.closeCh)
	return t.conn.Close()
}
