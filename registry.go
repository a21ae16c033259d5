package modbus

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// decodeFunc turns a complete response PDU (function code byte included)
// into the value a Client method promised its caller.
type decodeFunc func(pdu []byte) (interface{}, error)

// Response is what a pending transaction resolves to: exactly one of Value
// or Err is meaningful.
type Response struct {
	Value interface{}
	Err   error
}

// Mode selects the transaction-admission policy a Registry runs (§4.4/§4.5):
// TCP allows many outstanding transactions at once, keyed by a wire
// transaction identifier; RTU allows exactly one at a time, queuing the rest.
type Mode int

const (
	ModeTCP Mode = iota
	ModeRTU
)

// txn is the registry's bookkeeping for one in-flight request.
type txn struct {
	handle      uint64
	tcpID       uint16
	unitID      byte
	decode      decodeFunc
	reply       chan Response
	cancelTimer func()
	broadcast   bool
}

// sendRequestMsg is what Send hands to the run loop.
type sendRequestMsg struct {
	unitID   byte
	pdu      []byte
	decode   decodeFunc
	deadline time.Time
	reply    chan Response
	handle   uint64
}

// inboundFrame is what a transport-facing adapter hands to the run loop
// after its framer produced a complete frame. tcpID is nil for RTU, where
// correlation is purely "the one outstanding transaction".
type inboundFrame struct {
	tcpID  *uint16
	unitID byte
	pdu    []byte
}

// sendErrMsg reports that a transport write, issued from its own goroutine
// rather than the run loop, failed.
type sendErrMsg struct {
	handle uint64
	err    error
}

// Registry is the single serialization point owning every pending
// transaction for one Client (§6). All mutable state below is touched only
// from the run goroutine; every other method just posts to a channel and
// waits.
type Registry struct {
	mode      Mode
	transport Transport
	scheduler TimeoutScheduler
	logger    *zap.Logger

	broadcastDelay time.Duration // RTU only: derived from CharTimes(baud).t35

	sendCh      chan *sendRequestMsg
	cancelCh    chan uint64
	frameCh     chan inboundFrame
	discCh      chan error
	timeoutCh   chan uint64
	broadcastCh chan uint64
	sendErrCh   chan sendErrMsg
	stopCh      chan struct{}
	stoppedCh   chan struct{}

	handleSeq uint64 // atomic; assigned by Send before posting

	// run-loop-owned only — never touched outside run().
	pending       map[uint64]*txn
	tcpIDToHandle map[uint16]uint64
	nextTCPSeq    uint32
	rtuActive     *txn
	rtuQueue      []*sendRequestMsg
	droppedFrames uint64
}

func newRegistry(mode Mode, transport Transport, scheduler TimeoutScheduler, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		mode:          mode,
		transport:     transport,
		scheduler:     scheduler,
		logger:        logger,
		sendCh:        make(chan *sendRequestMsg),
		cancelCh:      make(chan uint64),
		frameCh:       make(chan inboundFrame),
		discCh:        make(chan error),
		timeoutCh:     make(chan uint64),
		broadcastCh:   make(chan uint64),
		sendErrCh:     make(chan sendErrMsg),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		pending:       make(map[uint64]*txn),
		tcpIDToHandle: make(map[uint16]uint64),
	}
	go r.run()
	return r
}

// NewTCPRegistry returns a Registry running the TCP admission policy: many
// outstanding transactions, each correlated by a 16-bit wire identifier.
func NewTCPRegistry(transport Transport, scheduler TimeoutScheduler, logger *zap.Logger) *Registry {
	return newRegistry(ModeTCP, transport, scheduler, logger)
}

// NewRTURegistry returns a Registry running the RTU admission policy: one
// outstanding transaction at a time, FIFO-queued behind it, with broadcast
// requests (unitID 0) completing unanswered after one silence interval.
func NewRTURegistry(transport Transport, scheduler TimeoutScheduler, logger *zap.Logger, baud int) *Registry {
	r := newRegistry(ModeRTU, transport, scheduler, logger)
	_, t35 := CharTimes(baud)
	r.broadcastDelay = t35
	return r
}

// Send submits one encoded PDU for transmission to unitID, to be decoded by
// decode on arrival. It returns a handle identifying the transaction for
// Cancel, and a channel the eventual Response arrives on exactly once.
func (r *Registry) Send(unitID byte, pdu []byte, decode decodeFunc, deadline time.Time) (uint64, <-chan Response) {
	handle := atomic.AddUint64(&r.handleSeq, 1)
	reply := make(chan Response, 1)
	msg := &sendRequestMsg{
		unitID:   unitID,
		pdu:      pdu,
		decode:   decode,
		deadline: deadline,
		reply:    reply,
		handle:   handle,
	}
	select {
	case r.sendCh <- msg:
	case <-r.stoppedCh:
		reply <- Response{Err: ErrNotConnected}
	}
	return handle, reply
}

// Cancel aborts a pending transaction, if it is still pending. The
// transaction's Response channel receives ErrCancelled.
func (r *Registry) Cancel(handle uint64) {
	select {
	case r.cancelCh <- handle:
	case <-r.stoppedCh:
	}
}

// OnFrame delivers one decoded inbound frame from a transport adapter's
// framer. tcpID is nil for RTU frames.
func (r *Registry) OnFrame(tcpID *uint16, unitID byte, pdu []byte) {
	select {
	case r.frameCh <- inboundFrame{tcpID: tcpID, unitID: unitID, pdu: pdu}:
	case <-r.stoppedCh:
	}
}

// OnDisconnect reports the transport having lost its connection. Every
// pending and queued transaction fails with a ConnectionLostError; the
// registry keeps running and accepts new Sends once the transport
// reconnects and reports frames/events again.
func (r *Registry) OnDisconnect(cause error) {
	select {
	case r.discCh <- cause:
	case <-r.stoppedCh:
	}
}

// Close stops the run loop. Pending transactions fail with ErrNotConnected.
func (r *Registry) Close() {
	select {
	case <-r.stoppedCh:
	default:
		close(r.stopCh)
		<-r.stoppedCh
	}
}

func (r *Registry) run() {
	defer close(r.stoppedCh)
	for {
		select {
		case msg := <-r.sendCh:
			r.handleSend(msg)
		case handle := <-r.cancelCh:
			r.handleCancel(handle)
		case frame := <-r.frameCh:
			r.handleFrame(frame)
		case cause := <-r.discCh:
			r.handleDisconnect(cause)
		case handle := <-r.timeoutCh:
			r.handleTimeout(handle)
		case handle := <-r.broadcastCh:
			r.handleBroadcastDone(handle)
		case msg := <-r.sendErrCh:
			r.handleSendErr(msg)
		case <-r.stopCh:
			r.drainAll(ErrNotConnected)
			return
		}
	}
}

func (r *Registry) handleSend(msg *sendRequestMsg) {
	switch r.mode {
	case ModeTCP:
		r.admitTCP(msg)
	case ModeRTU:
		if r.rtuActive == nil {
			r.admitRTU(msg)
		} else {
			r.rtuQueue = append(r.rtuQueue, msg)
		}
	}
}

// admitTCP allocates a wire transaction id, framing and transmitting the
// request, per §4.2/invariant #3: identifiers are assigned by probing
// forward with wraparound, skipping ids already in use, and failing once a
// full cycle finds nothing free.
func (r *Registry) admitTCP(msg *sendRequestMsg) {
	id, ok := r.nextTCPID()
	if !ok {
		r.logger.Error("transaction id space exhausted", zap.Int("pending", len(r.pending)))
		msg.reply <- Response{Err: ErrTooManyOutstanding}
		return
	}
	adu, err := encodeMBAP(id, msg.unitID, msg.pdu)
	if err != nil {
		msg.reply <- Response{Err: err}
		return
	}
	t := &txn{handle: msg.handle, tcpID: id, unitID: msg.unitID, decode: msg.decode, reply: msg.reply}
	r.pending[t.handle] = t
	r.tcpIDToHandle[id] = t.handle
	t.cancelTimer = r.armTimeout(t.handle, msg.deadline)
	go r.transmit(t.handle, adu)
}

func (r *Registry) nextTCPID() (uint16, bool) {
	for i := 0; i < 1<<16; i++ {
		id := uint16(r.nextTCPSeq)
		r.nextTCPSeq++
		if _, busy := r.tcpIDToHandle[id]; !busy {
			return id, true
		}
	}
	return 0, false
}

// admitRTU transmits the single admitted request for the line, arming a
// deadline timer for a unicast request or a fixed broadcast-completion timer
// for unitID 0 (§4.5: broadcasts complete unanswered, on a timer, not a
// response).
func (r *Registry) admitRTU(msg *sendRequestMsg) {
	frame, err := encodeRTUFrame(msg.unitID, msg.pdu)
	if err != nil {
		msg.reply <- Response{Err: err}
		r.admitNextRTU()
		return
	}
	t := &txn{handle: msg.handle, unitID: msg.unitID, decode: msg.decode, reply: msg.reply, broadcast: msg.unitID == 0}
	r.rtuActive = t
	if t.broadcast {
		handle := t.handle
		t.cancelTimer = r.scheduler.Schedule(time.Now().Add(r.broadcastDelay), func() {
			select {
			case r.broadcastCh <- handle:
			case <-r.stoppedCh:
			}
		})
	} else {
		t.cancelTimer = r.armTimeout(t.handle, msg.deadline)
	}
	go r.transmit(t.handle, frame)
}

// transmit issues the actual transport write from its own goroutine rather
// than the run loop: Transport.Send is allowed to block (a stalled or
// backpressured socket, RTUTransport's inter-frame silence gate), and a
// write blocking the run loop would stall every other pending transaction,
// cancel, timeout and frame dispatch along with it (§5). A failure is
// reported back through sendErrCh instead of replied to directly, since by
// the time the write returns the transaction may already have been
// cancelled, timed out, or completed by an unrelated path.
func (r *Registry) transmit(handle uint64, data []byte) {
	if err := r.transport.Send(context.Background(), data); err != nil {
		select {
		case r.sendErrCh <- sendErrMsg{handle: handle, err: err}:
		case <-r.stoppedCh:
		}
	}
}

func (r *Registry) admitNextRTU() {
	if len(r.rtuQueue) == 0 {
		return
	}
	msg := r.rtuQueue[0]
	r.rtuQueue = r.rtuQueue[1:]
	r.admitRTU(msg)
}

func (r *Registry) armTimeout(handle uint64, deadline time.Time) func() {
	return r.scheduler.Schedule(deadline, func() {
		select {
		case r.timeoutCh <- handle:
		case <-r.stoppedCh:
		}
	})
}

func (r *Registry) handleCancel(handle uint64) {
	t, ok := r.pending[handle]
	if !ok {
		if r.rtuActive != nil && r.rtuActive.handle == handle {
			t = r.rtuActive
		} else {
			for i, msg := range r.rtuQueue {
				if msg.handle == handle {
					r.rtuQueue = append(r.rtuQueue[:i:i], r.rtuQueue[i+1:]...)
					msg.reply <- Response{Err: ErrCancelled}
					break
				}
			}
			return
		}
	}
	r.removeTxn(t)
	t.reply <- Response{Err: ErrCancelled}
	if r.mode == ModeRTU {
		r.admitNextRTU()
	}
}

func (r *Registry) handleTimeout(handle uint64) {
	t, ok := r.pending[handle]
	if !ok {
		if r.rtuActive != nil && r.rtuActive.handle == handle {
			t = r.rtuActive
		} else {
			return
		}
	}
	r.removeTxn(t)
	t.reply <- Response{Err: ErrTimeout}
	if r.mode == ModeRTU {
		r.admitNextRTU()
	}
}

// handleSendErr fails a transaction whose transmit goroutine reported a
// write failure. The transaction may already have been resolved by a
// cancel, timeout or frame dispatch that raced ahead of the write returning,
// in which case this is a no-op.
func (r *Registry) handleSendErr(msg sendErrMsg) {
	t, ok := r.pending[msg.handle]
	if !ok {
		if r.rtuActive != nil && r.rtuActive.handle == msg.handle {
			t = r.rtuActive
		} else {
			return
		}
	}
	r.removeTxn(t)
	t.reply <- Response{Err: msg.err}
	if r.mode == ModeRTU {
		r.admitNextRTU()
	}
}

func (r *Registry) handleBroadcastDone(handle uint64) {
	if r.rtuActive == nil || r.rtuActive.handle != handle {
		return
	}
	t := r.rtuActive
	r.rtuActive = nil
	t.reply <- Response{Value: nil}
	r.admitNextRTU()
}

// handleFrame correlates an inbound frame to its transaction and completes
// it. Frames matching nothing pending are silently dropped (§4.2: a client
// ignores frames whose transaction id it does not hold), counted for
// diagnostics only.
func (r *Registry) handleFrame(f inboundFrame) {
	var t *txn
	switch r.mode {
	case ModeTCP:
		if f.tcpID == nil {
			r.dropFrame("missing transaction id")
			return
		}
		handle, ok := r.tcpIDToHandle[*f.tcpID]
		if !ok {
			r.dropFrame("no pending transaction for id")
			return
		}
		t = r.pending[handle]
	case ModeRTU:
		if r.rtuActive == nil || r.rtuActive.broadcast {
			r.dropFrame("no outstanding unicast transaction")
			return
		}
		t = r.rtuActive
	}
	if t == nil {
		r.dropFrame("matched slot had no transaction")
		return
	}
	r.removeTxn(t)
	t.reply <- completeFrame(t.decode, f.pdu)
	if r.mode == ModeRTU {
		r.admitNextRTU()
	}
}

func (r *Registry) dropFrame(reason string) {
	r.droppedFrames++
	r.logger.Debug("dropping unmatched frame", zap.String("reason", reason), zap.Uint64("total_dropped", r.droppedFrames))
}

// completeFrame decodes a response PDU with decode, surfacing an exception
// response as an Exception-typed Err rather than attempting decode.
func completeFrame(decode decodeFunc, pdu []byte) Response {
	if len(pdu) == 0 {
		return Response{Err: newDecodeError(Truncated, "empty response pdu")}
	}
	if _, isExc := isException(pdu[0]); isExc {
		if len(pdu) < 2 {
			return Response{Err: newDecodeError(Truncated, "exception response missing code byte")}
		}
		return Response{Err: exceptionFromCode(pdu[1])}
	}
	value, err := decode(pdu)
	return Response{Value: value, Err: err}
}

func (r *Registry) removeTxn(t *txn) {
	if t.cancelTimer != nil {
		t.cancelTimer()
	}
	delete(r.pending, t.handle)
	if r.mode == ModeTCP {
		delete(r.tcpIDToHandle, t.tcpID)
	}
	if r.rtuActive == t {
		r.rtuActive = nil
	}
}

// handleDisconnect fails everything outstanding with a ConnectionLostError
// and empties the RTU admission queue, but leaves the run loop itself
// running: a later reconnect simply resumes admitting new Sends (§6).
func (r *Registry) handleDisconnect(cause error) {
	r.logger.Warn("transport disconnected, failing pending transactions", zap.Error(cause), zap.Int("pending", len(r.pending)))
	r.drainAll(&ConnectionLostError{Cause: cause})
}

func (r *Registry) drainAll(err error) {
	for handle, t := range r.pending {
		if t.cancelTimer != nil {
			t.cancelTimer()
		}
		delete(r.pending, handle)
		t.reply <- Response{Err: err}
	}
	r.tcpIDToHandle = make(map[uint16]uint64)
	if r.rtuActive != nil {
		t := r.rtuActive
		r.rtuActive = nil
		if t.cancelTimer != nil {
			t.cancelTimer()
		}
		t.reply <- Response{Err: err}
	}
	for _, msg := range r.rtuQueue {
		msg.reply <- Response{Err: err}
	}
	r.rtuQueue = nil
}
