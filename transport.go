package modbus

import "context"

// ConnState is the lifecycle the core observes from its Transport.
type ConnState int

const (
	Connected ConnState = iota
	Disconnected
)

// ConnEvent is one entry in a Transport's connection-event stream.
type ConnEvent struct {
	State ConnState
	Cause error // set when State == Disconnected
}

// Transport is the byte-pipe contract the core requires from whatever
// binding is in use (§4.6). The core makes no assumption about the
// underlying socket library, TLS stack, or serial driver — it only needs:
// a way to push bytes out, a way to observe bytes coming in, and a way to
// observe connect/disconnect. Reconnection policy, executor provisioning
// and connection-lifecycle supervision all live outside this interface.
type Transport interface {
	// Send transmits data, honoring ctx's deadline if one is set. It may
	// fail fast with ErrNotConnected, and it is free to block for as long
	// as the underlying write takes (a stalled socket, RTU's inter-frame
	// silence gate) — callers that cannot tolerate that, such as the
	// registry, issue Send from their own goroutine rather than relying on
	// it to return quickly.
	Send(ctx context.Context, data []byte) error

	// RecvStream delivers inbound bytes in arrival order. The channel is
	// closed when the transport disconnects.
	RecvStream() <-chan []byte

	// ConnectionEvents delivers Connected/Disconnected transitions.
	ConnectionEvents() <-chan ConnEvent
}
