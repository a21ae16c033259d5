package modbus

import (
	"context"
	"time"
)

// Client is a Modbus master bound to exactly one Transport. It owns a
// Registry, which does the actual transaction bookkeeping; the Client's
// job is just to encode a request, hand it to the registry with a decoder
// closure, and translate the eventual Response back into a typed result
// (§4.4/§4.5/§6).
//
//	c := modbus.NewTCPClient(transport, modbus.Config{})
//	defer c.Close()
//	values, err := c.ReadHoldingRegisters(ctx, 1, 0, 10)
type Client struct {
	cfg Config
	reg *Registry
}

// NewTCPClient returns a Client running the TCP transaction-admission
// policy over transport (many outstanding requests, correlated by MBAP
// transaction id).
func NewTCPClient(transport Transport, cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg, reg: NewTCPRegistry(transport, cfg.Scheduler, cfg.Logger)}
	go c.pumpTCP(transport)
	return c
}

// NewRTUClient returns a Client running the RTU transaction-admission
// policy over transport (one outstanding request at a time, FIFO-queued,
// with unit id 0 treated as an unanswered broadcast).
func NewRTUClient(transport Transport, baud int, cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg, reg: NewRTURegistry(transport, cfg.Scheduler, cfg.Logger, baud)}
	go c.pumpRTU(transport)
	return c
}

// pumpTCP bridges a TCP Transport's raw byte/event streams into the
// registry, framing inbound bytes with a TCPFramer as they arrive.
func (c *Client) pumpTCP(transport Transport) {
	framer := NewTCPFramer()
	for {
		select {
		case data, ok := <-transport.RecvStream():
			if !ok {
				return
			}
			frames, err := framer.Feed(data)
			if err != nil {
				c.cfg.Logger.Sugar().Warnw("tcp stream desynchronized", "error", err)
				continue
			}
			for _, f := range frames {
				id := f.TransactionID
				c.reg.OnFrame(&id, f.UnitID, f.PDU)
			}
		case ev, ok := <-transport.ConnectionEvents():
			if !ok {
				return
			}
			if ev.State == Disconnected {
				c.reg.OnDisconnect(ev.Cause)
			}
		}
	}
}

// pumpRTU bridges an RTU Transport's stream into the registry. Unlike TCP,
// the RTU adapter itself owns the silence-timed RTUFramer (it alone has the
// real-time clock and a place to run a timer loop) and delivers one
// already-delimited, CRC-verified message per receive — unit id byte
// followed by the PDU.
func (c *Client) pumpRTU(transport Transport) {
	for {
		select {
		case data, ok := <-transport.RecvStream():
			if !ok {
				return
			}
			if len(data) < 1 {
				continue
			}
			c.reg.OnFrame(nil, data[0], data[1:])
		case ev, ok := <-transport.ConnectionEvents():
			if !ok {
				return
			}
			if ev.State == Disconnected {
				c.reg.OnDisconnect(ev.Cause)
			}
		}
	}
}

// Close stops the client's registry. Pending requests fail with
// ErrNotConnected.
func (c *Client) Close() {
	c.reg.Close()
}

// do sends pdu to unitID, waits for ctx or the configured RequestTimeout
// (whichever is sooner) and decodes the response with decode.
func (c *Client) do(ctx context.Context, unitID byte, pdu []byte, decode decodeFunc) (interface{}, error) {
	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	handle, reply := c.reg.Send(unitID, pdu, decode, deadline)
	select {
	case resp := <-reply:
		return resp.Value, resp.Err
	case <-ctx.Done():
		c.reg.Cancel(handle)
		<-reply // drain the eventual Cancel/Timeout resolution
		return nil, ctx.Err()
	}
}

// ReadCoils requests 1 to 2000 (quantity) contiguous coil states, starting
// from address.
func (c *Client) ReadCoils(ctx context.Context, unitID byte, address, quantity uint16) ([]bool, error) {
	pdu, err := encodeReadCoilsRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return decodeReadCoilsResponse(quantity, pdu)
	})
	if err != nil {
		return nil, err
	}
	return v.([]bool), nil
}

// ReadDiscreteInputs requests 1 to 2000 (quantity) contiguous discrete
// inputs, starting from address.
func (c *Client) ReadDiscreteInputs(ctx context.Context, unitID byte, address, quantity uint16) ([]bool, error) {
	pdu, err := encodeReadDiscreteInputsRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return decodeReadDiscreteInputsResponse(quantity, pdu)
	})
	if err != nil {
		return nil, err
	}
	return v.([]bool), nil
}

// ReadHoldingRegisters reads 1 to 125 (quantity) contiguous holding
// registers starting at address.
func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	pdu, err := encodeReadHoldingRegistersRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return decodeReadHoldingRegistersResponse(quantity, pdu)
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint16), nil
}

// ReadInputRegisters reads 1 to 125 (quantity) contiguous input registers
// starting at address.
func (c *Client) ReadInputRegisters(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	pdu, err := encodeReadInputRegistersRequest(address, quantity)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return decodeReadInputRegistersResponse(quantity, pdu)
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint16), nil
}

// WriteSingleCoil sets the coil at address to on (true) or off (false).
func (c *Client) WriteSingleCoil(ctx context.Context, unitID byte, address uint16, on bool) error {
	pdu, err := encodeWriteSingleCoilRequest(address, on)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return nil, decodeWriteSingleCoilResponse(address, on, pdu)
	})
	return err
}

// WriteSingleRegister writes value to the holding register at address.
func (c *Client) WriteSingleRegister(ctx context.Context, unitID byte, address, value uint16) error {
	pdu, err := encodeWriteSingleRegisterRequest(address, value)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return nil, decodeWriteSingleRegisterResponse(address, value, pdu)
	})
	return err
}

// WriteMultipleCoils sets the coils starting at address, 1 to 1968 of them,
// to the values in status.
func (c *Client) WriteMultipleCoils(ctx context.Context, unitID byte, address uint16, status []bool) error {
	pdu, err := encodeWriteMultipleCoilsRequest(address, status)
	if err != nil {
		return err
	}
	qty := uint16(len(status))
	_, err = c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return nil, decodeWriteMultipleCoilsResponse(address, qty, pdu)
	})
	return err
}

// WriteMultipleRegisters writes values (1 to 123 of them) to the holding
// registers starting at address.
func (c *Client) WriteMultipleRegisters(ctx context.Context, unitID byte, address uint16, values []uint16) error {
	pdu, err := encodeWriteMultipleRegistersRequest(address, values)
	if err != nil {
		return err
	}
	qty := uint16(len(values))
	_, err = c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return nil, decodeWriteMultipleRegistersResponse(address, qty, pdu)
	})
	return err
}

// MaskWriteRegister applies (current & andMask) | (orMask & ^andMask) to the
// holding register at address.
func (c *Client) MaskWriteRegister(ctx context.Context, unitID byte, address, andMask, orMask uint16) error {
	pdu, err := encodeMaskWriteRegisterRequest(address, andMask, orMask)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return nil, decodeMaskWriteRegisterResponse(address, andMask, orMask, pdu)
	})
	return err
}

// ReadWriteMultipleRegisters writes writeValues at writeAddress and, in the
// same transaction, reads readQuantity registers back from readAddress.
func (c *Client) ReadWriteMultipleRegisters(ctx context.Context, unitID byte, readAddress, readQuantity, writeAddress uint16, writeValues []uint16) ([]uint16, error) {
	pdu, err := encodeReadWriteMultipleRegistersRequest(readAddress, readQuantity, writeAddress, writeValues)
	if err != nil {
		return nil, err
	}
	v, err := c.do(ctx, unitID, pdu, func(pdu []byte) (interface{}, error) {
		return decodeReadWriteMultipleRegistersResponse(readQuantity, pdu)
	})
	if err != nil {
		return nil, err
	}
	return v.([]uint16), nil
}
