// Package client is a thin caller for simrpc dispatchers. Every call dials
// its own connection — the transport does not reuse connections across
// calls — sends the opening envelope, and reads back the result sequence.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"simrpc/message"
	"simrpc/simnet"
)

// Client issues calls against dispatchers on one simnet network.
type Client struct {
	network *simnet.Network
}

// New creates a client on the given network. A nil network means
// simnet.Default.
func New(network *simnet.Network) *Client {
	if network == nil {
		network = simnet.Default
	}
	return &Client{network: network}
}

// Unary issues a single-request call to path at addr and returns the single
// response payload. A status error item from the server is returned as that
// status error.
func (c *Client) Unary(ctx context.Context, addr, path string, payload any) (any, error) {
	p, err := message.ParsePath(path)
	if err != nil {
		return nil, err
	}
	tx, rx, err := c.network.Dial(ctx, simnet.Addr(addr))
	if err != nil {
		return nil, err
	}
	defer rx.Close()

	if err := tx.Send(ctx, message.NewUnary(p, payload)); err != nil {
		return nil, err
	}
	// One request, then nothing: the server never reads this connection
	// again.
	_ = tx.Close()

	res, err := recvResult(ctx, rx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("client: call %s: response stream closed without a result", path)
		}
		return nil, err
	}
	if res.Failed() {
		return nil, res.Err()
	}
	return res.Payload, nil
}

// OpenStream starts a streaming call to path at addr. The caller sends
// payloads with Send, signals the end of input with CloseSend, and reads
// results with Recv until io.EOF.
func (c *Client) OpenStream(ctx context.Context, addr, path string) (*Stream, error) {
	p, err := message.ParsePath(path)
	if err != nil {
		return nil, err
	}
	tx, rx, err := c.network.Dial(ctx, simnet.Addr(addr))
	if err != nil {
		return nil, err
	}
	if err := tx.Send(ctx, message.NewStream(p)); err != nil {
		rx.Close()
		return nil, err
	}
	return &Stream{tx: tx, rx: rx}, nil
}

// Stream is one open streaming call.
type Stream struct {
	tx *simnet.Sender
	rx *simnet.Receiver
}

// Send delivers one request payload.
func (s *Stream) Send(ctx context.Context, payload any) error {
	return s.tx.Send(ctx, payload)
}

// CloseSend ends the request sequence. The server sees the request channel
// close and finishes the call.
func (s *Stream) CloseSend() error {
	return s.tx.Close()
}

// Recv returns the next response payload, io.EOF at the normal end of the
// stream, or the status error the server reported.
func (s *Stream) Recv(ctx context.Context) (any, error) {
	res, err := recvResult(ctx, s.rx)
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		return nil, res.Err()
	}
	return res.Payload, nil
}

// Close releases the stream's receive side. Recv fails afterwards.
func (s *Stream) Close() error {
	s.tx.Close()
	return s.rx.Close()
}

// recvResult reads one response item, mapping the peer's close to io.EOF.
func recvResult(ctx context.Context, rx *simnet.Receiver) (message.Result, error) {
	v, err := rx.Recv(ctx)
	if err != nil {
		if errors.Is(err, simnet.ErrClosed) {
			return message.Result{}, io.EOF
		}
		return message.Result{}, err
	}
	res, ok := v.(message.Result)
	if !ok {
		return message.Result{}, fmt.Errorf("client: unexpected response message %T", v)
	}
	return res, nil
}
