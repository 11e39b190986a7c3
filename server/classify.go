package server

import (
	"context"
	"fmt"

	"simrpc/message"
	"simrpc/simnet"
)

// inboundCall is a classified connection: the opening envelope plus the
// lazy request sequence derived from it. The sequence is consumed once and
// cannot be restarted.
type inboundCall struct {
	env      message.Envelope
	requests <-chan any
}

// classify performs the single receive that starts every call and decides
// its shape from the envelope's kind tag. A receive failure or a first
// message that is not an envelope fails classification; the caller drops
// the connection and keeps accepting.
func classify(ctx context.Context, rx *simnet.Receiver) (*inboundCall, error) {
	first, err := rx.Recv(ctx)
	if err != nil {
		return nil, err
	}
	env, ok := first.(message.Envelope)
	if !ok {
		return nil, fmt.Errorf("server: unexpected first message %T", first)
	}

	switch env.Kind {
	case message.KindUnary:
		// Exactly one request, carried in the envelope. The connection is
		// never read again.
		requests := make(chan any, 1)
		requests <- env.Payload
		close(requests)
		return &inboundCall{env: env, requests: requests}, nil

	case message.KindStream:
		// Payloads follow as raw messages. Re-receive until the receiver
		// errors; graceful close and failure both end the sequence.
		requests := make(chan any)
		go func() {
			defer close(requests)
			for {
				msg, err := rx.Recv(ctx)
				if err != nil {
					return
				}
				requests <- msg
			}
		}()
		return &inboundCall{env: env, requests: requests}, nil

	default:
		return nil, fmt.Errorf("server: invalid envelope kind %d", env.Kind)
	}
}
