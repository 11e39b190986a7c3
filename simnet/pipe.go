package simnet

import (
	"context"
	"sync"
)

// pipe is one direction of a connection: an unbounded in-order message
// queue with close semantics. Closing stops further sends immediately, but
// the receiver still drains everything queued before seeing ErrClosed, so a
// streaming caller can send its last payload and hang up without losing
// messages.
type pipe struct {
	mu     sync.Mutex
	queue  []any
	closed bool
	notify chan struct{} // capacity 1, coalesces wakeups
}

func newPipe() *pipe {
	return &pipe{notify: make(chan struct{}, 1)}
}

func (p *pipe) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *pipe) send(ctx context.Context, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, msg)
	p.mu.Unlock()
	p.wake()
	return nil
}

func (p *pipe) recv(ctx context.Context) (any, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			msg := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			// Wake any other waiter in case more messages remain.
			p.wake()
			return msg, nil
		}
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}
		p.mu.Unlock()

		select {
		case <-p.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *pipe) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wake()
}

// Sender is the write half of one connection direction.
type Sender struct {
	p *pipe
}

// Send delivers one opaque message to the peer. It fails with ErrClosed
// once either side has closed the direction.
func (s *Sender) Send(ctx context.Context, msg any) error {
	return s.p.send(ctx, msg)
}

// Close marks the end of the message sequence. The peer drains what was
// already sent and then receives ErrClosed.
func (s *Sender) Close() error {
	s.p.close()
	return nil
}

// Receiver is the read half of one connection direction.
type Receiver struct {
	p *pipe
}

// Recv returns the next message in order. It fails with ErrClosed after the
// sender closed and the queue is drained, or with the context error.
func (r *Receiver) Recv(ctx context.Context) (any, error) {
	return r.p.recv(ctx)
}

// Close tears the direction down from the receiving side. The peer's next
// Send fails with ErrClosed.
func (r *Receiver) Close() error {
	r.p.close()
	return nil
}
