// Package service defines the contract every registered handler implements
// and adapters for building handlers out of plain functions.
//
// A call reaches a handler as a lazy request channel and leaves it as a lazy
// result channel. Invocation itself is infallible: anything that goes wrong
// inside a handler is reported as an Err item on the result channel, never
// as a dispatch-time error.
package service

import (
	"context"

	"simrpc/message"
	"simrpc/simnet"
)

// Service is the uniform call contract the dispatcher routes to.
//
// Ready gates admission: the dispatch loop waits on it before submitting a
// call, which is how a handler applies backpressure (see RateLimited and
// Bounded). Call must return promptly with a result channel and do its work
// asynchronously; it must eventually close the channel. Results are
// delivered to the peer in the order they are sent on the channel.
type Service interface {
	// Name is the registry key. Calls whose first path segment equals Name
	// are routed here.
	Name() string

	// Ready blocks until the handler is willing to accept one more call.
	// A non-nil error refuses the call (reported to the peer as a status).
	Ready(ctx context.Context) error

	// Call processes one logical call. The requests channel yields the
	// single payload of a unary call or the payloads of a streaming call,
	// and is closed when the caller is done. The returned channel carries
	// the response sequence and is closed when the call completes.
	Call(ctx context.Context, peer simnet.Addr, path message.Path, requests <-chan any) <-chan message.Result
}

// CallFunc is the functional form of Service.Call.
type CallFunc func(ctx context.Context, peer simnet.Addr, path message.Path, requests <-chan any) <-chan message.Result

type funcService struct {
	name string
	call CallFunc
}

// Func wraps a call function as an always-ready Service registered under name.
func Func(name string, call CallFunc) Service {
	return &funcService{name: name, call: call}
}

func (s *funcService) Name() string                    { return s.name }
func (s *funcService) Ready(ctx context.Context) error { return nil }
func (s *funcService) Call(ctx context.Context, peer simnet.Addr, path message.Path, requests <-chan any) <-chan message.Result {
	return s.call(ctx, peer, path, requests)
}

// Handler processes one request payload and produces one response payload.
type Handler func(ctx context.Context, req any) (any, error)

// PerRequest builds a Service that applies fn to every request payload in
// order, emitting one result per request. A handler error becomes an Err
// item and the stream continues with the next request. This shape covers
// both unary calls (one request in, one result out) and echo-style streams.
func PerRequest(name string, fn Handler) Service {
	return Func(name, func(ctx context.Context, _ simnet.Addr, _ message.Path, requests <-chan any) <-chan message.Result {
		results := make(chan message.Result)
		go func() {
			defer close(results)
			for req := range requests {
				payload, err := fn(ctx, req)
				if err != nil {
					results <- message.ErrFromError(err)
					continue
				}
				results <- message.Ok(payload)
			}
		}()
		return results
	})
}
