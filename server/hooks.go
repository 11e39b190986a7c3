package server

import "context"

// DispatchHook provides observability callpoints around call dispatch.
// OnDispatchStart runs on the dispatch loop before the readiness wait;
// OnDispatchEnd runs when the call's response stream has been fully
// forwarded (or delivery failed). Implementations must be safe for
// concurrent use: ends for different calls fire from independent
// goroutines.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, err error)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back
// to OnDispatchEnd. Only meaningful to the DispatchHook that created it.
type HookToken any

// DispatchInfo carries call metadata passed to hooks.
type DispatchInfo struct {
	Path    string // full request path, e.g. "/echo/Get"
	Service string // registry key, the first path segment
	Method  string // remainder of the path
	Kind    string // "unary" or "stream"
	Peer    string // caller address
}
