package server

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"

	"simrpc/message"
	"simrpc/registry"
	"simrpc/service"
	"simrpc/simnet"
)

// Router owns the service registry for one serving session and runs the
// dispatch loop. The registry is populated before serving starts and is not
// mutated afterwards, so dispatch-time lookups need no locking.
type Router struct {
	server   *Server
	services map[string]service.Service

	// tasks tracks the detached response goroutines. The loop never waits
	// on it — shutdown is best-effort and in-flight calls run to
	// completion on their own — but it is the drain point if a graceful
	// mode is ever wanted.
	tasks sync.WaitGroup

	discovery     registry.Registry
	advertiseAddr string
}

// AddService registers svc under svc.Name(). Registering a second service
// under the same name replaces the first (last write wins); that is a
// configuration mistake and is logged as such.
func (r *Router) AddService(svc service.Service) *Router {
	if _, ok := r.services[svc.Name()]; ok {
		r.server.logger.Warn("service registered twice, replacing previous handler",
			"service", svc.Name())
	}
	r.services[svc.Name()] = svc
	return r
}

// Announce enables service discovery: when serving starts every registered
// service name is announced at advertiseAddr, and the entries are removed
// when serving stops.
func (r *Router) Announce(reg registry.Registry, advertiseAddr string) *Router {
	r.discovery = reg
	r.advertiseAddr = advertiseAddr
	return r
}

// Serve binds addr and dispatches calls until a transport error occurs.
func (r *Router) Serve(addr string) error {
	// A nil shutdown channel never fires, so this serves forever.
	return r.ServeWithShutdown(addr, nil)
}

// announceTTLSeconds is the discovery lease TTL. The registry renews it in
// the background; if the process dies the entry expires on its own.
const announceTTLSeconds = 10

// ServeWithShutdown binds addr and dispatches calls until the shutdown
// channel fires or a transport error occurs.
//
// Shutdown is best-effort: once the signal resolves no further connections
// are accepted and ServeWithShutdown returns nil, but calls already
// dispatched are not cancelled — their response goroutines keep running
// until each result stream completes. When acceptance and shutdown are
// ready at the same time, shutdown wins.
func (r *Router) ServeWithShutdown(addr string, shutdown <-chan struct{}) error {
	logger := r.server.logger

	ep, err := r.server.network.Listen(simnet.Addr(addr))
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	defer ep.Close()

	if r.discovery != nil {
		for name := range r.services {
			if err := r.discovery.Register(context.Background(), name, registry.Instance{Addr: r.advertiseAddr}, announceTTLSeconds); err != nil {
				return fmt.Errorf("announce %s: %w", name, err)
			}
		}
		defer func() {
			for name := range r.services {
				if err := r.discovery.Deregister(context.Background(), name, r.advertiseAddr); err != nil {
					logger.Warn("deregister failed", "service", name, "err", err)
				}
			}
		}()
	}

	// Pump accepts through a channel so acceptance can be raced against
	// the shutdown signal. The pump stops when the loop returns.
	acceptCtx, cancelAccept := context.WithCancel(context.Background())
	defer cancelAccept()

	type inbound struct {
		tx   *simnet.Sender
		rx   *simnet.Receiver
		peer simnet.Addr
	}
	conns := make(chan inbound)
	acceptErr := make(chan error, 1)
	go func() {
		for {
			tx, rx, peer, err := ep.Accept(acceptCtx)
			if err != nil {
				if acceptCtx.Err() != nil {
					return
				}
				acceptErr <- err
				return
			}
			select {
			case conns <- inbound{tx: tx, rx: rx, peer: peer}:
			case <-acceptCtx.Done():
				return
			}
		}
	}()

	logger.Info("serving", "addr", addr, "services", len(r.services))
	for {
		// Shutdown wins ties: check it before blocking on acceptance.
		select {
		case <-shutdown:
			logger.Info("shutdown signal received, acceptance stopped", "addr", addr)
			return nil
		default:
		}
		select {
		case <-shutdown:
			logger.Info("shutdown signal received, acceptance stopped", "addr", addr)
			return nil
		case err := <-acceptErr:
			return fmt.Errorf("accept: %w", err)
		case c := <-conns:
			// Each connection gets its own goroutine so a slow first
			// receive or a blocked readiness gate on one service never
			// delays dispatch to another.
			r.tasks.Add(1)
			go func() {
				defer r.tasks.Done()
				r.dispatch(c.tx, c.rx, c.peer)
			}()
		}
	}
}

// dispatch runs one call end to end: classify the first envelope, resolve
// the target service, wait on its readiness gate, invoke it, and forward
// the result stream in order. It runs detached from the accept loop and
// from the shutdown signal.
func (r *Router) dispatch(tx *simnet.Sender, rx *simnet.Receiver, peer simnet.Addr) {
	logger := r.server.logger

	// Call contexts are deliberately detached from the dispatch loop:
	// shutdown stops acceptance only, so in-flight calls must not be
	// cancelled when the loop returns.
	ctx := context.Background()

	call, err := classify(ctx, rx)
	if err != nil {
		// Handshake or malformed first message. Non-fatal: drop the
		// connection and keep accepting.
		logger.Debug("dropping connection", "peer", peer, "err", err)
		tx.Close()
		return
	}
	path := call.env.Path
	logger.Debug("request", "path", path.String(), "peer", peer, "kind", call.env.Kind.String())

	svc, ok := r.services[path.Service()]
	if !ok {
		// Unknown service: the caller gets a NotFound status; the loop
		// is unaffected.
		logger.Warn("service not registered", "service", path.Service(), "peer", peer)
		r.respondOnce(tx, message.Errf(codes.NotFound, "service %q is not registered", path.Service()))
		return
	}

	info := DispatchInfo{
		Path:    path.String(),
		Service: path.Service(),
		Method:  path.Method(),
		Kind:    call.env.Kind.String(),
		Peer:    string(peer),
	}
	ctx, token := r.hookStart(ctx, info)

	// The readiness gate is the only admission control: the call waits
	// here until the service accepts one more submission.
	if err := svc.Ready(ctx); err != nil {
		logger.Warn("service refused call", "service", path.Service(), "err", err)
		r.respondOnce(tx, message.ErrFromError(err))
		r.hookEnd(ctx, token, info, err)
		return
	}

	results := svc.Call(ctx, peer, path, call.requests)
	r.hookEnd(ctx, token, info, r.respond(ctx, tx, results))
}

// respond drains one call's result stream in order. A send failure means
// the peer went away; it ends this goroutine only.
func (r *Router) respond(ctx context.Context, tx *simnet.Sender, results <-chan message.Result) error {
	defer tx.Close()
	for res := range results {
		if err := tx.Send(ctx, res); err != nil {
			r.server.logger.Debug("response send failed", "err", err)
			return err
		}
	}
	return nil
}

// respondOnce delivers a single result and closes the response stream,
// used for calls that never reach a service.
func (r *Router) respondOnce(tx *simnet.Sender, res message.Result) {
	if err := tx.Send(context.Background(), res); err != nil {
		r.server.logger.Debug("response send failed", "err", err)
	}
	tx.Close()
}

func (r *Router) hookStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	if r.server.hook == nil {
		return ctx, nil
	}
	return r.server.hook.OnDispatchStart(ctx, info)
}

func (r *Router) hookEnd(ctx context.Context, token HookToken, info DispatchInfo, err error) {
	if r.server.hook == nil {
		return
	}
	r.server.hook.OnDispatchEnd(ctx, token, info, err)
}
