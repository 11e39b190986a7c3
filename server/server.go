// Package server implements the RPC dispatcher: a builder that accumulates
// named services, and a router that accepts connections, classifies each
// call as unary or streaming, and fans responses back without blocking the
// accept loop on any single call.
//
// Dispatch pipeline:
//
//	Endpoint.Accept (raced against the shutdown signal)
//	  → go dispatch (one detached goroutine per connection)
//	    → classify first envelope (unary | stream marker)
//	    → registry lookup by first path segment
//	    → wait on the service's readiness gate
//	    → invoke → forward the result stream in order
package server

import (
	"crypto/tls"
	"log/slog"
	"time"

	"simrpc/service"
	"simrpc/simnet"
)

// Server is the configuration builder. Most of its knobs mirror a full
// transport stack (TLS, HTTP/2 flow control, keepalive); on this simulated
// transport they are accepted for API compatibility and have no effect.
// Only Logger, Network, and DispatchHook change behavior.
type Server struct {
	logger  *slog.Logger
	network *simnet.Network
	hook    DispatchHook
	config  config
}

// config stores the inert transport knobs. They are retained so callers can
// port configuration over from a real transport unchanged, but nothing in
// the dispatcher reads them.
type config struct {
	tlsConfig                   *tls.Config
	timeout                     time.Duration
	concurrencyLimitPerConn     int
	initialStreamWindowSize     uint32
	initialConnectionWindowSize uint32
	maxConcurrentStreams        uint32
	http2KeepaliveInterval      time.Duration
	http2KeepaliveTimeout       time.Duration
	tcpKeepalive                time.Duration
	tcpNodelay                  bool
	maxFrameSize                uint32
	acceptHTTP1                 bool
}

// New creates a server builder with default logging on the default network.
func New() *Server {
	return &Server{
		logger:  slog.Default(),
		network: simnet.Default,
	}
}

// Logger sets the structured logger used by the dispatch loop.
func (s *Server) Logger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Network sets the simnet network to bind on. Defaults to simnet.Default;
// tests use isolated networks.
func (s *Server) Network(n *simnet.Network) *Server {
	s.network = n
	return s
}

// DispatchHook installs an observability hook called around each dispatch.
func (s *Server) DispatchHook(hook DispatchHook) *Server {
	s.hook = hook
	return s
}

// AddService registers the first service and returns the router that
// accumulates the rest.
func (s *Server) AddService(svc service.Service) *Router {
	r := &Router{
		server:   s,
		services: make(map[string]service.Service),
	}
	return r.AddService(svc)
}

// TLSConfig is accepted for API compatibility. TLS is not implemented on
// the simulated transport; the setting is ignored.
func (s *Server) TLSConfig(cfg *tls.Config) *Server {
	s.config.tlsConfig = cfg
	return s
}

// Timeout is accepted for API compatibility. Calls have no deadline on this
// transport; the setting is ignored.
func (s *Server) Timeout(d time.Duration) *Server {
	s.config.timeout = d
	return s
}

// ConcurrencyLimitPerConnection is accepted for API compatibility and
// ignored. Admission control belongs to each service's readiness gate.
func (s *Server) ConcurrencyLimitPerConnection(limit int) *Server {
	s.config.concurrencyLimitPerConn = limit
	return s
}

// InitialStreamWindowSize is accepted for API compatibility and ignored;
// the simulated transport has no flow control.
func (s *Server) InitialStreamWindowSize(sz uint32) *Server {
	s.config.initialStreamWindowSize = sz
	return s
}

// InitialConnectionWindowSize is accepted for API compatibility and ignored.
func (s *Server) InitialConnectionWindowSize(sz uint32) *Server {
	s.config.initialConnectionWindowSize = sz
	return s
}

// MaxConcurrentStreams is accepted for API compatibility and ignored.
func (s *Server) MaxConcurrentStreams(max uint32) *Server {
	s.config.maxConcurrentStreams = max
	return s
}

// HTTP2KeepaliveInterval is accepted for API compatibility and ignored.
func (s *Server) HTTP2KeepaliveInterval(d time.Duration) *Server {
	s.config.http2KeepaliveInterval = d
	return s
}

// HTTP2KeepaliveTimeout is accepted for API compatibility and ignored.
func (s *Server) HTTP2KeepaliveTimeout(d time.Duration) *Server {
	s.config.http2KeepaliveTimeout = d
	return s
}

// TCPKeepalive is accepted for API compatibility and ignored.
func (s *Server) TCPKeepalive(d time.Duration) *Server {
	s.config.tcpKeepalive = d
	return s
}

// TCPNodelay is accepted for API compatibility and ignored.
func (s *Server) TCPNodelay(enabled bool) *Server {
	s.config.tcpNodelay = enabled
	return s
}

// MaxFrameSize is accepted for API compatibility and ignored.
func (s *Server) MaxFrameSize(sz uint32) *Server {
	s.config.maxFrameSize = sz
	return s
}

// AcceptHTTP1 is accepted for API compatibility and ignored.
func (s *Server) AcceptHTTP1(accept bool) *Server {
	s.config.acceptHTTP1 = accept
	return s
}
