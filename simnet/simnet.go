// Package simnet provides the simulated in-process network the RPC
// dispatcher runs on. Instead of TCP sockets it moves opaque messages
// through in-memory channel pairs, which makes serving deterministic and
// testable without real I/O.
//
// Topology:
//
//	Network — maps addresses to listening endpoints
//	Endpoint — a bound listener; Accept yields one connection per call
//	Sender/Receiver — the two directions of an accepted connection
//
// One dialed connection carries exactly one logical RPC call.
package simnet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Send and Recv once a connection side is closed
	// and, for Recv, all queued messages have been drained.
	ErrClosed = errors.New("simnet: connection closed")
	// ErrRefused is returned by Dial when no endpoint listens on the address.
	ErrRefused = errors.New("simnet: connection refused")
	// ErrAddrInUse is returned by Listen when the address is already bound.
	ErrAddrInUse = errors.New("simnet: address already in use")
	// ErrEndpointClosed is returned by Accept after the endpoint is closed.
	ErrEndpointClosed = errors.New("simnet: endpoint closed")
)

// Addr identifies a network peer. It is opaque to the dispatcher and is
// handed to service handlers verbatim.
type Addr string

// Network is an isolated address space. Tests create their own Network;
// everything else can share Default.
type Network struct {
	mu        sync.Mutex
	endpoints map[Addr]*Endpoint
	nextPeer  atomic.Uint64
}

// Default is the process-wide network used by the package-level
// Listen and Dial helpers.
var Default = NewNetwork()

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[Addr]*Endpoint)}
}

// Listen binds a new endpoint on the default network.
func Listen(addr Addr) (*Endpoint, error) { return Default.Listen(addr) }

// Dial opens a connection on the default network.
func Dial(ctx context.Context, addr Addr) (*Sender, *Receiver, error) {
	return Default.Dial(ctx, addr)
}

// Listen binds a new endpoint on addr. Binding an address that is already
// in use fails with ErrAddrInUse.
func (n *Network) Listen(addr Addr) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[addr]; ok {
		return nil, fmt.Errorf("listen %s: %w", addr, ErrAddrInUse)
	}
	ep := &Endpoint{
		network: n,
		addr:    addr,
		backlog: make(chan accepted, backlogSize),
		done:    make(chan struct{}),
	}
	n.endpoints[addr] = ep
	return ep, nil
}

// Dial connects to the endpoint bound on addr and returns the client half
// of the connection. It fails with ErrRefused when nothing listens there.
func (n *Network) Dial(ctx context.Context, addr Addr) (*Sender, *Receiver, error) {
	n.mu.Lock()
	ep := n.endpoints[addr]
	n.mu.Unlock()
	if ep == nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, ErrRefused)
	}
	// Refuse deterministically once the endpoint is closed, even if the
	// backlog still has room.
	select {
	case <-ep.done:
		return nil, nil, fmt.Errorf("dial %s: %w", addr, ErrRefused)
	default:
	}

	// Two unidirectional pipes form one duplex connection.
	toServer := newPipe()
	toClient := newPipe()
	peer := Addr(fmt.Sprintf("peer-%d", n.nextPeer.Add(1)))

	conn := accepted{
		tx:   &Sender{p: toClient},
		rx:   &Receiver{p: toServer},
		peer: peer,
	}
	select {
	case ep.backlog <- conn:
		return &Sender{p: toServer}, &Receiver{p: toClient}, nil
	case <-ep.done:
		return nil, nil, fmt.Errorf("dial %s: %w", addr, ErrRefused)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (n *Network) unbind(addr Addr) {
	n.mu.Lock()
	delete(n.endpoints, addr)
	n.mu.Unlock()
}

// backlogSize bounds how many dialed connections may queue before Accept
// picks them up. Dials beyond it block, like a full TCP accept queue.
const backlogSize = 128

type accepted struct {
	tx   *Sender
	rx   *Receiver
	peer Addr
}

// Endpoint is a bound listener on a Network.
type Endpoint struct {
	network *Network
	addr    Addr
	backlog chan accepted
	done    chan struct{}
	once    sync.Once
}

// Addr returns the address the endpoint is bound on.
func (ep *Endpoint) Addr() Addr { return ep.addr }

// Accept waits for the next inbound connection and returns the server half:
// a Sender toward the peer, a Receiver from the peer, and the peer address.
func (ep *Endpoint) Accept(ctx context.Context) (*Sender, *Receiver, Addr, error) {
	select {
	case conn := <-ep.backlog:
		return conn.tx, conn.rx, conn.peer, nil
	case <-ep.done:
		return nil, nil, "", ErrEndpointClosed
	case <-ctx.Done():
		return nil, nil, "", ctx.Err()
	}
}

// Close unbinds the endpoint. Pending and future Accept calls fail with
// ErrEndpointClosed and future dials are refused. Connections already
// accepted are unaffected.
func (ep *Endpoint) Close() error {
	ep.once.Do(func() {
		ep.network.unbind(ep.addr)
		close(ep.done)
	})
	return nil
}
