// Package registry provides service discovery for dispatchers: a server
// announces the names it serves under its advertised address, and clients
// discover which addresses serve a name. Discovery is optional, the
// dispatcher works without it, and is distinct from the in-process routing
// table the dispatch loop owns.
package registry

import "context"

// Instance describes one announced server for a service name.
type Instance struct {
	Addr    string // advertised simnet address
	Weight  int    // relative weight, opaque to this package
	Version string
}

// Registry is the discovery contract.
type Registry interface {
	// Register announces an instance under serviceName with a TTL lease,
	// renewed in the background until Deregister or process death.
	Register(ctx context.Context, serviceName string, inst Instance, ttlSeconds int64) error

	// Deregister removes the instance announced under serviceName at addr.
	Deregister(ctx context.Context, serviceName, addr string) error

	// Discover returns the instances currently announced for serviceName.
	Discover(ctx context.Context, serviceName string) ([]Instance, error)

	// Watch emits the updated instance list whenever announcements for
	// serviceName change. The channel closes when ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []Instance
}
