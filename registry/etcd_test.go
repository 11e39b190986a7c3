package registry

import (
	"context"
	"testing"
	"time"
)

// newTestRegistry connects to a local etcd or skips the test when none is
// reachable.
func newTestRegistry(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Skipf("etcd not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "healthcheck"); err != nil {
		reg.Close()
		t.Skipf("etcd not reachable on localhost:2379: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	inst1 := Instance{Addr: "dispatcher-1", Weight: 10, Version: "1.0"}
	inst2 := Instance{Addr: "dispatcher-2", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, "echo", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "echo", inst2, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(ctx, "echo", inst2.Addr)

	instances, err := reg.Discover(ctx, "echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, "echo", inst1.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	instances, err = reg.Discover(ctx, "echo")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance after deregister, got %d", len(instances))
	}
	if instances[0].Addr != inst2.Addr {
		t.Fatalf("expected %s, got %s", inst2.Addr, instances[0].Addr)
	}
}
