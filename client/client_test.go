package client

import (
	"context"
	"errors"
	"testing"

	"simrpc/message"
	"simrpc/simnet"
)

func TestUnaryRejectsBadPath(t *testing.T) {
	c := New(simnet.NewNetwork())
	if _, err := c.Unary(context.Background(), "srv", "no-leading-slash", nil); err == nil {
		t.Fatal("expected a path validation error")
	}
}

func TestUnaryDialRefused(t *testing.T) {
	c := New(simnet.NewNetwork())
	_, err := c.Unary(context.Background(), "nobody", "/echo/Get", nil)
	if !errors.Is(err, simnet.ErrRefused) {
		t.Fatalf("expected ErrRefused, got %v", err)
	}
}

func TestUnaryAgainstRawEndpoint(t *testing.T) {
	net := simnet.NewNetwork()
	ep, err := net.Listen("srv")
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()

	ctx := context.Background()

	// Hand-rolled server half: expect a unary envelope, echo its payload.
	go func() {
		tx, rx, _, err := ep.Accept(ctx)
		if err != nil {
			return
		}
		first, err := rx.Recv(ctx)
		if err != nil {
			return
		}
		env := first.(message.Envelope)
		tx.Send(ctx, message.Ok(env.Payload))
		tx.Close()
	}()

	got, err := New(net).Unary(ctx, "srv", "/echo/Get", "raw")
	if err != nil {
		t.Fatal(err)
	}
	if got != "raw" {
		t.Fatalf("expected %q, got %v", "raw", got)
	}
}

func TestUnaryFailsWhenStreamClosesWithoutResult(t *testing.T) {
	net := simnet.NewNetwork()
	ep, err := net.Listen("srv")
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()

	ctx := context.Background()
	go func() {
		tx, rx, _, err := ep.Accept(ctx)
		if err != nil {
			return
		}
		rx.Recv(ctx)
		// Close without answering.
		tx.Close()
	}()

	if _, err := New(net).Unary(ctx, "srv", "/echo/Get", "x"); err == nil {
		t.Fatal("expected an error when the response stream closes empty")
	}
}
