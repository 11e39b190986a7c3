package message

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		service string
		method  string
		wantErr bool
	}{
		{in: "/echo/Get", service: "echo", method: "Get"},
		{in: "/echo/v1/Get", service: "echo", method: "v1/Get"},
		{in: "/echo", service: "echo", method: ""},
		{in: "echo/Get", wantErr: true},
		{in: "/", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		p, err := ParsePath(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePath(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePath(%q): %v", tt.in, err)
			continue
		}
		if p.Service() != tt.service {
			t.Errorf("ParsePath(%q).Service() = %q, want %q", tt.in, p.Service(), tt.service)
		}
		if p.Method() != tt.method {
			t.Errorf("ParsePath(%q).Method() = %q, want %q", tt.in, p.Method(), tt.method)
		}
		if p.String() != tt.in {
			t.Errorf("ParsePath(%q).String() = %q", tt.in, p.String())
		}
	}
}

func TestEnvelopeKinds(t *testing.T) {
	p, err := ParsePath("/echo/Get")
	if err != nil {
		t.Fatal(err)
	}

	u := NewUnary(p, "payload")
	if u.Kind != KindUnary || u.Payload != "payload" {
		t.Fatalf("unexpected unary envelope: %+v", u)
	}

	s := NewStream(p)
	if s.Kind != KindStream || s.Payload != nil {
		t.Fatalf("unexpected stream envelope: %+v", s)
	}

	if KindUnary.String() != "unary" || KindStream.String() != "stream" {
		t.Fatal("unexpected kind names")
	}
}

func TestResult(t *testing.T) {
	ok := Ok(42)
	if ok.Failed() || ok.Err() != nil || ok.Payload != 42 {
		t.Fatalf("unexpected ok result: %+v", ok)
	}

	nf := Errf(codes.NotFound, "service %q is not registered", "missing")
	if !nf.Failed() {
		t.Fatal("expected a failed result")
	}
	if status.Code(nf.Err()) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", status.Code(nf.Err()))
	}

	conv := ErrFromError(status.Error(codes.Unavailable, "busy"))
	if status.Code(conv.Err()) != codes.Unavailable {
		t.Fatalf("expected Unavailable to survive conversion, got %v", status.Code(conv.Err()))
	}

	if !Err(nil).Failed() {
		t.Fatal("Err(nil) must still report failure")
	}
}
