// Package message defines the types exchanged over a simnet connection.
//
// Every logical call starts with exactly one Envelope. The envelope carries
// the routing path and a kind tag that says up front whether the call is
// unary (the envelope holds the single request payload) or streaming (the
// envelope is only a marker; the payloads follow as raw messages until the
// connection closes). Responses flow back as a sequence of Result values.
package message

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind tags the first envelope of a call. The tag is decided by the caller,
// so the dispatcher never has to guess the request shape from the payload.
type Kind uint8

const (
	// KindUnary marks a call with exactly one request payload, carried in
	// the envelope itself.
	KindUnary Kind = iota
	// KindStream marks a streaming call. The envelope carries no payload;
	// request payloads follow as separate messages.
	KindStream
)

// String returns the dispatch kind name used in logs and hook metadata.
func (k Kind) String() string {
	switch k {
	case KindUnary:
		return "unary"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Path is a parsed route of the form /<service>/<method>. Only the service
// segment is used for registry lookup; handlers receive the full path.
type Path struct {
	full    string
	service string
	method  string
}

// ParsePath validates and splits a route. The service segment must be
// non-empty; everything after it is the method (and may itself contain
// slashes).
func ParsePath(s string) (Path, error) {
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("message: path %q must start with '/'", s)
	}
	service, method, _ := strings.Cut(s[1:], "/")
	if service == "" {
		return Path{}, fmt.Errorf("message: path %q has no service segment", s)
	}
	return Path{full: s, service: service, method: method}, nil
}

// Service returns the first path segment, the registry lookup key.
func (p Path) Service() string { return p.service }

// Method returns everything after the service segment, possibly empty.
func (p Path) Method() string { return p.method }

// String returns the full path as sent by the caller.
func (p Path) String() string { return p.full }

// Envelope is the first message of every call.
type Envelope struct {
	Path    Path
	Kind    Kind
	Payload any // the single request for KindUnary, nil for KindStream
}

// NewUnary builds the first envelope of a unary call.
func NewUnary(path Path, payload any) Envelope {
	return Envelope{Path: path, Kind: KindUnary, Payload: payload}
}

// NewStream builds the stream-marker envelope that opens a streaming call.
func NewStream(path Path) Envelope {
	return Envelope{Path: path, Kind: KindStream}
}

// Result is one item of a response sequence: either a payload or a status
// error. Handlers report failures as Err items; the dispatcher never fails
// a call any other way.
type Result struct {
	Payload any
	Status  *status.Status // nil on success
}

// Ok wraps a successful response payload.
func Ok(payload any) Result {
	return Result{Payload: payload}
}

// Err wraps a status failure.
func Err(st *status.Status) Result {
	if st == nil {
		st = status.New(codes.Unknown, "unknown error")
	}
	return Result{Status: st}
}

// Errf builds an Err result from a code and format string.
func Errf(c codes.Code, format string, args ...any) Result {
	return Result{Status: status.Newf(c, format, args...)}
}

// ErrFromError converts a plain error into an Err result, preserving an
// embedded status when there is one.
func ErrFromError(err error) Result {
	return Result{Status: status.Convert(err)}
}

// Failed reports whether the result carries a status error.
func (r Result) Failed() bool { return r.Status != nil }

// Err returns the status as an error, or nil on success.
func (r Result) Err() error {
	if r.Status == nil {
		return nil
	}
	return r.Status.Err()
}
