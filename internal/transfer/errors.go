package transfer

import (
	"errors"
	"fmt"
)

// Kind classifies a transfer failure so callers can decide whether it is
// fatal for the process, for one invocation, or for a single stream.
type Kind int

const (
	// KindConfig marks invalid addresses or unreadable credentials. Fatal
	// at startup.
	KindConfig Kind = iota
	// KindIO marks a local file open/read/write failure. Fatal for the
	// affected transfer only.
	KindIO
	// KindTransport marks handshake, certificate, reset, or stream I/O
	// failures reported by the network layer.
	KindTransport
	// KindNameCollision marks exhaustion of unique output name allocation.
	KindNameCollision
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIO:
		return "io"
	case KindTransport:
		return "transport"
	case KindNameCollision:
		return "name_collision"
	default:
		return "unknown"
	}
}

// Error is a classified transfer failure wrapping its underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigError wraps err as a startup configuration failure.
func ConfigError(op string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// IOError wraps err as a local filesystem failure.
func IOError(op string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// TransportError wraps err as a network-layer failure.
func TransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// CollisionError wraps err as an exhausted output name allocation.
func CollisionError(op string, err error) *Error {
	return &Error{Kind: KindNameCollision, Op: op, Err: err}
}

// KindOf extracts the classification of err, or KindTransport when err does
// not carry one: an unclassified failure mid-transfer came off the wire.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransport
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}
