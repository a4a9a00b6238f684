// Package protocol defines the wire format spoken on a transfer stream: a
// single header frame describing the file, the raw payload bytes, and a
// trailing acknowledgment from the receiver. End-of-payload carries no
// marker of its own; the sender half-closing the stream is the signal.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
)

const (
	// MaxNameLen bounds the file name carried in a header.
	MaxNameLen = math.MaxUint16

	// FallbackName is used when a peer sends an empty or unusable name.
	FallbackName = "received_file"

	headerPrefixLen = 2 + 8 // name length (u16) + file size (u64)
	ackLen          = 8     // received byte count (u64)
)

var ErrNameTooLong = errors.New("protocol: file name too long")

// Header describes the file that follows it on the stream.
type Header struct {
	Name string
	Size uint64
}

// WriteHeader encodes h onto w as a little-endian length-prefixed frame.
func WriteHeader(w io.Writer, h Header) error {
	name := []byte(h.Name)
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}

	buf := make([]byte, headerPrefixLen+len(name))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(name)))
	binary.LittleEndian.PutUint64(buf[2:10], h.Size)
	copy(buf[headerPrefixLen:], name)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// ReadHeader decodes a header from r. A stream that ends before the full
// header arrives yields an error, never a valid zero header.
func ReadHeader(r io.Reader) (Header, error) {
	prefix := make([]byte, headerPrefixLen)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return Header{}, fmt.Errorf("reading header: %w", err)
	}

	nameLen := int(binary.LittleEndian.Uint16(prefix[0:2]))
	size := binary.LittleEndian.Uint64(prefix[2:10])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Header{}, fmt.Errorf("reading header name: %w", err)
	}

	return Header{Name: string(name), Size: size}, nil
}

// Ack is written by the receiver once the file has been stored, just before
// it half-closes its own write side.
type Ack struct {
	Received uint64
}

// WriteAck encodes a onto w.
func WriteAck(w io.Writer, a Ack) error {
	buf := make([]byte, ackLen)
	binary.LittleEndian.PutUint64(buf, a.Received)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing ack: %w", err)
	}
	return nil
}

// ReadAck decodes an acknowledgment from r.
func ReadAck(r io.Reader) (Ack, error) {
	buf := make([]byte, ackLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Ack{}, fmt.Errorf("reading ack: %w", err)
	}
	return Ack{Received: binary.LittleEndian.Uint64(buf)}, nil
}

// SanitizeName reduces a peer-supplied file name to a bare file name,
// discarding any directory components so a hostile name cannot escape the
// output directory.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return FallbackName
	}
	return name
}
