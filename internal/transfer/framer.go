// Package transfer moves file bytes between the local filesystem and a
// network stream in bounded chunks. It carries no per-chunk framing: the
// stream delivers bytes in order, and the sender half-closing its write
// side is the end-of-data signal.
package transfer

import (
	"context"
	"io"
)

// DefaultChunkSize is the read/write unit used when no size is configured.
const DefaultChunkSize = 64 * 1024

// Send copies src onto dst in chunks of at most chunkSize bytes and returns
// the number of bytes written. It does not close dst; half-closing the
// stream after a successful Send is the caller's responsibility. A read
// failure on src is classified as an IO error, a write failure on dst as a
// transport error.
func Send(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, TransportError("send", err)
		}

		n, err := src.Read(buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, TransportError("send", werr)
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, IOError("send", err)
		}
	}
}

// Receive copies src into dst in chunks of at most chunkSize bytes until the
// peer half-closes the stream, and returns the number of bytes stored. A
// stream reset or any other read failure before the clean end-of-data is a
// transport error; the destination must not be treated as final in that
// case. A write failure on dst is an IO error.
func Receive(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	buf := make([]byte, chunkSize)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, TransportError("receive", err)
		}

		n, err := src.Read(buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, IOError("receive", werr)
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, TransportError("receive", err)
		}
	}
}
