package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"github.com/tlqiu/quic3/internal/protocol"
	"github.com/tlqiu/quic3/internal/transfer"
)

// maxNameAttempts bounds how many unique suffixes are tried before the
// allocation is treated as exhausted.
const maxNameAttempts = 16

const streamErrTransferFailed = quic.StreamErrorCode(1)

// receiveFile runs one transfer from header to finalized file. On any
// failure the partial output is deleted so the output directory never holds
// a truncated file under a name a successful transfer would use.
func (s *Server) receiveFile(ctx context.Context, stream *quic.Stream, peer string, log *logrus.Entry) {
	startedAt := time.Now()

	header, err := protocol.ReadHeader(stream)
	if err != nil {
		log.Warnf("Failed to read transfer header: %v", err)
		stream.CancelRead(streamErrTransferFailed)
		stream.CancelWrite(streamErrTransferFailed)
		s.recordFailed(peer, "", 0, startedAt, err, log)
		return
	}

	name := protocol.SanitizeName(header.Name)
	log = log.WithField("file", name)

	file, path, err := allocOutputFile(s.cfg.Server.OutputDir, name)
	if err != nil {
		log.Warnf("Failed to allocate output file: %v", err)
		stream.CancelRead(streamErrTransferFailed)
		stream.CancelWrite(streamErrTransferFailed)
		s.recordFailed(peer, name, 0, startedAt, err, log)
		return
	}

	received, err := transfer.Receive(ctx, file, stream, s.cfg.Transfer.ChunkSize)
	if err != nil {
		_ = file.Close()
		if rmErr := os.Remove(path); rmErr != nil {
			log.Warnf("Failed to remove partial file %s: %v", path, rmErr)
		}
		log.Warnf("Transfer failed after %s: %v", humanize.Bytes(uint64(received)), err)
		stream.CancelRead(streamErrTransferFailed)
		stream.CancelWrite(streamErrTransferFailed)
		s.recordFailed(peer, name, received, startedAt, err, log)
		return
	}

	err = file.Sync()
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		log.Warnf("Failed to finalize %s: %v", path, err)
		stream.CancelWrite(streamErrTransferFailed)
		s.recordFailed(peer, name, received, startedAt, err, log)
		return
	}

	if header.Size != uint64(received) {
		log.Warnf("Expected %d bytes but received %d", header.Size, received)
	}

	if err := protocol.WriteAck(stream, protocol.Ack{Received: uint64(received)}); err != nil {
		log.Warnf("Failed to acknowledge transfer: %v", err)
	}
	_ = stream.Close()

	log.Infof("Received %s in %s, stored at %s",
		humanize.Bytes(uint64(received)), time.Since(startedAt).Round(time.Millisecond), path)
	s.recordReceived(peer, name, path, int64(header.Size), received, startedAt, log)
}

// allocOutputFile creates a fresh file under dir for the sanitized name,
// appending a random suffix while the plain name is taken. O_EXCL makes the
// allocation race-free across concurrent handlers.
func allocOutputFile(dir, name string) (*os.File, string, error) {
	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		path := filepath.Join(dir, candidate)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", transfer.IOError("sink", err)
		}
		candidate = suffixedName(name)
	}
	return nil, "", transfer.CollisionError("sink",
		fmt.Errorf("no free name for %q after %d attempts", name, maxNameAttempts))
}

// suffixedName inserts a random tag before the extension: report.pdf
// becomes report-3f9c2a1b.pdf.
func suffixedName(name string) string {
	tag := uuid.NewString()[:8]
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	return fmt.Sprintf("%s-%s%s", base, tag, ext)
}

func (s *Server) recordReceived(peer, name, path string, declared, bytes int64, startedAt time.Time, log *logrus.Entry) {
	if s.transfers == nil {
		return
	}
	if err := s.transfers.RecordReceived(peer, name, path, declared, bytes, startedAt); err != nil {
		log.Warnf("Failed to record transfer: %v", err)
	}
}

func (s *Server) recordFailed(peer, name string, bytes int64, startedAt time.Time, cause error, log *logrus.Entry) {
	if s.transfers == nil {
		return
	}
	if err := s.transfers.RecordFailed(peer, name, bytes, startedAt, cause); err != nil {
		log.Warnf("Failed to record transfer: %v", err)
	}
}
