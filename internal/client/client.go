// Package client sends one local file to a server over a single
// bidirectional QUIC stream and waits for the server's acknowledgment
// before reporting success.
package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/tlqiu/quic3/internal/config"
	"github.com/tlqiu/quic3/internal/protocol"
	"github.com/tlqiu/quic3/internal/transfer"
	"github.com/tlqiu/quic3/internal/transport"
)

// Client drives one file transfer per Send call.
type Client struct {
	cfg          *config.Config
	log          *logrus.Logger
	showProgress bool
}

func New(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{cfg: cfg, log: log}
}

// ShowProgress enables a terminal progress bar during Send.
func (c *Client) ShowProgress(enable bool) {
	c.showProgress = enable
}

// Result describes a completed transfer.
type Result struct {
	Name     string
	Sent     int64
	Acked    uint64
	Duration time.Duration
}

// Send transfers the file at filePath. The local file is opened before any
// network activity so a bad path fails without dialing. There is no retry;
// a failed transfer is reported to the caller as-is.
func (c *Client) Send(ctx context.Context, filePath string) (*Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, transfer.IOError("send", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, transfer.IOError("send", err)
	}
	if stat.IsDir() {
		return nil, transfer.IOError("send", fmt.Errorf("%s is a directory", filePath))
	}

	name := filepath.Base(filePath)
	size := stat.Size()

	tlsConf, err := transport.ClientTLSConfig(c.cfg.Client.CACertFile, c.cfg.Client.ServerName)
	if err != nil {
		return nil, transfer.ConfigError("send", err)
	}

	quicConf := transport.DefaultQUICConfig()
	quicConf.KeepAlivePeriod = c.cfg.Transfer.KeepAlivePeriod
	quicConf.MaxIdleTimeout = c.cfg.Transfer.MaxIdleTimeout

	c.log.Infof("Connecting to %s as %q", c.cfg.Client.ServerAddr, c.cfg.Client.ServerName)

	sess, err := transport.New(tlsConf, quicConf).Dial(ctx, c.cfg.Client.ServerAddr)
	if err != nil {
		return nil, transfer.TransportError("send", fmt.Errorf("connecting to %s: %w", c.cfg.Client.ServerAddr, err))
	}
	defer func() { _ = sess.Close() }()

	stream, err := sess.OpenStream(ctx)
	if err != nil {
		return nil, transfer.TransportError("send", fmt.Errorf("opening stream: %w", err))
	}

	if err := protocol.WriteHeader(stream, protocol.Header{Name: name, Size: uint64(size)}); err != nil {
		return nil, transfer.TransportError("send", err)
	}

	start := time.Now()

	var src io.Reader = file
	if c.showProgress {
		bar := progressbar.DefaultBytes(size, "sending")
		src = io.TeeReader(file, bar)
	}

	sent, err := transfer.Send(ctx, stream, src, c.cfg.Transfer.ChunkSize)
	if err != nil {
		return nil, err
	}

	// Half-close: end-of-data for the peer, our read side stays open for
	// the acknowledgment.
	if err := stream.Close(); err != nil {
		return nil, transfer.TransportError("send", fmt.Errorf("closing stream: %w", err))
	}

	ack, err := protocol.ReadAck(stream)
	if err != nil {
		return nil, transfer.TransportError("send", fmt.Errorf("awaiting acknowledgment: %w", err))
	}
	if ack.Received != uint64(sent) {
		return nil, transfer.TransportError("send",
			fmt.Errorf("server acknowledged %d bytes, sent %d", ack.Received, sent))
	}

	return &Result{
		Name:     name,
		Sent:     sent,
		Acked:    ack.Received,
		Duration: time.Since(start),
	}, nil
}
