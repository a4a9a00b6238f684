// Package server accepts QUIC sessions and stores one incoming file per
// bidirectional stream. Every session and every stream is handled by its
// own goroutine so a slow or broken peer never stalls the others.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/tlqiu/quic3/internal/config"
	"github.com/tlqiu/quic3/internal/store"
	"github.com/tlqiu/quic3/internal/transfer"
	"github.com/tlqiu/quic3/internal/transport"
)

// Server owns the listener lifecycle and dispatches transfer handlers.
type Server struct {
	cfg       *config.Config
	log       *logrus.Logger
	transfers *store.TransferStore
	transport *transport.Transport
	ln        *transport.Listener
	sem       *semaphore.Weighted
	sessionID atomic.Uint64
}

func New(cfg *config.Config, log *logrus.Logger, transfers *store.TransferStore) (*Server, error) {
	cert, err := transport.EnsureServerCert(cfg.Server.CertFile, cfg.Server.KeyFile, []string{"localhost", "127.0.0.1"})
	if err != nil {
		return nil, transfer.ConfigError("server", fmt.Errorf("loading identity: %w", err))
	}

	quicConf := transport.DefaultQUICConfig()
	quicConf.KeepAlivePeriod = cfg.Transfer.KeepAlivePeriod
	quicConf.MaxIdleTimeout = cfg.Transfer.MaxIdleTimeout

	return &Server{
		cfg:       cfg,
		log:       log,
		transfers: transfers,
		transport: transport.New(transport.ServerTLSConfig(cert), quicConf),
		sem:       semaphore.NewWeighted(cfg.Server.MaxActiveTransfers),
	}, nil
}

// Listen binds the configured address. It is separate from Serve so callers
// can learn the bound address before accepting.
func (s *Server) Listen() error {
	ln, err := s.transport.Listen(s.cfg.Server.Addr)
	if err != nil {
		return transfer.ConfigError("server", fmt.Errorf("binding %s: %w", s.cfg.Server.Addr, err))
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts sessions until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.ln.Close() }()

	s.log.Infof("Listening on %s, output directory %s", s.ln.Addr(), s.cfg.Server.OutputDir)

	for {
		sess, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.log.Info("Shutting down accept loop")
				return nil
			}
			return transfer.TransportError("accept", err)
		}

		id := s.sessionID.Add(1)
		go s.handleSession(ctx, sess, id)
	}
}

// handleSession accepts streams on one session. Failures here are contained
// to the session.
func (s *Server) handleSession(ctx context.Context, sess *transport.Session, id uint64) {
	peer := sess.RemoteAddr().String()
	log := s.log.WithFields(logrus.Fields{"session": id, "peer": peer})
	log.Info("Session accepted")

	defer func() { _ = sess.Close() }()

	for {
		stream, err := sess.AcceptStream(ctx)
		if err != nil {
			// Peer closed the session, idled out, or we are shutting down.
			log.Debugf("Session ended: %v", err)
			return
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer s.sem.Release(1)
			s.receiveFile(ctx, stream, peer, log)
		}()
	}
}
