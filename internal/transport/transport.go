// Package transport wraps quic-go behind the small session surface the
// transfer code needs: listen, dial, and bidirectional streams whose write
// halves can be closed independently of their read halves.
package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/quic-go/quic-go"
)

// Transport creates QUIC sessions from a fixed TLS and QUIC configuration.
type Transport struct {
	tlsConf  *tls.Config
	quicConf *quic.Config
}

func New(tlsConf *tls.Config, quicConf *quic.Config) *Transport {
	if quicConf == nil {
		quicConf = DefaultQUICConfig()
	}
	return &Transport{tlsConf: tlsConf, quicConf: quicConf}
}

// Listen binds addr and returns a listener producing inbound sessions.
func (t *Transport) Listen(addr string) (*Listener, error) {
	ln, err := quic.ListenAddr(addr, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Dial connects to addr and completes the handshake before returning.
func (t *Transport) Dial(ctx context.Context, addr string) (*Session, error) {
	conn, err := quic.DialAddr(ctx, addr, t.tlsConf, t.quicConf)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Listener accepts inbound sessions.
type Listener struct {
	ln *quic.Listener
}

func (l *Listener) Accept(ctx context.Context) (*Session, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

// Session is one established connection. Each bidirectional stream it
// carries holds exactly one file transfer.
type Session struct {
	conn *quic.Conn
}

// OpenStream opens a bidirectional stream, waiting for peer flow-control
// credit if necessary.
func (s *Session) OpenStream(ctx context.Context) (*quic.Stream, error) {
	return s.conn.OpenStreamSync(ctx)
}

// AcceptStream waits for the peer to open a bidirectional stream.
func (s *Session) AcceptStream(ctx context.Context) (*quic.Stream, error) {
	return s.conn.AcceptStream(ctx)
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) Close() error {
	return s.conn.CloseWithError(0, "")
}
