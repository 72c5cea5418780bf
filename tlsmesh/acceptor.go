package tlsmesh

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"
)

// ErrNoPeerCerts is returned when the handshake completes but no client
// certificate surfaces within the poll window.
var ErrNoPeerCerts = errors.New("tlsmesh: no peer certificates presented")

const (
	peerCertPollInterval = 250 * time.Millisecond
	peerCertPollAttempts = 20
)

// Acceptor performs the server side of the inner mTLS handshake tunneled
// through a WebSocket connection (transport.WSConn), independent of
// whatever transport security the outer HTTP server used to accept the
// WebSocket upgrade.
type Acceptor struct {
	store *CertStore
}

// NewAcceptor builds an Acceptor backed by store.
func NewAcceptor(store *CertStore) *Acceptor {
	return &Acceptor{store: store}
}

// Accept runs the server-side TLS handshake over conn and returns the
// authenticated *tls.Conn along with the peer's identity string. Per
// SPEC_FULL.md §4.2, PeerCertificates can lag the handshake completing, so
// this polls up to peerCertPollAttempts times before giving up.
func (a *Acceptor) Accept(ctx context.Context, conn net.Conn) (*tls.Conn, string, error) {
	cfg, err := a.store.ServerTLSConfig()
	if err != nil {
		return nil, "", err
	}

	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, "", err
	}

	identity, err := pollPeerIdentity(ctx, tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, "", err
	}

	return tlsConn, identity, nil
}

// Connector performs the client side of the inner mTLS handshake.
type Connector struct {
	store *CertStore
}

// NewConnector builds a Connector backed by store.
func NewConnector(store *CertStore) *Connector {
	return &Connector{store: store}
}

// Dial runs the client-side TLS handshake over conn, authenticating the
// peer as serverName, and returns the authenticated *tls.Conn and the
// peer's identity string.
func (c *Connector) Dial(ctx context.Context, conn net.Conn, serverName string) (*tls.Conn, string, error) {
	cfg, err := c.store.ClientTLSConfig()
	if err != nil {
		return nil, "", err
	}
	cfg = cfg.Clone()
	cfg.ServerName = serverName

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, "", err
	}

	identity, err := pollPeerIdentity(ctx, tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, "", err
	}

	return tlsConn, identity, nil
}

func pollPeerIdentity(ctx context.Context, conn *tls.Conn) (string, error) {
	for attempt := 0; attempt < peerCertPollAttempts; attempt++ {
		if certs := conn.ConnectionState().PeerCertificates; len(certs) > 0 {
			return PeerIdentity(certs[0]), nil
		}

		timer := time.NewTimer(peerCertPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return "", ErrNoPeerCerts
}

// PeerIdentity extracts the peer's logical identity from its certificate:
// the first DNS SAN if present, else the first URI SAN, else the
// certificate's Subject DN string (e.g. "CN=node-a").
func PeerIdentity(cert *x509.Certificate) string {
	if len(cert.DNSNames) > 0 {
		return cert.DNSNames[0]
	}
	if len(cert.URIs) > 0 {
		return cert.URIs[0].String()
	}
	return cert.Subject.String()
}
