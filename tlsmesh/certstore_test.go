package tlsmesh

import (
	"crypto/x509"
	"testing"
)

func TestNewSelfSignedCertParses(t *testing.T) {
	pemCert, pemKey, err := newSelfSignedCert()
	if err != nil {
		t.Fatalf("newSelfSignedCert: %v", err)
	}

	if len(pemCert) == 0 || len(pemKey) == 0 {
		t.Fatal("expected non-empty cert and key PEM blocks")
	}
}

func TestPeerIdentityFallsBackToSubject(t *testing.T) {
	cert := &x509.Certificate{}
	cert.Subject.CommonName = "node-a"

	if got := PeerIdentity(cert); got != "node-a" {
		t.Errorf("PeerIdentity() = %q, want node-a", got)
	}
}

func TestPeerIdentityPrefersDNSName(t *testing.T) {
	cert := &x509.Certificate{DNSNames: []string{"node-b.mesh"}}
	cert.Subject.CommonName = "node-b"

	if got := PeerIdentity(cert); got != "node-b.mesh" {
		t.Errorf("PeerIdentity() = %q, want node-b.mesh", got)
	}
}
