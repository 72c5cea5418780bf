package mesh

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/tlsmesh"
	"github.com/ThePerkinrex/gilbert/transport"
)

// newTestCertStore writes a fresh self-signed cert/key pair naming identity
// as its DNS SAN, so the two ends of a test mesh link authenticate as
// distinct peers without needing a shared CA.
func newTestCertStore(t *testing.T, identity string) *tlsmesh.CertStore {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	tpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: identity},
		DNSNames:     []string{identity},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	certFile, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encode cert: %v", err)
	}
	certFile.Close()

	keyFile, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	if err := pem.Encode(keyFile, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}); err != nil {
		t.Fatalf("encode key: %v", err)
	}
	keyFile.Close()

	return tlsmesh.NewCertStore("", certPath, keyPath)
}

// acceptTestChatter emulates httpapi.Server.handleChatter's accept path
// (upgrade, mTLS accept, send Hello, mark Up) without importing httpapi,
// which would create an import cycle from this package's test binary.
func acceptTestChatter(t *testing.T, handlers *Handlers) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	acceptor := tlsmesh.NewAcceptor(handlers.Store)

	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}

		wsConn := transport.NewWSConn(ws)
		tlsConn, identity, err := acceptor.Accept(r.Context(), wsConn)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}

		frame := transport.NewFramedConn(tlsConn)
		conn := Accepted(identity, frame, tlsConn, handlers.Manager, handlers)

		gen := handlers.General()
		hello := chatter.Hello(gen.Snapshot(), handlers.Priority, handlers.Manager.Connected(), handlers.Token)
		if err := conn.Send(hello); err != nil {
			t.Errorf("send hello: %v", err)
			_ = conn.Close()
			return
		}

		handlers.Manager.Up(identity, conn)
	}
}

// TestDialSendsHelloAndRegistersBothPeersUp exercises spec.md §8 scenario 2
// end to end over a real WebSocket+mTLS link: bob dials alice, both sides
// send Hello, and both registries converge on StatusUp.
func TestDialSendsHelloAndRegistersBothPeersUp(t *testing.T) {
	aliceStore := newTestCertStore(t, "alice")
	bobStore := newTestCertStore(t, "bob")

	general := func() config.GeneralConfig {
		return config.GeneralConfig{ClusterName: "hive", Tasks: map[string]config.TaskInfo{"build": {}}}
	}

	aliceManager := NewNodeManager()
	aliceHandlers := &Handlers{Self: "alice", General: general, Store: aliceStore, Manager: aliceManager, Priority: 3, Token: "shh"}

	server := httptest.NewServer(acceptTestChatter(t, aliceHandlers))
	defer server.Close()

	bobManager := NewNodeManager()
	bobHandlers := &Handlers{Self: "bob", General: general, Store: bobStore, Manager: bobManager, Priority: 7, Token: "shh"}

	if err := Dial(context.Background(), "alice", server.URL, "bob", bobStore, bobManager, bobHandlers, general(), bobHandlers.Priority, bobHandlers.Token); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if status, _ := bobManager.Get("alice"); status != StatusUp {
		t.Fatalf("bob's view of alice = %v, want StatusUp", status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, _ := aliceManager.Get("bob"); status == StatusUp {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for alice to register bob as Up")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestDialHelloTokenMismatchDropsAcceptedSide exercises the ConfigsDontMatch
// fatal path over a real link: bob dials with the wrong token, so alice's
// Connection rejects bob's Hello and alice's registry falls back to Down.
func TestDialHelloTokenMismatchDropsAcceptedSide(t *testing.T) {
	aliceStore := newTestCertStore(t, "alice")
	bobStore := newTestCertStore(t, "bob")

	general := func() config.GeneralConfig {
		return config.GeneralConfig{ClusterName: "hive"}
	}

	aliceManager := NewNodeManager()
	aliceHandlers := &Handlers{Self: "alice", General: general, Store: aliceStore, Manager: aliceManager, Token: "shh"}

	server := httptest.NewServer(acceptTestChatter(t, aliceHandlers))
	defer server.Close()

	bobManager := NewNodeManager()
	bobHandlers := &Handlers{Self: "bob", General: general, Store: bobStore, Manager: bobManager, Token: "wrong"}

	if err := Dial(context.Background(), "alice", server.URL, "bob", bobStore, bobManager, bobHandlers, general(), 0, bobHandlers.Token); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, _ := aliceManager.Get("bob"); status == StatusDown {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for alice to drop bob after a token mismatch")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
