/*
 * Copyright © 2020 Camilo Hernández <me@camiloh.com>
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
 * THE SOFTWARE.
 */

// Package tlsmesh provides the mTLS acceptor/connector used to authenticate
// peers inside the WebSocket overlay, and the self-signed certificate
// bootstrap/cache used when no CA material is configured.
package tlsmesh

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
)

// CertStore loads (or bootstraps) the local node's leaf certificate and
// private key, generalizing beekeeper's tls.go single self-signed pair into
// a CertStore that can also load CA-signed material named by NodeConfig.
//
// Loads are memoized, grounded on original_source/server/src/cache.rs's
// OnceCell-backed CertificatesCache.
type CertStore struct {
	caFile, certFile, keyFile string

	once     sync.Once
	cert     tls.Certificate
	caPool   *x509.CertPool
	loadErr  error
}

// NewCertStore returns a store that loads from the given file paths. If
// caFile/certFile/keyFile are all empty, LeafCertificate bootstraps and
// caches a self-signed certificate under ~/.gilbert instead.
func NewCertStore(caFile, certFile, keyFile string) *CertStore {
	return &CertStore{caFile: caFile, certFile: certFile, keyFile: keyFile}
}

func (s *CertStore) load() {
	s.once.Do(func() {
		if s.certFile == "" && s.keyFile == "" {
			pemCert, pemKey, err := loadCachedSelfSigned()
			if err != nil {
				s.loadErr = err
				return
			}
			cert, err := tls.X509KeyPair(pemCert, pemKey)
			if err != nil {
				s.loadErr = err
				return
			}
			s.cert = cert
			return
		}

		cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
		if err != nil {
			s.loadErr = err
			return
		}
		s.cert = cert

		if s.caFile != "" {
			pemCA, err := os.ReadFile(s.caFile)
			if err != nil {
				s.loadErr = err
				return
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pemCA) {
				s.loadErr = errors.New("tlsmesh: no certificates found in ca file")
				return
			}
			s.caPool = pool
		}
	})
}

// LeafCertificate returns the node's certificate/key pair, loading or
// bootstrapping it on first use.
func (s *CertStore) LeafCertificate() (tls.Certificate, error) {
	s.load()
	return s.cert, s.loadErr
}

// CAPool returns the configured CA pool, or nil if none was configured (in
// which case ServerTLSConfig/ClientTLSConfig fall back to InsecureSkipVerify
// for the self-signed bootstrap path, matching beekeeper's dev-mode trust
// model).
func (s *CertStore) CAPool() (*x509.CertPool, error) {
	s.load()
	return s.caPool, s.loadErr
}

// ServerTLSConfig builds a tls.Config requiring a client certificate, for
// use by Acceptor. The certificate is verified against the CA pool when one
// is configured; without one, any client certificate is accepted.
func (s *CertStore) ServerTLSConfig() (*tls.Config, error) {
	cert, err := s.LeafCertificate()
	if err != nil {
		return nil, err
	}
	pool, err := s.CAPool()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
	}
	if pool == nil {
		cfg.ClientAuth = tls.RequireAnyClientCert
	}

	return cfg, nil
}

// ClientTLSConfig builds a tls.Config presenting this node's certificate for
// use by Connector.
func (s *CertStore) ClientTLSConfig() (*tls.Config, error) {
	cert, err := s.LeafCertificate()
	if err != nil {
		return nil, err
	}
	pool, err := s.CAPool()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}
	if pool == nil {
		cfg.InsecureSkipVerify = true
	}

	return cfg, nil
}

func loadCachedSelfSigned() (pemCert, pemKey []byte, err error) {
	pemCert, pemKey, err = getTLSCache()
	if err == nil {
		return pemCert, pemKey, nil
	}

	pemCert, pemKey, err = newSelfSignedCert()
	if err != nil {
		return nil, nil, err
	}

	if err := cacheTLS(pemCert, pemKey); err != nil {
		return nil, nil, err
	}

	return pemCert, pemKey, nil
}

func getTLSCache() (pemCert, pemKey []byte, err error) {
	certPath, keyPath, err := cachePaths()
	if err != nil {
		return nil, nil, err
	}

	if _, err := os.Stat(certPath); err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(keyPath); err != nil {
		return nil, nil, err
	}

	pemCert, err = os.ReadFile(certPath)
	if err != nil {
		return nil, nil, err
	}
	pemKey, err = os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, err
	}

	return pemCert, pemKey, nil
}

func cacheTLS(pemCert, pemKey []byte) error {
	certPath, keyPath, err := cachePaths()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(certPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(certPath, pemCert, 0600); err != nil {
		return err
	}
	return os.WriteFile(keyPath, pemKey, 0600)
}

func cachePaths() (certPath, keyPath string, err error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", "", err
	}

	dir := filepath.Join(home, ".gilbert")
	return filepath.Join(dir, "tls.cert"), filepath.Join(dir, "tls.key"), nil
}

// newSelfSignedCert generates a fresh self-signed certificate/key pair,
// usable for both client and server auth, the same shape as beekeeper's
// tls.go generator.
func newSelfSignedCert() (pemCert, pemKey []byte, err error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		return nil, nil, err
	}

	tpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "gilbert node"},
		NotBefore:              time.Now(),
		NotAfter:               time.Now().AddDate(2, 0, 0),
		BasicConstraintsValid: true,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}

	derCert, err := x509.CreateCertificate(rand.Reader, &tpl, &tpl, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, nil, err
	}

	var certBuf bytes.Buffer
	if err := pem.Encode(&certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: derCert}); err != nil {
		return nil, nil, err
	}

	var keyBuf bytes.Buffer
	if err := pem.Encode(&keyBuf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)}); err != nil {
		return nil, nil, err
	}

	return certBuf.Bytes(), keyBuf.Bytes(), nil
}
