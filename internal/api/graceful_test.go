package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mockComponent struct {
	called bool
	err    error
}

func (m *mockComponent) Shutdown(ctx context.Context) error {
	m.called = true
	return m.err
}

func TestShutdownAll(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := NewHTTPServer(ln.Addr().String(), http.NewServeMux())
	go func() { _ = srv.Serve(ln) }()

	comp := &mockComponent{}
	if err := ShutdownAll(time.Second, srv, comp); err != nil {
		t.Fatalf("expected shutdown success: %v", err)
	}
	if !comp.called {
		t.Fatalf("expected component shutdown to be called")
	}

	failing := &mockComponent{err: os.ErrInvalid}
	after := &mockComponent{}
	if err := ShutdownAll(time.Second, failing, nil, after); err != os.ErrInvalid {
		t.Fatalf("expected first error, got %v", err)
	}
	if !after.called {
		t.Fatalf("expected later components to still be stopped")
	}
}

func TestShutdownFunc(t *testing.T) {
	called := false
	f := ShutdownFunc(func(ctx context.Context) error {
		called = true
		return nil
	})
	if err := ShutdownAll(time.Second, f); err != nil || !called {
		t.Fatalf("expected func to run, err=%v", err)
	}
}

func TestHTTPSServerCreation(t *testing.T) {
	certFile, keyFile := writeTempCert(t)

	srv, err := NewHTTPSServer("127.0.0.1:0", certFile, keyFile, http.NewServeMux())
	if err != nil {
		t.Fatalf("failed to create https server: %v", err)
	}
	if srv.TLSConfig == nil || srv.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Fatalf("expected TLS 1.2 minimum")
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Fatalf("expected HTTP timeouts to be carried over")
	}

	if _, err := NewHTTPSServer("127.0.0.1:0", "missing", "missing", http.NewServeMux()); err == nil {
		t.Fatalf("expected error for missing cert files")
	}
}

func TestSignalContext(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected context to follow its parent")
	}
}

func writeTempCert(t *testing.T) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatalf("failed to write cert file: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return certFile, keyFile
}
