package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// NewHTTPServer creates a configured HTTP server
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// manual refreshes wait for every platform branch
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewHTTPSServer creates a configured HTTPS server with TLS
func NewHTTPSServer(addr string, certFile, keyFile string, handler http.Handler) (*http.Server, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	srv := NewHTTPServer(addr, handler)
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return srv, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdownable is a component stopped after the HTTP server.
type Shutdownable interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a plain function to Shutdownable.
type ShutdownFunc func(ctx context.Context) error

// Shutdown calls f(ctx).
func (f ShutdownFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// ShutdownAll stops components in order within timeout. Every component
// is attempted; the first error is returned.
func ShutdownAll(timeout time.Duration, components ...Shutdownable) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var first error
	for _, comp := range components {
		if comp == nil {
			continue
		}
		if err := comp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
