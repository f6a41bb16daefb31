package platform

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
)

// EnvUTLS forces the Chrome TLS fingerprint regardless of config.
const EnvUTLS = "PULSEBOARD_UTLS"

// HTTPOptions configures the outbound client shared by the API clients.
type HTTPOptions struct {
	UserAgent string
	UTLS      bool
	// Timeout bounds a single request. Zero leaves requests bounded only by
	// their context, which the refresh engine sets per platform branch.
	Timeout time.Duration
}

// NewHTTPClient builds the HTTP client used for platform API calls.
func NewHTTPClient(opts HTTPOptions) *http.Client {
	useUTLS := opts.UTLS || strings.TrimSpace(os.Getenv(EnvUTLS)) == "1"
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &headerTransport{
			base:      newTransport(useUTLS),
			userAgent: opts.UserAgent,
		},
	}
}

type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	needUA := t.userAgent != "" && req.Header.Get("User-Agent") == ""
	needAccept := req.Header.Get("Accept") == ""
	if !needUA && !needAccept {
		return t.base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if needUA {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if needAccept {
		req.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(req)
}

func newTransport(useUTLS bool) http.RoundTripper {
	if !useUTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host := addr
			if strings.Contains(addr, ":") {
				host, _, _ = net.SplitHostPort(addr)
			}
			config := &utls.Config{
				ServerName: host,
				NextProtos: []string{"http/1.1"},
			}
			uconn := utls.UClient(rawConn, config, utls.HelloChrome_120)
			if err := uconn.Handshake(); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return uconn, nil
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
	}
}
