package tacplus

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer establishes the byte stream a Conn runs over. The core is
// parameterized over this so callers can substitute in-memory pipes or
// TLS-wrapped streams.
type Dialer interface {
	// Dial connects to the address on the named network.
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPDialer implements Dialer for plain TCP connections.
type TCPDialer struct {
	// Timeout is the maximum duration for the dial to complete.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// LocalAddr is the local address to use when dialing.
	// If nil, a local address is automatically chosen.
	LocalAddr *net.TCPAddr
}

// Dial connects to the address using TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   d.Timeout,
		LocalAddr: d.LocalAddr,
	}
	return dialer.DialContext(ctx, network, address)
}

// TLSDialer implements Dialer for TLS connections.
type TLSDialer struct {
	// Timeout is the maximum duration for the dial to complete.
	Timeout time.Duration

	// Config is the TLS configuration to use.
	// If nil, a default configuration is used.
	Config *tls.Config
}

// Dial connects to the address using TLS.
func (d *TLSDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout: d.Timeout,
		},
		Config: d.Config,
	}
	return dialer.DialContext(ctx, network, address)
}

// DefaultTCPDialer returns a TCP dialer with default settings.
func DefaultTCPDialer() *TCPDialer {
	return &TCPDialer{
		Timeout: 30 * time.Second,
	}
}

// DefaultTLSDialer returns a TLS dialer with default settings.
func DefaultTLSDialer(config *tls.Config) *TLSDialer {
	return &TLSDialer{
		Timeout: 30 * time.Second,
		Config:  config,
	}
}

// NewTLSClientConfig creates a TLS config for TACACS+ client connections.
func NewTLSClientConfig(serverName string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}
