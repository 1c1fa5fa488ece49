package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"

	"github.com/aluiziolira/go-scrape-asin/config"
	"github.com/aluiziolira/go-scrape-asin/models"
)

// NewTransport builds the transport for one session. With TLSFingerprint set
// the TLS handshake presents the ClientHello of the browser family bound to
// the dial context (see withTLSProfile) instead of Go's.
func NewTransport(cfg *config.Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.TLSFingerprint {
		t.DialTLSContext = fingerprintDialer(dialer)
		// The presets advertise http/1.1 only; net/http cannot speak h2 over
		// a utls connection.
		t.ForceAttemptHTTP2 = false
	}
	return t
}

type tlsProfileKey struct{}

// withTLSProfile tells the fingerprinting dialer which ClientHello to send
// for connections dialed under ctx.
func withTLSProfile(ctx context.Context, profile models.TLSProfile) context.Context {
	return context.WithValue(ctx, tlsProfileKey{}, profile)
}

func tlsProfileFrom(ctx context.Context) models.TLSProfile {
	profile, _ := ctx.Value(tlsProfileKey{}).(models.TLSProfile)
	return profile
}

func helloID(profile models.TLSProfile) tls.ClientHelloID {
	switch profile {
	case models.TLSFirefox:
		return tls.HelloFirefox_Auto
	case models.TLSSafari:
		return tls.HelloSafari_Auto
	default:
		return tls.HelloChrome_Auto
	}
}

func fingerprintDialer(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		spec, err := h1Spec(tlsProfileFrom(ctx))
		if err != nil {
			return nil, err
		}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, _ := net.SplitHostPort(addr)
		tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(&spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply tls preset: %w", err)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}

// h1Spec returns a fresh ClientHello spec for profile with ALPN pinned to
// http/1.1. Specs hold mutable extension state, so one is built per
// connection.
func h1Spec(profile models.TLSProfile) (tls.ClientHelloSpec, error) {
	id := helloID(profile)
	spec, err := tls.UTLSIdToSpec(id)
	if err != nil {
		return tls.ClientHelloSpec{}, fmt.Errorf("%s tls spec: %w", id.Client, err)
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return spec, nil
}
