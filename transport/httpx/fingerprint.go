package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// errNoALPN is returned when the Chrome ClientHello carries no ALPN extension.
var errNoALPN = errors.New("could not find ALPNExtension")

// WithChromeFingerprint makes TLS connections with a Chrome ClientHello, for
// services that reject Go's default fingerprint. Requests stay on HTTP/1.1.
func WithChromeFingerprint(insecureSkipVerify bool) func(*Client) error {
	return func(c *Client) error {
		c.client.Transport = chromeTransport(insecureSkipVerify)
		return nil
	}
}

func chromeTransport(insecureSkipVerify bool) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		sniHost, _, err := net.SplitHostPort(addr)
		if err != nil {
			sniHost = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName:         sniHost,
			InsecureSkipVerify: insecureSkipVerify,
		}, utls.HelloChrome_Auto)

		if err := uConn.BuildHandshakeState(); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("building handshake state : %w", err)
		}

		// HelloChrome_Auto ignores Config.NextProtos and offers h2, which
		// http.Transport cannot speak over a custom dialer.
		if err := forceHTTP1(uConn); err != nil {
			tcpConn.Close()
			return nil, err
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("tls handshake with %s : %w", addr, err)
		}
		return uConn, nil
	}
	return transport
}

func forceHTTP1(uConn *utls.UConn) error {
	for _, ext := range uConn.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			return nil
		}
	}
	return errNoALPN
}
