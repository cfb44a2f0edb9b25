package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	netproxy "golang.org/x/net/proxy"

	"linkbot/pkg/x/httpx"
)

// proxyDialer returns a SOCKS5 context dialer. The proxy resolves the target
// name itself, so a proxied connect has a single candidate endpoint.
func (c *Conn) proxyDialer() (netproxy.ContextDialer, error) {
	raw := strings.TrimSpace(c.opts.Proxy)
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := httpx.ParseProxyURL(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("proxy: unsupported scheme %q (only socks5)", u.Scheme)
	}

	d, err := netproxy.FromURL(u, &net.Dialer{Timeout: c.opts.DialTimeout})
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	cd, ok := d.(netproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy: dialer %T does not support contexts", d)
	}
	return cd, nil
}

func (c *Conn) dialProxy(ctx context.Context) (net.Conn, error) {
	d, err := c.proxyDialer()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	return d.DialContext(ctx, "tcp", net.JoinHostPort(c.opts.Address, strconv.Itoa(c.opts.Port)))
}

func (c *Conn) dialWebSocket(ctx context.Context) (stream, error) {
	wsURL, err := websocketURL(c.opts.Address, c.opts.Port)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.DialTimeout,
		Subprotocols:     []string{"text.ircv3.net"},
	}
	if c.opts.Proxy != "" {
		pd, err := c.proxyDialer()
		if err != nil {
			return nil, err
		}
		dialer.NetDialContext = pd.DialContext
	} else {
		dialer.NetDialContext = (&net.Dialer{Timeout: c.opts.DialTimeout, Resolver: c.opts.Resolver}).DialContext
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}
