package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// Address is a host name, an IP, or a ws:// URL for IRC over WebSocket.
	Address string
	Port    int

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Proxy is an optional socks5:// URL used for the server dial.
	Proxy string

	Resolver *net.Resolver
	Logger   *zap.Logger
}

func (o Options) withDefaults() Options {
	o.Address = strings.TrimSpace(o.Address)
	o.Proxy = strings.TrimSpace(o.Proxy)
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type connState int

const (
	stateNew connState = iota
	stateOpen
	stateClosed
)

// Conn owns a single server connection. Once closed it cannot be reopened.
type Conn struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	state  connState
	stream stream
	alive  atomic.Bool

	writeMu sync.Mutex
}

func New(opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		opts: opts,
		log:  opts.Logger.With(zap.String("address", opts.Address), zap.Int("port", opts.Port)),
	}
}

// Open dials the server. Every endpoint the name resolves to is tried in
// order; the first successful dial wins.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		return &ConnectError{Address: c.target(), Err: errors.New("connection already used")}
	}
	c.mu.Unlock()

	c.log.Info("connecting")
	s, err := c.dial(ctx)
	if err != nil {
		c.log.Error("connect failed", zap.Error(err))
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		return &ConnectError{Address: c.target(), Err: err}
	}

	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		_ = s.Close()
		return &ConnectError{Address: c.target(), Err: errors.New("closed while connecting")}
	}
	c.stream = s
	c.state = stateOpen
	c.alive.Store(true)
	c.mu.Unlock()

	c.log.Info("connected")
	return nil
}

func (c *Conn) IsAlive() bool {
	return c.alive.Load()
}

// ReadLoop delivers each inbound line to onLine, one at a time, until the
// connection closes. It returns nil after Close, ctx.Err() after ctx is
// cancelled, and an *IOError after a read fault.
func (c *Conn) ReadLoop(ctx context.Context, onLine func(line string)) error {
	if onLine == nil {
		return errors.New("transport: onLine handler is required")
	}
	s := c.current()
	if s == nil {
		return ErrNotAlive
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		line, err := s.ReadLine()
		if err != nil {
			if !c.IsAlive() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			_ = c.Close()
			c.log.Warn("read failed", zap.Error(err))
			return &IOError{Op: "read", Err: err}
		}

		onLine(line)

		if !c.IsAlive() {
			return nil
		}
	}
}

// Send writes one line followed by CRLF. Embedded line breaks are replaced
// so a single call can never produce more than one protocol line.
func (c *Conn) Send(line string) error {
	s := c.current()
	if s == nil {
		return ErrNotAlive
	}
	line = strings.NewReplacer("\r", " ", "\n", " ").Replace(line)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.IsAlive() {
		return ErrNotAlive
	}
	if err := s.WriteLine(line, time.Now().Add(c.opts.WriteTimeout)); err != nil {
		_ = c.Close()
		c.log.Warn("write failed", zap.Error(err))
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	c.alive.Store(false)
	s := c.stream
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	c.log.Info("connection closed")
	return s.Close()
}

func (c *Conn) current() stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateOpen {
		return nil
	}
	return c.stream
}

func (c *Conn) target() string {
	if isWebSocketAddress(c.opts.Address) {
		return c.opts.Address
	}
	return net.JoinHostPort(c.opts.Address, strconv.Itoa(c.opts.Port))
}

func (c *Conn) dial(ctx context.Context) (stream, error) {
	if c.opts.Address == "" {
		return nil, errors.New("address is required")
	}
	if isWebSocketAddress(c.opts.Address) {
		return c.dialWebSocket(ctx)
	}
	if c.opts.Port <= 0 || c.opts.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", c.opts.Port)
	}

	if c.opts.Proxy != "" {
		conn, err := c.dialProxy(ctx)
		if err != nil {
			return nil, err
		}
		return newTCPStream(conn), nil
	}

	addrs, err := c.opts.Resolver.LookupHost(ctx, c.opts.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if len(addrs) == 0 {
		return nil, errors.New("resolve: no addresses")
	}

	dialer := &net.Dialer{Timeout: c.opts.DialTimeout}
	port := strconv.Itoa(c.opts.Port)
	var lastErr error
	for _, addr := range addrs {
		endpoint := net.JoinHostPort(addr, port)
		conn, err := dialer.DialContext(ctx, "tcp", endpoint)
		if err != nil {
			c.log.Debug("endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		c.log.Debug("endpoint connected", zap.String("endpoint", endpoint))
		return newTCPStream(conn), nil
	}
	return nil, lastErr
}

func isWebSocketAddress(addr string) bool {
	lower := strings.ToLower(strings.TrimSpace(addr))
	return strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://")
}

func websocketURL(addr string, port int) (string, error) {
	u, err := url.Parse(strings.TrimSpace(addr))
	if err != nil {
		return "", err
	}
	if u.Scheme != "ws" {
		return "", fmt.Errorf("unsupported scheme %q (only ws)", u.Scheme)
	}
	if strings.TrimSpace(u.Hostname()) == "" {
		return "", errors.New("missing host")
	}
	if u.Port() == "" && port > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return u.String(), nil
}
