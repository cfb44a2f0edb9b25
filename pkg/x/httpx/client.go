package httpx

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"

type ClientOptions struct {
	Timeout time.Duration

	// Proxy selects the outbound proxy:
	// - "" / "direct": no proxy, even if HTTP_PROXY / HTTPS_PROXY is set
	// - "env": ProxyFromEnvironment
	// - URL / host:port: fixed proxy
	Proxy string

	// MaxRedirects caps redirect chains; 0 means 10.
	MaxRedirects int

	// UserAgent is sent when a request does not set one.
	UserAgent string

	// Transport allows providing a pre-configured transport.
	// When nil, it clones http.DefaultTransport.
	Transport *http.Transport
}

func NewClient(opts ClientOptions) (*http.Client, error) {
	var transport *http.Transport
	if opts.Transport != nil {
		transport = opts.Transport.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	proxyFunc, err := ProxyFuncFromString(opts.Proxy)
	if err != nil {
		return nil, err
	}
	transport.Proxy = proxyFunc

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: transport, userAgent: ua},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		},
	}, nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
