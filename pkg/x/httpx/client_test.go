package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_DirectByDefault(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:7890")

	c, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if c.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %s", c.Timeout)
	}

	ua, ok := c.Transport.(*userAgentTransport)
	if !ok {
		t.Fatalf("expected *userAgentTransport, got %T", c.Transport)
	}
	tr, ok := ua.base.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", ua.base)
	}
	if tr.Proxy != nil {
		t.Fatalf("expected nil proxy func for direct mode, got %T", tr.Proxy)
	}
}

func TestNewClient_EnvProxy(t *testing.T) {
	c, err := NewClient(ClientOptions{Proxy: "env"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	tr := c.Transport.(*userAgentTransport).base.(*http.Transport)
	if tr.Proxy == nil {
		t.Fatalf("expected non-nil proxy func for env mode")
	}
}

func TestNewClient_InvalidProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{Proxy: "ftp://127.0.0.1:21"}); err == nil {
		t.Fatalf("expected error for unsupported proxy scheme")
	}
}

func TestNewClient_SetsUserAgentUnlessPresent(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{UserAgent: "linkbot-test"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if ua := <-got; ua != "linkbot-test" {
		t.Fatalf("expected default user agent, got %q", ua)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()
	if ua := <-got; ua != "custom" {
		t.Fatalf("expected caller user agent, got %q", ua)
	}
}

func TestNewClient_StopsLongRedirectChains(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/again", http.StatusFound)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{MaxRedirects: 2})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.Get(srv.URL); err == nil {
		t.Fatalf("expected redirect error")
	}
}
