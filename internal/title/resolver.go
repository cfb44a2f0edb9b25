// Package title looks up the human-readable title of a web page.
package title

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"linkbot/pkg/x/htmlutil"
	"linkbot/pkg/x/httpx"
)

// ErrUnavailable means no title could be produced for the URL. Callers treat
// it as "no title".
var ErrUnavailable = errors.New("title unavailable")

type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

const maxBodyBytes = 1 << 20

type Options struct {
	Timeout time.Duration
	// Proxy follows httpx.ClientOptions.Proxy.
	Proxy     string
	UserAgent string
	Logger    *zap.Logger

	// Client overrides the client built from the fields above.
	Client *http.Client
}

// HTTPResolver checks the content type with a HEAD request and only then
// downloads the page to pull out its <title>.
type HTTPResolver struct {
	client *http.Client
	log    *zap.Logger
}

func NewHTTPResolver(opts Options) (*HTTPResolver, error) {
	client := opts.Client
	if client == nil {
		var err error
		client, err = httpx.NewClient(httpx.ClientOptions{
			Timeout:   opts.Timeout,
			Proxy:     opts.Proxy,
			UserAgent: opts.UserAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("title: http client: %w", err)
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPResolver{client: client, log: log}, nil
}

func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	target := withScheme(rawURL)
	if target == "" {
		return "", ErrUnavailable
	}

	status, ok, err := r.head(ctx, target)
	if err != nil {
		r.log.Debug("head failed", zap.String("url", target), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return "", ErrUnavailable
	}
	if status != http.StatusOK {
		return fmt.Sprintf("HTTP %d - %s", status, statusReason(status)), nil
	}

	t, err := r.fetchTitle(ctx, target)
	if err != nil {
		r.log.Debug("title fetch failed", zap.String("url", target), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if t == "" {
		return "", ErrUnavailable
	}
	return t, nil
}

// head reports the status and whether the resource is an HTML page.
func (r *HTTPResolver) head(ctx context.Context, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, false, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return resp.StatusCode, isHTML(resp.Header.Get("Content-Type")), nil
}

func (r *HTTPResolver) fetchTitle(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http status=%d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return "", fmt.Errorf("content type %q", contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return extractTitle(body)
}

func extractTitle(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	raw := doc.Find("title").First().Text()
	return htmlutil.CleanText(raw), nil
}

func withScheme(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "http://" + strings.TrimPrefix(s, "//")
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

func statusReason(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not Found"
	case http.StatusTooManyRequests:
		return "Too many requests"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	case http.StatusBadGateway:
		return "Bad Gateway"
	case http.StatusServiceUnavailable:
		return "Service Unavailable"
	case http.StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "No description available"
	}
}
