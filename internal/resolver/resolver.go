// Package resolver opens the byte stream behind an operator reference: a
// plain HTTP GET, or the cloud-drive download dance for drive links.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultUserAgent is sent on every request; some hosts reject Go's default.
	DefaultUserAgent = "Mozilla/5.0"
	DefaultTimeout   = time.Hour
	maxRedirects     = 10
)

var (
	// ErrUnreachable covers non-200 statuses, connection failures and
	// references that cannot be resolved.
	ErrUnreachable = errors.New("source unreachable")
	// ErrForbidden means the drive link is private or needs permission.
	ErrForbidden = errors.New("permission required or link not public")
)

// Source is an opened remote stream. The caller must close Body.
type Source struct {
	Body io.ReadCloser
	Size int64  // declared total from Content-Length; 0 when unknown
	Name string // filename from Content-Disposition, if any
}

// Resolver opens a reference.
type Resolver interface {
	Open(ctx context.Context, rawURL string) (*Source, error)
}

// Option configures the shared HTTP client.
type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *resty.Client) { c.SetHeader("User-Agent", ua) }
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *resty.Client) { c.SetTransport(rt) }
}

func newClient(opts ...Option) *resty.Client {
	c := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", DefaultUserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPResolver issues a single redirect-following GET.
type HTTPResolver struct {
	client *resty.Client
}

func NewHTTP(opts ...Option) *HTTPResolver {
	return &HTTPResolver{client: newClient(opts...)}
}

func (h *HTTPResolver) Open(ctx context.Context, rawURL string) (*Source, error) {
	return get(ctx, h.client, rawURL, nil)
}

// get issues a streaming GET and insists on 200.
func get(ctx context.Context, c *resty.Client, rawURL string, query map[string]string) (*Source, error) {
	resp, err := c.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParams(query).
		Get(rawURL)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		resp.RawBody().Close()
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode())
	}
	return sourceFrom(resp), nil
}

func sourceFrom(resp *resty.Response) *Source {
	src := &Source{Body: resp.RawBody()}
	if n := resp.RawResponse.ContentLength; n > 0 {
		src.Size = n
	}
	src.Name = dispositionName(resp.Header().Get("Content-Disposition"))
	return src
}

func dispositionName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}

// Set dispatches drive links to the drive resolver and everything else to
// plain HTTP.
type Set struct {
	HTTP  Resolver
	Drive Resolver
}

// NewSet builds both resolvers on the same options.
func NewSet(opts ...Option) *Set {
	return &Set{HTTP: NewHTTP(opts...), Drive: NewDrive(opts...)}
}

// For picks the resolver responsible for rawURL.
func (s *Set) For(rawURL string) Resolver {
	if IsDriveURL(rawURL) {
		return s.Drive
	}
	return s.HTTP
}

func (s *Set) Open(ctx context.Context, rawURL string) (*Source, error) {
	return s.For(rawURL).Open(ctx, rawURL)
}
