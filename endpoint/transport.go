package endpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"
	"time"

	oauth "github.com/giantswarm/oauth-credentials"
)

// DefaultMaxResponseSize caps provider response bodies (1 MiB)
const DefaultMaxResponseSize = 1 << 20

// ErrResponseTooLarge is returned when a response body exceeds the size cap
var ErrResponseTooLarge = errors.New("response body too large")

// Transport performs one form POST. It is the only component that touches the
// network. Implementations return *oauth.TransportError for network failures
// and set PreSend when no byte of the request reached the wire.
type Transport interface {
	SendFormPost(ctx context.Context, url string, header http.Header, form url.Values, timeout time.Duration) (status int, body []byte, err error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, url string, header http.Header, form url.Values, timeout time.Duration) (int, []byte, error)

// SendFormPost calls f
func (f TransportFunc) SendFormPost(ctx context.Context, url string, header http.Header, form url.Values, timeout time.Duration) (int, []byte, error) {
	return f(ctx, url, header, form, timeout)
}

// HTTPTransport sends form POSTs with an *http.Client
type HTTPTransport struct {
	// Client defaults to a client with no overall timeout; the per-request
	// timeout is applied through the context.
	Client *http.Client

	// MaxResponseSize defaults to DefaultMaxResponseSize
	MaxResponseSize int64
}

// NewHTTPTransport creates a transport using client (nil for a default client)
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			// Token endpoints must not redirect form posts carrying credentials
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &HTTPTransport{Client: client, MaxResponseSize: DefaultMaxResponseSize}
}

// SendFormPost implements Transport
func (t *HTTPTransport) SendFormPost(ctx context.Context, endpoint string, header http.Header, form url.Values, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteHeaders: func() { wrote.Store(true) },
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return 0, nil, &oauth.TransportError{URL: endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return 0, nil, &oauth.TransportError{URL: endpoint, PreSend: !wrote.Load(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limit := t.MaxResponseSize
	if limit <= 0 {
		limit = DefaultMaxResponseSize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return resp.StatusCode, nil, &oauth.TransportError{URL: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > limit {
		return resp.StatusCode, nil, ErrResponseTooLarge
	}

	return resp.StatusCode, body, nil
}
