package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"amo-signer/internal/auth"
	"amo-signer/internal/fileutil"
	"amo-signer/internal/logging"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// DefaultTimeout bounds a single HTTP exchange, including reading the body
const DefaultTimeout = 5 * time.Minute

// Doer is the transport the client sends requests through. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource mints the token placed in the Authorization header
type TokenSource interface {
	Token() (string, error)
}

// Request describes one call. URL may be absolute or relative to the client's base URL.
type Request struct {
	URL     string
	Headers map[string]string
	Body    io.Reader
}

// Response is a completed exchange with the body already read
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
	// Body is the decoded JSON value when the response declared JSON and
	// parsed, otherwise the raw text
	Body any
}

// Decode unmarshals the raw body into v
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// Client talks to the signing API. Each Client owns its configuration; nothing is shared
// between instances.
type Client struct {
	baseURL    string
	httpClient Doer
	tokens     TokenSource
	debug      logging.Debugger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the transport
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithDebug enables request/response tracing through logger (nil uses workflow commands)
func WithDebug(enabled bool, logger logging.DebugLogger) Option {
	return func(c *Client) {
		c.debug = logging.Debugger{Enabled: enabled, Logger: logger}
	}
}

// NewClient creates a new signing API client
// baseURL: API prefix relative URLs are resolved against (e.g., "https://addons.mozilla.org/api/v3")
func NewClient(baseURL string, creds auth.Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
		tokens: auth.NewAuthenticator(creds),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConfigureRequest resolves the URL and merges caller headers over the defaults
// (Accept and a freshly minted Authorization). The caller's header map is not modified.
func (c *Client) ConfigureRequest(req Request) (Request, error) {
	if req.URL == "" {
		return Request{}, &ValidationError{Err: ErrURLNotSpecified}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return Request{}, &ValidationError{Err: err}
	}

	headers := map[string]string{
		"Accept":        "application/json",
		"Authorization": "JWT " + token,
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	return Request{
		URL:     c.resolveURL(req.URL),
		Headers: headers,
		Body:    req.Body,
	}, nil
}

func (c *Client) resolveURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	return c.baseURL + raw
}

// requestOptions are per-call switches
type requestOptions struct {
	throwOnBadResponse bool
}

// RequestOption tunes a single call
type RequestOption func(*requestOptions)

// WithThrowOnBadResponse controls whether a non-2xx status is returned as an error (default true)
func WithThrowOnBadResponse(throw bool) RequestOption {
	return func(o *requestOptions) { o.throwOnBadResponse = throw }
}

// Request sends method against req and reads the whole response.
// Transport errors are returned unchanged; JSON bodies are parsed best-effort.
func (c *Client) Request(ctx context.Context, method string, req Request, opts ...RequestOption) (*Response, error) {
	options := requestOptions{throwOnBadResponse: true}
	for _, opt := range opts {
		opt(&options)
	}

	resp, cfg, err := c.send(ctx, method, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := fileutil.ReadAllSafe(resp.Body, fileutil.MaxHTTPResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Raw:        raw,
		Body:       parseBody(resp.Header.Get("Content-Type"), raw),
	}

	c.debug.Debug(ctx, "[API] response", map[string]any{
		"statusCode": result.StatusCode,
		"headers":    map[string][]string(result.Header),
		"body":       result.Body,
	})

	if options.throwOnBadResponse && !isSuccess(resp.StatusCode) {
		return nil, &BadResponseError{
			Method:     method,
			URL:        cfg.URL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       result.Body,
		}
	}

	return result, nil
}

// Stream sends method against req and returns the response with its body
// unread. A non-2xx status closes the body and returns a BadResponseError.
func (c *Client) Stream(ctx context.Context, method string, req Request) (*http.Response, error) {
	resp, cfg, err := c.send(ctx, method, req)
	if err != nil {
		return nil, err
	}

	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		raw, _ := fileutil.ReadAllSafe(resp.Body, DefaultMaxResponseLength)
		return nil, &BadResponseError{
			Method:     method,
			URL:        cfg.URL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       parseBody(resp.Header.Get("Content-Type"), raw),
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method string, req Request) (*http.Response, Request, error) {
	cfg, err := c.ConfigureRequest(req)
	if err != nil {
		return nil, Request{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, cfg.URL, cfg.Body)
	if err != nil {
		return nil, Request{}, &ValidationError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	c.debug.Debug(ctx, "[API] request", map[string]any{
		"method":  method,
		"url":     cfg.URL,
		"headers": cfg.Headers,
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Request{}, err
	}
	return resp, cfg, nil
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, req Request, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, req, opts...)
}

// Put sends a PUT request
func (c *Client) Put(ctx context.Context, req Request, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPut, req, opts...)
}

// Post sends a POST request
func (c *Client) Post(ctx context.Context, req Request, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, req, opts...)
}

// Patch sends a PATCH request
func (c *Client) Patch(ctx context.Context, req Request, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, req, opts...)
}

// Delete sends a DELETE request
func (c *Client) Delete(ctx context.Context, req Request, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, req, opts...)
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// parseBody decodes JSON bodies and falls back to the raw text when the
// content type is not JSON or the payload does not parse
func parseBody(contentType string, raw []byte) any {
	if strings.Contains(strings.ToLower(contentType), "json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}
	return string(raw)
}
