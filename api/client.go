package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const contentTypeJSON = "application/json"

// UnauthorizedHook is called with the offending token whenever the API
// answers an authenticated call with 401.
type UnauthorizedHook func(token string)

// Client calls the remote scheduling API. Every authenticated call carries
// "Authorization: Bearer <token>". Calls are independent of each other: there
// is no retry, no queueing and no ordering between concurrent calls.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	onUnauthorized UnauthorizedHook
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as the base for the bearer token transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func WithUnauthorizedHook(hook UnauthorizedHook) Option {
	return func(c *Client) {
		c.onUnauthorized = hook
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("[api New] invalid base url %q: %w", baseURL, err)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetUnauthorizedHook installs the hook after construction, for wiring
// cycles where the hook's owner needs the client first.
func (c *Client) SetUnauthorizedHook(hook UnauthorizedHook) {
	c.onUnauthorized = hook
}

func (c *Client) Get(ctx context.Context, path, token string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, token, out)
}

func (c *Client) Post(ctx context.Context, path string, body any, token string, out any) error {
	return c.do(ctx, http.MethodPost, path, body, token, out)
}

func (c *Client) Put(ctx context.Context, path string, body any, token string, out any) error {
	return c.do(ctx, http.MethodPut, path, body, token, out)
}

func (c *Client) Patch(ctx context.Context, path string, body any, token string, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, token, out)
}

func (c *Client) Delete(ctx context.Context, path string, body any, token string, out any) error {
	return c.do(ctx, http.MethodDelete, path, body, token, out)
}

// GetRaw returns the undecoded response body, for blob downloads.
func (c *Client) GetRaw(ctx context.Context, path, token string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, token)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := c.readBody(resp, token)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := c.readBody(resp, token)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("[api %s %s] decoding response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("[api %s %s] encoding body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("[api %s %s] building request: %w", method, path, err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	start := time.Now()
	resp, err := c.clientFor(token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("[api %s %s] %w", method, path, err)
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")
	return resp, nil
}

// clientFor wraps the base transport with a static bearer token source. An
// empty token sends the request unauthenticated.
func (c *Client) clientFor(token string) *http.Client {
	if token == "" {
		return c.httpClient
	}
	return &http.Client{
		Timeout:       c.httpClient.Timeout,
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}
}

func (c *Client) readBody(resp *http.Response, token string) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[api] reading response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if token != "" && c.onUnauthorized != nil {
			c.onUnauthorized(token)
		}
		return nil, ErrUnauthorized
	}
	return nil, &RequestError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL.Path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(data)),
	}
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("[api] invalid path %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}
