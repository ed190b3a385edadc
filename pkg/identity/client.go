package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// AuthApplier stamps an authentication mechanism onto an outgoing request.
// The concrete strategies live in pkg/authstrategy.
type AuthApplier interface {
	Apply(req *http.Request)
}

// ResponseHook observes every response of a FetchClient. Hooks must not
// consume the response body; CloneBody is available when one needs to read it.
type ResponseHook func(res *http.Response)

// FetchOptions mirror the subset of fetch init options the login flow uses.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// FetchClient is the shared HTTP client of a login flow session. It owns the
// cookie jar, the current tenant and the single active auth strategy slot.
// Replacing the strategy (see the orchestrator's SwitchLoginMode) swaps this
// one reference; no other component mutates it.
type FetchClient struct {
	BaseURL string

	httpClient *http.Client

	mu     sync.Mutex
	auth   AuthApplier
	tenant string
	hooks  []ResponseHook
}

// NewFetchClient creates a client for the given identity provider base URL
// with its own cookie jar.
func NewFetchClient(baseURL string) *FetchClient {
	jar, _ := cookiejar.New(nil)
	return &FetchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuth replaces the active auth strategy.
func (c *FetchClient) SetAuth(auth AuthApplier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = auth
}

// Auth returns the active auth strategy.
func (c *FetchClient) Auth() AuthApplier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// SetTenant records the tenant requests are issued for.
func (c *FetchClient) SetTenant(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenant = tenant
}

// Tenant returns the tenant requests are issued for.
func (c *FetchClient) Tenant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tenant
}

// HookResponse registers a hook observing every response, successful or not.
// The auto-logout watcher uses this to spot expired two-factor sessions.
func (c *FetchClient) HookResponse(hook ResponseHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Fetch issues a request against the identity provider. The active auth
// strategy is applied, response hooks run for every response. Non-2xx
// responses are returned as-is; interpreting them is the caller's job.
func (c *FetchClient) Fetch(ctx context.Context, path string, opts *FetchOptions) (*http.Response, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), opts.Body)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	for name, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	c.mu.Lock()
	auth := c.auth
	hooks := append([]ResponseHook(nil), c.hooks...)
	c.mu.Unlock()

	if auth != nil {
		auth.Apply(req)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	for _, hook := range hooks {
		hook(res)
	}
	return res, nil
}

// FetchJSON issues a request and decodes a 2xx JSON response into out.
// Non-2xx responses become an *APIError.
func (c *FetchClient) FetchJSON(ctx context.Context, path string, opts *FetchOptions, out interface{}) error {
	res, err := c.Fetch(ctx, path, opts)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return NewAPIError(res)
	}
	defer res.Body.Close()
	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeJSON(res.Body, out)
}

func (c *FetchClient) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}
