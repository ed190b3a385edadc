// Package authstrategy models the closed set of authentication mechanisms a
// login flow can drive: cookie-based SSO sessions, basic auth with an
// encoded token, and bearer tokens recovered from session storage.
package authstrategy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
)

// Header carrying the two-factor token on basic-auth requests.
const TFATokenHeader = "TFAToken"

// Strategy is the capability interface every auth mechanism exposes. It is a
// closed set; do not add open-ended implementations.
type Strategy interface {
	// Apply stamps the mechanism onto an outgoing request.
	Apply(req *http.Request)
	// UpdateCredentials merges new credential fields into the strategy
	// and returns the resulting encoded token. Cookie auth has no token
	// and returns "".
	UpdateCredentials(creds identity.Credentials) string
	// Logout tears the authenticated session down. suppressRedirect asks
	// the mechanism not to trigger any follow-up navigation.
	Logout(ctx context.Context, suppressRedirect bool) error
}

// BasicAuth authenticates with an encoded tenant/user/password token plus an
// optional two-factor token.
type BasicAuth struct {
	mu    sync.Mutex
	creds identity.Credentials
}

func NewBasicAuth() *BasicAuth {
	return &BasicAuth{}
}

func (b *BasicAuth) Apply(req *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.creds.Token != "" {
		req.Header.Set("Authorization", "Basic "+b.creds.Token)
	}
	if b.creds.TFA != "" {
		req.Header.Set(TFATokenHeader, b.creds.TFA)
	}
}

// UpdateCredentials merges the non-empty fields of creds. A token is only
// recomputed when a password was supplied or no token exists yet: updating
// just tenant and user keeps an already established token, which is how a
// support user reuses their own token while impersonating.
func (b *BasicAuth) UpdateCredentials(creds identity.Credentials) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	recompute := creds.Password != "" || b.creds.Token == ""
	if creds.Tenant != "" {
		b.creds.Tenant = creds.Tenant
	}
	if creds.User != "" {
		b.creds.User = creds.User
	}
	if creds.Password != "" {
		b.creds.Password = creds.Password
	}
	if creds.TFA != "" {
		b.creds.TFA = creds.TFA
	}
	if creds.Token != "" {
		b.creds.Token = creds.Token
	} else if recompute && b.creds.User != "" && b.creds.Password != "" {
		b.creds.Token = credstore.EncodeToken(b.creds)
	}
	return b.creds.Token
}

// Logout drops the locally held credential material. Basic auth has no
// server-side session to end.
func (b *BasicAuth) Logout(ctx context.Context, suppressRedirect bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds = identity.Credentials{}
	return nil
}

// Credentials returns a snapshot of the currently held credentials.
func (b *BasicAuth) Credentials() identity.Credentials {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creds
}

// CookieAuth authenticates through the session cookies held by the shared
// fetch client's jar.
type CookieAuth struct {
	client *identity.FetchClient
}

func NewCookieAuth(client *identity.FetchClient) *CookieAuth {
	return &CookieAuth{client: client}
}

// Apply is a no-op: the cookie jar of the shared client carries the session.
func (c *CookieAuth) Apply(req *http.Request) {}

// UpdateCredentials only records the tenant on the shared client; cookie
// auth yields no token.
func (c *CookieAuth) UpdateCredentials(creds identity.Credentials) string {
	if creds.Tenant != "" {
		c.client.SetTenant(creds.Tenant)
	}
	return ""
}

// Logout ends the cookie session at the identity provider. The redirect the
// provider may answer with is never followed here; suppressRedirect tells the
// caller-facing flow not to navigate afterwards either.
func (c *CookieAuth) Logout(ctx context.Context, suppressRedirect bool) error {
	res, err := c.client.Fetch(ctx, "/user/logout", &identity.FetchOptions{Method: http.MethodPost})
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// BearerAuth authenticates with an OAuth2 bearer token recovered from
// session storage.
type BearerAuth struct {
	token string
}

func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: token}
}

func (b *BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+b.token)
}

func (b *BearerAuth) UpdateCredentials(creds identity.Credentials) string {
	return ""
}

func (b *BearerAuth) Logout(ctx context.Context, suppressRedirect bool) error {
	b.token = ""
	return nil
}

// tokenUsable reports whether a bearer token is worth presenting: it must
// parse as a JWT and not be expired. The signature is the provider's to
// verify, not ours.
func tokenUsable(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(time.Now())
}
