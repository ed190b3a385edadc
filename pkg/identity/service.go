package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// IdentityClient is the contract the login flow needs from the remote
// identity provider. Implementations are black boxes; only the behaviors
// listed here are relied upon.
type IdentityClient interface {
	// CurrentTenant resolves the tenant of the authenticated request,
	// optionally including parent tenant information.
	CurrentTenant(ctx context.Context, withParent bool) (*Tenant, error)
	// CurrentUser resolves the authenticated user. Fails with an
	// *APIError of status 403 when the direct lookup is forbidden.
	CurrentUser(ctx context.Context) (*User, error)
	// CurrentUserWithEffectiveRoles is the fallback lookup used when
	// CurrentUser is forbidden.
	CurrentUserWithEffectiveRoles(ctx context.Context) (*User, error)
	SendPasswordResetMail(ctx context.Context, email, tenant string) error
	// ValidateResetToken fails with an *APIError of status 422 when the
	// token expired, any other status when it is invalid.
	ValidateResetToken(ctx context.Context, token, email string) error
	ResetPassword(ctx context.Context, token, email, newPassword, tenant string) error
	// VerifyTFACode submits an SMS code. A 403 means "code not yet
	// required", which doubles as the resend path.
	VerifyTFACode(ctx context.Context, code string) (http.Header, error)
	ActivateTOTP(ctx context.Context) error
	SavePhoneNumber(ctx context.Context, phone string) error
}

// TenantLoginOptionsClient exposes tenant login configuration.
type TenantLoginOptionsClient interface {
	List(ctx context.Context) ([]LoginMode, error)
	ListForManagement(ctx context.Context) ([]LoginMode, error)
}

// ApplicationManifestClient resolves application manifests by context path.
type ApplicationManifestClient interface {
	// ManifestOfContextPath fails (not-found, forbidden, anything) when
	// the user may not access the application.
	ManifestOfContextPath(ctx context.Context, contextPath string) (*Manifest, error)
}

// HTTPIdentityClient implements IdentityClient against the platform REST API.
type HTTPIdentityClient struct {
	client *FetchClient
}

func NewHTTPIdentityClient(client *FetchClient) *HTTPIdentityClient {
	return &HTTPIdentityClient{client: client}
}

func (c *HTTPIdentityClient) CurrentTenant(ctx context.Context, withParent bool) (*Tenant, error) {
	path := "/tenant/currentTenant"
	if withParent {
		path += "?withParent=true"
	}
	var tenant Tenant
	if err := c.client.FetchJSON(ctx, path, nil, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (c *HTTPIdentityClient) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.client.FetchJSON(ctx, "/user/currentUser", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPIdentityClient) CurrentUserWithEffectiveRoles(ctx context.Context) (*User, error) {
	var user User
	if err := c.client.FetchJSON(ctx, "/user/currentUser?withEffectiveRoles=true", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPIdentityClient) SendPasswordResetMail(ctx context.Context, email, tenant string) error {
	return c.client.FetchJSON(ctx, "/user/passwordReset", jsonOptions(http.MethodPost, map[string]string{
		"email":  email,
		"tenant": tenant,
	}), nil)
}

func (c *HTTPIdentityClient) ValidateResetToken(ctx context.Context, token, email string) error {
	return c.client.FetchJSON(ctx, "/user/passwordResetToken", jsonOptions(http.MethodPost, map[string]string{
		"token": token,
		"email": email,
	}), nil)
}

func (c *HTTPIdentityClient) ResetPassword(ctx context.Context, token, email, newPassword, tenant string) error {
	path := "/user/passwordReset"
	if tenant != "" {
		path += "?tenant_id=" + url.QueryEscape(tenant)
	}
	return c.client.FetchJSON(ctx, path, jsonOptions(http.MethodPut, map[string]string{
		"token":       token,
		"email":       email,
		"newPassword": newPassword,
	}), nil)
}

func (c *HTTPIdentityClient) VerifyTFACode(ctx context.Context, code string) (http.Header, error) {
	res, err := c.client.Fetch(ctx, "/user/pin", jsonOptions(http.MethodPost, map[string]string{"pin": code}))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, NewAPIError(res)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.Header, nil
}

func (c *HTTPIdentityClient) ActivateTOTP(ctx context.Context) error {
	return c.client.FetchJSON(ctx, "/user/totp/activate", &FetchOptions{Method: http.MethodPost}, nil)
}

func (c *HTTPIdentityClient) SavePhoneNumber(ctx context.Context, phone string) error {
	return c.client.FetchJSON(ctx, "/user/phone", jsonOptions(http.MethodPut, map[string]string{"phone": phone}), nil)
}

// HTTPLoginOptionsClient implements TenantLoginOptionsClient.
type HTTPLoginOptionsClient struct {
	client *FetchClient
}

func NewHTTPLoginOptionsClient(client *FetchClient) *HTTPLoginOptionsClient {
	return &HTTPLoginOptionsClient{client: client}
}

type loginOptionsBody struct {
	LoginOptions []LoginMode `json:"loginOptions"`
}

func (c *HTTPLoginOptionsClient) List(ctx context.Context) ([]LoginMode, error) {
	var body loginOptionsBody
	if err := c.client.FetchJSON(ctx, "/tenant/loginOptions", nil, &body); err != nil {
		return nil, err
	}
	return body.LoginOptions, nil
}

func (c *HTTPLoginOptionsClient) ListForManagement(ctx context.Context) ([]LoginMode, error) {
	var body loginOptionsBody
	if err := c.client.FetchJSON(ctx, "/tenant/loginOptions?management=true", nil, &body); err != nil {
		return nil, err
	}
	return body.LoginOptions, nil
}

// HTTPManifestClient implements ApplicationManifestClient.
type HTTPManifestClient struct {
	client *FetchClient
}

func NewHTTPManifestClient(client *FetchClient) *HTTPManifestClient {
	return &HTTPManifestClient{client: client}
}

func (c *HTTPManifestClient) ManifestOfContextPath(ctx context.Context, contextPath string) (*Manifest, error) {
	var manifest Manifest
	path := "/application/manifest/" + url.PathEscape(contextPath)
	if err := c.client.FetchJSON(ctx, path, nil, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// CloneBody reads a response body and restores it so that other observers of
// the response can still consume it. Hooks reading bodies must go through
// this, the original stream may be consumed elsewhere.
func CloneBody(res *http.Response) ([]byte, error) {
	if res.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(res.Body)
	res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("clone response body: %w", err)
	}
	return raw, nil
}

func decodeJSON(r io.Reader, out interface{}) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func jsonOptions(method string, body interface{}) *FetchOptions {
	raw, _ := json.Marshal(body)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &FetchOptions{
		Method: method,
		Header: header,
		Body:   bytes.NewReader(raw),
	}
}
