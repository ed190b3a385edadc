package loginflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/tenantgate/login-flow/pkg/authstrategy"
	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/notification"
)

// appPathPattern matches the application path convention
// `/apps/[public/]<contextPath>[/...]` at the end of a URL. Submatch 2 is the
// context path.
var appPathPattern = regexp.MustCompile(`/apps/(public/)?([^/]+)(/.*)?$`)

// supportUserPattern extracts the support user name (submatch 2) from a
// `[tenant/]support$user` login name.
var supportUserPattern = regexp.MustCompile(`^(?:(.+)/)?(?:(.+)\$)?(.+)?$`)

// consumableParams are the authentication related query parameters stripped
// from a stashed redirect path before it is used.
var consumableParams = []string{
	"token",
	"email",
	"code",
	"session_state",
	"error",
	"error_description",
}

// Redirector performs the full-page navigation that ends a login flow.
type Redirector interface {
	Redirect(rawURL string)
}

// RedirectorFunc adapts a function to the Redirector interface.
type RedirectorFunc func(rawURL string)

func (f RedirectorFunc) Redirect(rawURL string) { f(rawURL) }

// Clients bundles the remote collaborators of the orchestrator.
type Clients struct {
	Fetch        *identity.FetchClient
	Identity     identity.IdentityClient
	LoginOptions identity.TenantLoginOptionsClient
	Applications identity.ApplicationManifestClient
}

// Config seeds a Service with the ambient state of one flow session.
type Config struct {
	// RawURL is the full URL the flow session was opened with.
	RawURL string
	// LoginOptions is the tenant login configuration known at load time.
	// nil means the tenant could not be determined (tenant-id setup).
	LoginOptions []identity.LoginMode
	// SkipSSORedirect disables the automatic redirect to an external
	// identity provider after a failed automatic login.
	SkipSSORedirect bool
}

// Service executes authentication against the identity provider and owns the
// session-wide mutable state: the active auth strategy and the login mode
// caches. Both have a single writer, SwitchLoginMode.
type Service struct {
	clients    Clients
	tokens     *credstore.TokenStore
	alerts     *notification.Service
	redirector Redirector

	origin         *url.URL
	skipSSO        bool
	showTenantHint bool

	basic    *authstrategy.BasicAuth
	cookie   *authstrategy.CookieAuth
	selector *authstrategy.Selector

	mu                  sync.Mutex
	loginMode           identity.LoginMode
	oauthOptions        identity.LoginMode
	managementLoginMode *identity.LoginMode
	loginOptionsKnown   bool
	rememberMe          bool
	firstLogin          bool
	currentTenant       *identity.Tenant
	currentUser         *identity.User

	logoutMu   sync.Mutex
	loggingOut bool
}

// NewService wires an orchestrator for one flow session. The session expiry
// watcher is armed immediately, mirroring construction-time auto-logout.
func NewService(cfg Config, clients Clients, tokens *credstore.TokenStore, alerts *notification.Service, redirector Redirector) *Service {
	origin, err := url.Parse(cfg.RawURL)
	if err != nil {
		slog.Warn("unparseable session URL, origin-dependent behavior degraded", "err", err)
		origin = &url.URL{}
	}

	s := &Service{
		clients:        clients,
		tokens:         tokens,
		alerts:         alerts,
		redirector:     redirector,
		origin:         origin,
		skipSSO:        cfg.SkipSSORedirect,
		showTenantHint: strings.Contains(cfg.RawURL, "showTenant"),
		basic:          authstrategy.NewBasicAuth(),
		cookie:         authstrategy.NewCookieAuth(clients.Fetch),
		firstLogin:     true,
	}
	s.selector = &authstrategy.Selector{
		Tokens: tokens,
		Basic:  s.basic,
		Cookie: s.cookie,
	}
	s.WatchSessionExpiry()
	s.InitLoginOptions(cfg.LoginOptions)
	return s
}

// InitLoginOptions derives the preferred login mode and the SSO option from
// tenant login configuration.
func (s *Service) InitLoginOptions(options []identity.LoginMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginOptionsKnown = options != nil
	s.loginMode = identity.PreferredLoginOption(options)
	s.oauthOptions, _ = identity.Oauth2Option(options)
}

// RefreshLoginOptions re-fetches login options for an explicitly supplied
// tenant id (tenant-id setup flow). The management login mode cache is
// dropped along the way; it may differ per tenant domain.
func (s *Service) RefreshLoginOptions(ctx context.Context, tenant string) error {
	s.clients.Fetch.SetTenant(tenant)
	options, err := s.clients.LoginOptions.List(ctx)
	if err != nil {
		return err
	}
	s.InitLoginOptions(options)
	s.mu.Lock()
	s.managementLoginMode = nil
	s.mu.Unlock()
	return nil
}

// LoginMode returns the preferred login mode of the current tenant.
func (s *Service) LoginMode() identity.LoginMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginMode
}

// OauthOptions returns the external SSO option, zero when none is configured.
func (s *Service) OauthOptions() identity.LoginMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oauthOptions
}

// GetTenant returns the tenant requests are currently issued for.
func (s *Service) GetTenant() string {
	return s.clients.Fetch.Tenant()
}

// Identity exposes the identity client for flows that talk to the provider
// directly (two-factor verification, password reset).
func (s *Service) Identity() identity.IdentityClient {
	return s.clients.Identity
}

// Clients returns the remote collaborators of the flow.
func (s *Service) Clients() Clients {
	return s.clients
}

func (s *Service) SetRememberMe(remember bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rememberMe = remember
}

func (s *Service) RememberMe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rememberMe
}

// IsFirstLogin reports whether no login attempt happened in this session
// yet. The view machine uses it to trigger the automatic login exactly once.
func (s *Service) IsFirstLogin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstLogin
}

// MarkVisited ends the first-visit phase.
func (s *Service) MarkVisited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstLogin = false
}

// CurrentUser returns the authenticated user, nil before authentication.
func (s *Service) CurrentUser() *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// SelectStrategy resolves the auth strategy from stored tokens.
func (s *Service) SelectStrategy(ctx context.Context) authstrategy.Strategy {
	return s.selector.Select(ctx)
}

// UseBasicAuth forces basic auth with the given credentials and returns the
// strategy for the subsequent login call.
func (s *Service) UseBasicAuth(creds identity.Credentials) authstrategy.Strategy {
	s.basic.UpdateCredentials(creds)
	return s.basic
}

// CookieAuth returns the shared cookie strategy.
func (s *Service) CookieAuth() authstrategy.Strategy {
	return s.cookie
}

// IsSupportUser reports whether the credentials belong to an operator
// impersonating a tenant user, recognizable by the `$` delimiter.
func (s *Service) IsSupportUser(creds *identity.Credentials) bool {
	return creds != nil && strings.Contains(creds.User, "$")
}

// ShowTenant reports whether the tenant input field should be offered.
func (s *Service) ShowTenant() bool {
	s.mu.Lock()
	known := s.loginOptionsKnown
	s.mu.Unlock()
	return !known || s.isLocal() || s.showTenantHint
}

// ShowTenantSetup reports whether the tenant-id setup view is required: the
// tenant is unknown and we are not in local development.
func (s *Service) ShowTenantSetup() bool {
	s.mu.Lock()
	known := s.loginOptionsKnown
	s.mu.Unlock()
	return !known && !s.isLocal()
}

// Login is the primary entry point: it authenticates with the given (or
// auto-selected) strategy, resolves tenant and user, persists the resulting
// token, and finalizes the post-login redirect.
//
// The boolean reports whether the redirect happened. false with a nil error
// is the missing-application-access outcome, a normal result the caller must
// answer with the corresponding view.
func (s *Service) Login(ctx context.Context, strategy authstrategy.Strategy, creds *identity.Credentials) (bool, error) {
	if strategy == nil {
		strategy = s.SelectStrategy(ctx)
	}

	// Backward compatibility: a tenant on internal OAuth2 that supports
	// TFA only authenticates through the password grant, so the mode
	// switch must happen before the first authenticated call. The switch
	// is re-attempted after the tenant fetch for every other mode; both
	// checks are required.
	mode := s.LoginMode()
	oauthInternalWithTFA := identity.IsOauthInternal(mode) && mode.TFASupported

	if oauthInternalWithTFA {
		switched, err := s.SwitchLoginMode(ctx, creds)
		if err != nil {
			return false, err
		}
		if switched {
			strategy = s.cookie
		} else {
			s.clients.Fetch.SetAuth(strategy)
		}
	} else {
		s.clients.Fetch.SetAuth(strategy)
	}

	tenant, err := s.clients.Identity.CurrentTenant(ctx, true)
	if err != nil {
		return false, err
	}
	if creds != nil {
		creds.Tenant = tenant.Name
	}

	if !oauthInternalWithTFA {
		switched, err := s.SwitchLoginMode(ctx, creds)
		if err != nil {
			return false, err
		}
		if switched {
			strategy = s.cookie
		}
	}

	user, err := s.fetchCurrentUser(ctx)
	if err != nil {
		return false, err
	}

	name := user.UserName
	if supportUser := s.supportUserName(ctx, creds); supportUser != "" {
		name = supportUser + "$" + name
	}
	token := s.setCredentials(identity.Credentials{Tenant: tenant.Name, User: name}, strategy)
	if token != "" {
		if err := s.tokens.StoreToken(ctx, token, s.RememberMe()); err != nil {
			slog.Warn("failed persisting auth token", "err", err)
		}
	}

	s.authFulfilled(tenant, user)

	return s.EnsureUserPermissionsForRedirect(ctx, user)
}

// AuthFulfilled marks the session authenticated, fetching tenant and user
// when the caller does not have them at hand (two-factor completion paths).
func (s *Service) AuthFulfilled(ctx context.Context, tenant *identity.Tenant, user *identity.User) error {
	if tenant == nil {
		var err error
		tenant, err = s.clients.Identity.CurrentTenant(ctx, true)
		if err != nil {
			return err
		}
		s.clients.Fetch.SetTenant(tenant.Name)
	}
	if user == nil {
		var err error
		user, err = s.fetchCurrentUser(ctx)
		if err != nil {
			return err
		}
	}
	s.authFulfilled(tenant, user)
	return nil
}

// EnsureUserPermissionsForRedirect resolves the redirect target, verifies
// the user may access it, and performs the redirect. false means missing
// application access.
func (s *Service) EnsureUserPermissionsForRedirect(ctx context.Context, user *identity.User) (bool, error) {
	redirectPath, err := s.GetRedirectPath(ctx)
	if err != nil {
		return false, err
	}
	if redirectPath == "" {
		return false, nil
	}
	if _, ok := s.UserHasAccessToApp(ctx, user, redirectPath); !ok {
		return false, nil
	}
	s.redirector.Redirect(redirectPath)
	return true, nil
}

// GetRedirectPath consumes the stashed post-login redirect path, stripping
// authentication related query parameters while preserving the remaining
// path, query and fragment. Without a stash it probes the platform's default
// landing application.
func (s *Service) GetRedirectPath(ctx context.Context) (string, error) {
	if stashed := s.tokens.TakeRedirectPath(ctx); stashed != "" {
		if strings.Contains(stashed, "?") {
			if u, err := url.Parse(stashed); err == nil {
				q := u.Query()
				for _, name := range consumableParams {
					q.Del(name)
				}
				query := q.Encode()
				if query != "" {
					query = "?" + query
				}
				fragment := ""
				if u.Fragment != "" {
					fragment = "#" + u.Fragment
				}
				stashed = u.Path + query + fragment
			}
		}
		return stashed, nil
	}
	return s.defaultAppRedirect(ctx)
}

// defaultAppRedirect resolves the default landing application by requesting
// the root path and matching the finally resolved URL against the
// application path convention.
func (s *Service) defaultAppRedirect(ctx context.Context) (string, error) {
	res, err := s.clients.Fetch.Fetch(ctx, "/", nil)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	resolved := res.Request.URL.String()
	return appPathPattern.FindString(resolved), nil
}

// UserHasAccessToApp verifies the user may open the application a redirect
// URL points at. On localhost access is assumed, so developers need not
// create the application before working on it. Any manifest lookup failure
// counts as no access; this method never fails.
func (s *Service) UserHasAccessToApp(ctx context.Context, user *identity.User, redirectPath string) (string, bool) {
	if redirectPath == "" {
		return "", false
	}
	contextPath := ExtractContextPath(redirectPath)
	if contextPath == "" {
		return "", false
	}
	if s.isLocal() {
		return redirectPath, true
	}
	if _, err := s.clients.Applications.ManifestOfContextPath(ctx, contextPath); err != nil {
		slog.Info("no access to application", "contextPath", contextPath, "err", err)
		return "", false
	}
	return redirectPath, true
}

// ExtractContextPath pulls the application context path out of a redirect
// URL following the `/apps/[public/]<contextPath>` convention.
func ExtractContextPath(redirectURL string) string {
	m := appPathPattern.FindStringSubmatch(redirectURL)
	if m == nil {
		return ""
	}
	return m[2]
}

// SwitchLoginMode performs the password-grant token exchange when the active
// login mode requires one, switching the session to cookie auth afterwards
// and clearing locally cached basic-auth material. It reports whether the
// exchange was required, letting the caller pick the follow-up strategy.
func (s *Service) SwitchLoginMode(ctx context.Context, creds *identity.Credentials) (bool, error) {
	isPasswordGrant, err := s.IsPasswordGrantLogin(ctx, creds)
	if err != nil {
		return false, err
	}
	if !isPasswordGrant || creds == nil {
		return isPasswordGrant, nil
	}

	res, err := s.GenerateOauthToken(ctx, creds)
	if err != nil {
		return false, err
	}
	if res != nil {
		if res.StatusCode >= 300 {
			return false, identity.NewAPIError(res)
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
	}

	s.clients.Fetch.SetAuth(s.cookie)
	s.tokens.ClearTokens(ctx)
	s.basic.Logout(ctx, true)
	return true, nil
}

// GenerateOauthToken issues the password-grant token exchange. It returns
// nil without error when the active mode does not use the password grant.
//
// It is also the explicitly named post-failure hook: the credential entry
// flow invokes it best-effort after an unclassified failure, a legacy
// cleanup kept until the backend stops needing it.
func (s *Service) GenerateOauthToken(ctx context.Context, creds *identity.Credentials) (*http.Response, error) {
	isPasswordGrant, err := s.IsPasswordGrantLogin(ctx, creds)
	if err != nil {
		return nil, err
	}
	if !isPasswordGrant || creds == nil {
		return nil, nil
	}

	form := url.Values{}
	form.Set("grant_type", "PASSWORD")
	form.Set("username", creds.User)
	form.Set("password", creds.Password)
	if creds.TFA != "" {
		form.Set("tfa_code", creds.TFA)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	return s.clients.Fetch.Fetch(ctx, s.oauthTokenPath(creds), &identity.FetchOptions{
		Method: http.MethodPost,
		Header: header,
		Body:   strings.NewReader(form.Encode()),
	})
}

// IsPasswordGrantLogin classifies the mode the credentials will log in
// through. Support users always log in against the management tenant, whose
// login mode is fetched once and cached.
func (s *Service) IsPasswordGrantLogin(ctx context.Context, creds *identity.Credentials) (bool, error) {
	mode := s.LoginMode()
	if s.IsSupportUser(creds) {
		s.mu.Lock()
		cached := s.managementLoginMode
		s.mu.Unlock()
		if cached == nil {
			options, err := s.clients.LoginOptions.ListForManagement(ctx)
			if err != nil {
				return false, err
			}
			preferred := identity.PreferredLoginOption(options)
			cached = &preferred
			s.mu.Lock()
			s.managementLoginMode = cached
			s.mu.Unlock()
		}
		mode = *cached
	}
	return identity.IsOauthInternal(mode), nil
}

// LoginBySSO completes an SSO callback by exchanging the authorization code.
// Failures surface as an SSO error notification and are returned.
func (s *Service) LoginBySSO(ctx context.Context, code, sessionState string) error {
	path := "/tenant/oauth?code=" + url.QueryEscape(code)
	if sessionState != "" {
		path += "&session_state=" + url.QueryEscape(sessionState)
	}
	header := http.Header{}
	header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := s.clients.Fetch.Fetch(ctx, path, &identity.FetchOptions{Header: header})
	if err != nil {
		s.ShowSSOError(err.Error())
		return err
	}
	if res.StatusCode >= 400 {
		apiErr := identity.NewAPIError(res)
		s.ShowSSOError(apiErr.UserMessage())
		return apiErr
	}
	io.Copy(io.Discard, res.Body)
	res.Body.Close()
	return nil
}

// RedirectToOauth initiates the external SSO flow. idpHint, when present, is
// forwarded verbatim to the identity provider.
func (s *Service) RedirectToOauth(ctx context.Context, idpHint string) {
	opts := s.OauthOptions()
	fullPath := s.origin.Scheme + "://" + s.origin.Host + s.origin.Path
	separator := "?"
	if strings.Contains(opts.InitRequest, "?") {
		separator = "&"
	}
	originURIParam := separator + "originUri=" + url.QueryEscape(fullPath)

	if opts.FlowControlledByUI {
		initURL, err := url.Parse(opts.InitRequest)
		if err != nil {
			s.ShowSSOError(err.Error())
			return
		}
		search := ""
		if initURL.RawQuery != "" {
			search = "?" + initURL.RawQuery
		}
		var body struct {
			RedirectTo string `json:"redirectTo"`
		}
		if err := s.clients.Fetch.FetchJSON(ctx, "/tenant/oauth"+search+originURIParam, nil, &body); err != nil {
			var apiErr *identity.APIError
			if errors.As(err, &apiErr) {
				s.ShowSSOError(apiErr.UserMessage())
			} else {
				s.ShowSSOError(err.Error())
			}
			return
		}
		s.redirector.Redirect(body.RedirectTo)
		return
	}

	target := opts.InitRequest + originURIParam
	if idpHint != "" {
		target += "&idp_hint=" + idpHint
	}
	s.redirector.Redirect(target)
}

// ValidateResetToken asks the identity provider for the verdict on a
// password reset token. It never fails: 422 means expired, any other error
// invalid.
func (s *Service) ValidateResetToken(ctx context.Context, token, email string) TokenStatus {
	err := s.clients.Identity.ValidateResetToken(ctx, token, email)
	if err == nil {
		return TokenValid
	}
	if identity.StatusOf(err) == http.StatusUnprocessableEntity {
		return TokenExpired
	}
	return TokenInvalid
}

// SaveTFAToken persists the two-factor token per the remember-me setting.
func (s *Service) SaveTFAToken(ctx context.Context, tfaToken string) {
	if err := s.tokens.StoreTFAToken(ctx, tfaToken, s.RememberMe()); err != nil {
		slog.Warn("failed persisting TFA token", "err", err)
	}
}

// RedirectToDomain re-opens the current URL on another domain, preserving
// path and parameters. The tenant-id setup flow uses it to move the user to
// the tenant's login domain.
func (s *Service) RedirectToDomain(domain string) {
	target := *s.origin
	target.Host = domain
	s.redirector.Redirect(target.String())
}

// IsOnDomain reports whether the session already runs on the given domain.
func (s *Service) IsOnDomain(domain string) bool {
	return strings.Contains(s.origin.String(), domain)
}

// IsSecureOrigin reports whether the session runs over HTTPS.
func (s *Service) IsSecureOrigin() bool {
	return s.origin.Scheme == "https"
}

// IsLocalOrigin reports whether the session runs on a development host.
func (s *Service) IsLocalOrigin() bool {
	return s.isLocal()
}

// SkipSSO reports whether the automatic redirect to an external identity
// provider is disabled for this session.
func (s *Service) SkipSSO() bool {
	return s.skipSSO
}

// ShowSSOError surfaces an error of the external authentication service.
func (s *Service) ShowSSOError(detail string) {
	if detail == "" {
		s.alerts.Danger(errorMessages["sso_failed"])
		return
	}
	s.alerts.Danger(fmt.Sprintf(
		"The following error was returned from the external authentication service: %s", detail))
}

// ClearCookies ends any cookie session without triggering a redirect.
func (s *Service) ClearCookies(ctx context.Context) error {
	return s.cookie.Logout(ctx, true)
}

// CleanMessages drops all pending alerts.
func (s *Service) CleanMessages() {
	s.alerts.ClearAll()
}

// Reset clears the transient authentication state of the session: the
// active strategy is detached and locally held basic-auth credentials are
// dropped. Stored tokens survive.
func (s *Service) Reset(ctx context.Context) {
	s.clients.Fetch.SetAuth(nil)
	s.basic.Logout(ctx, true)
}

// Logout tears the authenticated session down. redirect controls whether the
// flow navigates back to the login entry point afterwards.
func (s *Service) Logout(ctx context.Context, redirect bool) {
	s.basic.Logout(ctx, true)
	if err := s.cookie.Logout(ctx, !redirect); err != nil {
		slog.Warn("cookie logout failed", "err", err)
	}
	s.tokens.ClearTokens(ctx)

	s.mu.Lock()
	s.currentTenant = nil
	s.currentUser = nil
	s.mu.Unlock()

	if redirect {
		s.redirector.Redirect("/")
	}
}

func (s *Service) authFulfilled(tenant *identity.Tenant, user *identity.User) {
	s.clients.Fetch.SetTenant(tenant.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTenant = tenant
	s.currentUser = user
}

// fetchCurrentUser resolves the user, falling back to the effective-roles
// lookup when the direct one is forbidden.
func (s *Service) fetchCurrentUser(ctx context.Context) (*identity.User, error) {
	user, err := s.clients.Identity.CurrentUser(ctx)
	if err == nil {
		return user, nil
	}
	if identity.StatusOf(err) == http.StatusForbidden {
		return s.clients.Identity.CurrentUserWithEffectiveRoles(ctx)
	}
	return nil, err
}

// setCredentials stamps the tenant onto the shared client and merges tenant
// and user into the strategies. A token already held by the basic strategy
// is reused, which is how a support user keeps their own token while the
// user name changes to the impersonated one.
func (s *Service) setCredentials(creds identity.Credentials, strategy authstrategy.Strategy) string {
	if creds.Tenant != "" {
		s.clients.Fetch.SetTenant(creds.Tenant)
	}
	token := s.basic.UpdateCredentials(identity.Credentials{Tenant: creds.Tenant, User: creds.User})
	creds.Token = token
	return strategy.UpdateCredentials(creds)
}

// supportUserName extracts the support user name from the supplied
// credentials, falling back to the stored token.
func (s *Service) supportUserName(ctx context.Context, creds *identity.Credentials) string {
	user := ""
	if creds != nil {
		user = creds.User
	} else if stored, ok := s.tokens.StoredCredentials(ctx); ok {
		user = stored.User
	}
	if user == "" {
		return ""
	}
	m := supportUserPattern.FindStringSubmatch(user)
	if m == nil {
		return ""
	}
	return m[2]
}

// oauthTokenPath resolves the password-grant endpoint, deriving the tenant
// id from the init request when the credentials do not carry one.
func (s *Service) oauthTokenPath(creds *identity.Credentials) string {
	mode := s.LoginMode()
	if creds.Tenant == "" && mode.InitRequest != "" {
		if idx := strings.LastIndex(mode.InitRequest, "?"); idx >= 0 {
			if values, err := url.ParseQuery(mode.InitRequest[idx+1:]); err == nil {
				creds.Tenant = values.Get("tenant_id")
			}
		}
	}
	if creds.Tenant != "" {
		return "/tenant/oauth?tenant_id=" + url.QueryEscape(creds.Tenant)
	}
	return "/tenant/oauth"
}

func (s *Service) isLocal() bool {
	host := s.origin.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// unmarshalMessage parses the message field of an error body.
func unmarshalMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return body.Message
}
