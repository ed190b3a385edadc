package loginview

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/loginflow"
	"github.com/tenantgate/login-flow/pkg/notification"
	"github.com/tenantgate/login-flow/pkg/params"
)

// Branding is the non-network presentation decision computed once at
// construction. It never changes with view transitions.
type Branding struct {
	ShowBrandLogo     bool `json:"showBrandLogo"`
	PlatformAnimation bool `json:"platformAnimation"`
}

// Config seeds a machine.
type Config struct {
	// HideBrandLogo and DisableAnimation are the styling hooks the
	// branding decision is computed from.
	HideBrandLogo    bool
	DisableAnimation bool
	// DisableAutoLogin suppresses the automatic login attempt on first
	// load, useful in embedded contexts that drive the flow themselves.
	DisableAutoLogin bool
}

// Machine is the view controller of one login flow session.
type Machine struct {
	flow   *loginflow.Service
	params *params.Store
	alerts *notification.Service

	branding  Branding
	autoLogin bool

	mu         sync.Mutex
	current    View
	creds      identity.Credentials
	recover    RecoverPassword
	viewParams map[string]string
}

// NewMachine builds a machine in the None state. OnLoad decides the first
// real view.
func NewMachine(cfg Config, flow *loginflow.Service, store *params.Store, alerts *notification.Service) *Machine {
	return &Machine{
		flow:   flow,
		params: store,
		alerts: alerts,
		branding: Branding{
			ShowBrandLogo:     !cfg.HideBrandLogo,
			PlatformAnimation: !cfg.DisableAnimation && !cfg.HideBrandLogo,
		},
		autoLogin: !cfg.DisableAutoLogin,
		current:   ViewNone,
	}
}

// Branding returns the construction-time presentation decision.
func (m *Machine) Branding() Branding { return m.branding }

// CurrentView returns the view currently presented.
func (m *Machine) CurrentView() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Credentials returns a copy of the credentials accumulated so far.
func (m *Machine) Credentials() identity.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// RecoverPasswordData returns the pre-fill data of the recovery view.
func (m *Machine) RecoverPasswordData() RecoverPassword {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recover
}

// OnLoad decides the initial view: a password reset landing, an SSO error or
// callback, an automatic login, or plain credential entry. Whichever path is
// taken, the first-visit phase ends with the load.
func (m *Machine) OnLoad(ctx context.Context) {
	first := m.flow.IsFirstLogin()
	defer m.flow.MarkVisited()

	tenant, _ := m.params.GetAndClear(params.ParamTenant)
	user, _ := m.params.GetAndClear(params.ParamUser)
	if tenant != "" || user != "" {
		m.mu.Lock()
		if tenant != "" {
			m.creds.Tenant = tenant
		}
		if user != "" {
			m.creds.User = user
		}
		m.mu.Unlock()
	}

	if first {
		if token, ok := m.params.GetAndClear(params.ParamToken); ok {
			email, _ := m.params.GetAndClear(params.ParamEmail)
			m.mu.Lock()
			m.creds.Token = token
			m.recover.Email = email
			m.mu.Unlock()
			m.SetView(ctx)
			return
		}
	}

	if ssoErr, ok := m.params.GetAndClear(params.ParamError); ok {
		description, _ := m.params.GetAndClear(params.ParamErrorDescription)
		if description == "" {
			description = ssoErr
		}
		m.flow.ShowSSOError(description)
		m.SetView(ctx)
		return
	}

	if code, ok := m.params.GetAndClear(params.ParamCode); ok {
		sessionState, _ := m.params.GetAndClear(params.ParamSessionState)
		m.completeSSO(ctx, code, sessionState)
		return
	}

	if m.autoLogin && first {
		m.loginAutomatically(ctx)
		return
	}

	m.SetView(ctx)
}

// completeSSO exchanges the callback code and finishes with a normal login.
func (m *Machine) completeSSO(ctx context.Context, code, sessionState string) {
	if err := m.flow.LoginBySSO(ctx, code, sessionState); err != nil {
		m.SetView(ctx)
		return
	}
	redirected, err := m.flow.Login(ctx, m.flow.CookieAuth(), nil)
	if err != nil {
		if identity.StatusOf(err) != 0 {
			m.alerts.AddServerFailure(err)
		}
		m.SetView(ctx)
		return
	}
	if !redirected {
		m.transition(ViewMissingApplicationAccess)
	}
}

// loginAutomatically attempts the stored-token login of a first visit. When
// it fails and the tenant prefers an external SSO login, the user is
// forwarded to the identity provider instead of the credential view.
func (m *Machine) loginAutomatically(ctx context.Context) {
	redirected, err := m.flow.Login(ctx, nil, nil)
	if err == nil {
		if !redirected {
			m.transition(ViewMissingApplicationAccess)
		}
		return
	}

	slog.Debug("automatic login failed", "err", err)
	m.flow.Reset(ctx)
	m.flow.CleanMessages()
	if cookieErr := m.flow.ClearCookies(ctx); cookieErr != nil {
		slog.Debug("cookie cleanup after failed automatic login", "err", cookieErr)
	}

	// A 403 is a definite verdict on the presented credentials; forwarding
	// to the identity provider would just loop.
	forbidden := identity.StatusOf(err) == http.StatusForbidden
	mode := m.flow.LoginMode()
	if mode.Type == identity.LoginModeOAuth2 && mode.Visible() && !m.flow.SkipSSO() && !forbidden {
		m.flow.RedirectToOauth(ctx, m.params.Peek(params.ParamIdpHint))
		return
	}
	if identity.IsOauthInternal(mode) && !m.flow.IsSecureOrigin() && !m.flow.IsLocalOrigin() {
		m.alerts.Danger(loginflow.ErrorMessage("https_only"))
	}
	if forbidden {
		m.alerts.AddServerFailure(err)
	}
	m.SetView(ctx)
}

// SetView resolves the contextual default view: a carried reset token routes
// to password change or recovery depending on its verdict, an unknown tenant
// to tenant-id setup, everything else to credential entry.
func (m *Machine) SetView(ctx context.Context) {
	m.mu.Lock()
	token := m.creds.Token
	email := m.recover.Email
	m.mu.Unlock()

	if token != "" {
		status := m.flow.ValidateResetToken(ctx, token, email)
		if status == loginflow.TokenValid {
			m.transition(ViewChangePassword)
			return
		}
		m.mu.Lock()
		m.creds.Token = ""
		m.recover = RecoverPassword{
			Email:       email,
			TokenStatus: status,
			TenantID:    m.flow.GetTenant(),
		}
		m.mu.Unlock()
		m.transition(ViewRecoverPassword)
		return
	}

	if m.flow.ShowTenantSetup() {
		m.transition(ViewTenantIDSetup)
		return
	}
	m.transition(ViewCredentials)
}

// Handle adopts an event raised by a view step unconditionally, merging any
// payload it carries into the session state.
func (m *Machine) Handle(ctx context.Context, ev Event) {
	m.mu.Lock()
	if ev.Credentials != nil {
		if err := copier.CopyWithOption(&m.creds, ev.Credentials, copier.Option{IgnoreEmpty: true}); err != nil {
			slog.Warn("could not merge event credentials", "err", err)
		}
	}
	if ev.ViewParams != nil {
		m.viewParams = ev.ViewParams
	}
	if ev.RecoverPassword != nil {
		m.recover = *ev.RecoverPassword
	}
	m.mu.Unlock()

	if ev.View == ViewNone {
		m.SetView(ctx)
		return
	}
	m.transition(ev.View)
}

// ResetView drops transient secrets and returns to the contextual default
// view. Unclassified failures end here.
func (m *Machine) ResetView(ctx context.Context) {
	m.mu.Lock()
	m.creds.Password = ""
	m.creds.TFA = ""
	m.mu.Unlock()
	m.SetView(ctx)
}

// Destroy cleans authentication parameters out of the visible URL. Always
// safe to call, independent of the current view.
func (m *Machine) Destroy() {
	for _, name := range []string{
		params.ParamToken,
		params.ParamEmail,
		params.ParamCode,
		params.ParamSessionState,
		params.ParamError,
		params.ParamErrorDescription,
		params.ParamTenant,
		params.ParamUser,
	} {
		m.params.GetAndClear(name)
	}
	m.params.RemoveConsumedParams()
}

func (m *Machine) transition(next View) {
	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()
	if prev != next {
		slog.Debug("view transition", "from", prev, "to", next)
	}
}
