package identity

// Credentials is the mutable value object threaded through a login flow.
// Fields are filled in incrementally: tenant and user on load, token when a
// password reset link is followed, TFA after a challenge was answered. The
// struct itself is never persisted; only encoded token strings are.
type Credentials struct {
	Tenant   string `json:"tenant,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	TFA      string `json:"tfa,omitempty"`
}

// Tenant describes the tenant resolved for the current login.
type Tenant struct {
	Name         string  `json:"name"`
	DomainName   string  `json:"domainName,omitempty"`
	ParentTenant *Tenant `json:"parent,omitempty"`
}

// User is the identity resolved after authentication.
type User struct {
	ID             string   `json:"id,omitempty"`
	UserName       string   `json:"userName"`
	Email          string   `json:"email,omitempty"`
	PhoneNumber    string   `json:"phone,omitempty"`
	EffectiveRoles []string `json:"effectiveRoles,omitempty"`
}

// LoginModeType enumerates the tenant-level login mode classification.
type LoginModeType string

const (
	LoginModeBasic          LoginModeType = "BASIC"
	LoginModeOAuth2         LoginModeType = "OAUTH2"
	LoginModeOAuth2Internal LoginModeType = "OAUTH2_INTERNAL"
)

// LoginMode is the tenant login configuration. It is loaded once when the
// orchestrator is constructed and re-fetched only by the explicit tenant-id
// setup flow.
type LoginMode struct {
	Type                LoginModeType `json:"type"`
	InitRequest         string        `json:"initRequest,omitempty"`
	FlowControlledByUI  bool          `json:"flowControlledByUI,omitempty"`
	TFASupported        bool          `json:"tfaSupported,omitempty"`
	LoginRedirectDomain string        `json:"loginRedirectDomain,omitempty"`
	VisibleOnLoginPage  *bool         `json:"visibleOnLoginPage,omitempty"`
}

// Visible reports whether the mode should be offered on the login page.
// An absent flag counts as visible.
func (m LoginMode) Visible() bool {
	return m.VisibleOnLoginPage == nil || *m.VisibleOnLoginPage
}

// IsOauthInternal reports whether the mode authenticates through the
// platform-internal OAuth2 token endpoint (password grant).
func IsOauthInternal(m LoginMode) bool {
	return m.Type == LoginModeOAuth2Internal
}

// PreferredLoginOption picks the login mode a tenant wants its users to see
// first. Internal OAuth2 wins over external SSO, which wins over basic auth.
func PreferredLoginOption(options []LoginMode) LoginMode {
	byType := func(t LoginModeType) (LoginMode, bool) {
		for _, o := range options {
			if o.Type == t {
				return o, true
			}
		}
		return LoginMode{}, false
	}
	for _, t := range []LoginModeType{LoginModeOAuth2Internal, LoginModeOAuth2, LoginModeBasic} {
		if o, ok := byType(t); ok {
			return o
		}
	}
	return LoginMode{}
}

// Oauth2Option returns the external SSO option of a tenant, if any.
func Oauth2Option(options []LoginMode) (LoginMode, bool) {
	for _, o := range options {
		if o.Type == LoginModeOAuth2 {
			return o, true
		}
	}
	return LoginMode{}, false
}

// Manifest is the slice of an application manifest the login flow cares
// about: its existence proves the user may open the application.
type Manifest struct {
	ContextPath string `json:"contextPath"`
	Name        string `json:"name,omitempty"`
}
