package loginview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/idp"
	"github.com/tenantgate/login-flow/pkg/loginflow"
	"github.com/tenantgate/login-flow/pkg/notification"
	"github.com/tenantgate/login-flow/pkg/params"
)

type fixture struct {
	machine   *Machine
	flow      *loginflow.Service
	alerts    *notification.Service
	tokens    *credstore.TokenStore
	store     *idp.Store
	idp       *idp.Server
	redirects []string

	reqMu    sync.Mutex
	requests []string
}

// newFixture wires a machine against a freshly seeded in-memory provider.
func newFixture(t *testing.T, rawURL string) *fixture {
	return newModeFixture(t, rawURL, []identity.LoginMode{{Type: identity.LoginModeBasic}})
}

// newModeFixture is newFixture with the tenant login configuration under test
// control, shared between the provider and the flow.
func newModeFixture(t *testing.T, rawURL string, options []identity.LoginMode) *fixture {
	t.Helper()

	store := idp.NewStore("cockpit", "devicemanagement")
	server := idp.NewServer(idp.Config{
		TenantName:   "t100",
		TenantDomain: "t100.example.com",
		JWTSecret:    "test-secret",
		LoginOptions: options,
	}, store, nil)

	f := &fixture{store: store, idp: server}
	routes := server.Routes()
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.reqMu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.reqMu.Unlock()
		routes.ServeHTTP(w, r)
	}))
	t.Cleanup(httpServer.Close)

	fetch := identity.NewFetchClient(httpServer.URL)
	alerts := notification.NewService()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())

	f.alerts = alerts
	f.tokens = tokens
	flow := loginflow.NewService(loginflow.Config{
		RawURL:       rawURL,
		LoginOptions: options,
	}, loginflow.Clients{
		Fetch:        fetch,
		Identity:     identity.NewHTTPIdentityClient(fetch),
		LoginOptions: identity.NewHTTPLoginOptionsClient(fetch),
		Applications: identity.NewHTTPManifestClient(fetch),
	}, tokens, alerts, loginflow.RedirectorFunc(func(target string) {
		f.redirects = append(f.redirects, target)
	}))

	f.flow = flow
	f.machine = NewMachine(Config{DisableAutoLogin: true}, flow, params.NewStore(rawURL, nil), alerts)
	return f
}

func (f *fixture) seed(t *testing.T, p idp.AccountParams) *idp.Account {
	t.Helper()
	p.Tenant = "t100"
	acct, err := f.store.CreateAccount(p)
	require.NoError(t, err)
	return acct
}

func (f *fixture) hits(path string) int {
	f.reqMu.Lock()
	defer f.reqMu.Unlock()
	n := 0
	for _, p := range f.requests {
		if p == path {
			n++
		}
	}
	return n
}

func (f *fixture) hasDanger() bool {
	for _, alert := range f.alerts.Alerts() {
		if alert.Level == notification.LevelDanger {
			return true
		}
	}
	return false
}

func TestBasicLoginRedirects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "alice", Email: "alice@example.com", Password: "alice-pwd"})

	f.machine.OnLoad(ctx)
	require.Equal(t, ViewCredentials, f.machine.CurrentView())

	f.machine.SubmitCredentials(ctx, "", "alice", "alice-pwd", false)

	require.Len(t, f.redirects, 1, "successful login must redirect")
	assert.Contains(t, f.redirects[0], "/apps/cockpit/")
	assert.NotEmpty(t, f.tokens.StoredToken(ctx), "session storage holds the token")
	assert.Equal(t, ViewCredentials, f.machine.CurrentView(), "no reset-view transition on success")
	assert.False(t, f.hasDanger())
}

func TestPasswordResetChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "erin", Email: "erin@example.com", Password: "erin-pwd", ResetRequired: true})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "erin", "erin-pwd", false)

	assert.Equal(t, ViewChangePassword, f.machine.CurrentView())
	assert.NotEmpty(t, f.machine.Credentials().Token, "the reset token from the response header is carried")
}

func TestPasswordResetChallengeCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "erin", Email: "erin@example.com", Password: "erin-pwd", ResetRequired: true})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "erin", "erin-pwd", false)
	require.Equal(t, ViewChangePassword, f.machine.CurrentView())

	f.machine.SubmitNewPassword(ctx, "erin@example.com", "brand-new-pwd")
	assert.Equal(t, ViewCredentials, f.machine.CurrentView())

	f.machine.SubmitCredentials(ctx, "", "erin", "brand-new-pwd", false)
	assert.Len(t, f.redirects, 1, "login with the new password succeeds")
}

func TestSMSChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	acct := f.seed(t, idp.AccountParams{Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "bob", "bob-pwd", false)
	require.Equal(t, ViewSMSChallenge, f.machine.CurrentView())

	// Re-requesting the pin yields the already generated one.
	pin, alreadySent := f.store.IssuePin(acct)
	require.True(t, alreadySent)

	f.machine.VerifySMSCode(ctx, pin)
	assert.Len(t, f.redirects, 1, "verified SMS code completes the login")
}

func TestSMSChallengeWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "bob", "bob-pwd", false)
	require.Equal(t, ViewSMSChallenge, f.machine.CurrentView())

	f.machine.VerifySMSCode(ctx, "000000")
	assert.Equal(t, ViewSMSChallenge, f.machine.CurrentView())
	assert.True(t, f.hasDanger())
	assert.Empty(t, f.redirects)
}

func TestTOTPSetupChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "carol", Email: "carol@example.com", Password: "carol-pwd", TFAMode: idp.TFATOTP})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "carol", "carol-pwd", false)

	assert.Equal(t, ViewTOTPSetup, f.machine.CurrentView())
}

func TestTOTPChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	acct := f.seed(t, idp.AccountParams{Username: "carol", Email: "carol@example.com", Password: "carol-pwd", TFAMode: idp.TFATOTP})
	f.store.ActivateTOTP(acct)

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "carol", "carol-pwd", false)

	assert.Equal(t, ViewTOTPChallenge, f.machine.CurrentView())
}

func TestProvidePhoneNumberChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "dave", Email: "dave@example.com", Password: "dave-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "dave", "dave-pwd", false)
	require.Equal(t, ViewProvidePhoneNumber, f.machine.CurrentView())

	// Saving a phone number retries the login, which now raises the SMS
	// challenge.
	f.machine.SubmitPhoneNumber(ctx, "+15550123")
	assert.Equal(t, ViewSMSChallenge, f.machine.CurrentView())
}

func TestSSOErrorParamsOnLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/?error=access_denied&error_description=Denied")

	f.machine.OnLoad(ctx)

	assert.Equal(t, ViewCredentials, f.machine.CurrentView())
	require.True(t, f.hasDanger())
}

func TestSSOCallbackOnLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	acct := f.seed(t, idp.AccountParams{Username: "alice", Email: "alice@example.com", Password: "alice-pwd"})
	code := f.idp.IssueSSOCode(acct)

	machine := NewMachine(Config{DisableAutoLogin: true}, f.flow,
		params.NewStore("https://t100.example.com/?code="+code, nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Len(t, f.redirects, 1, "SSO callback completes with a login and redirect")
}

func TestResetTokenParamExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "erin", Email: "erin@example.com", Password: "erin-pwd"})
	token := f.store.IssueResetToken("erin@example.com", -time.Minute)

	f.machine = NewMachine(Config{DisableAutoLogin: true}, f.flow,
		params.NewStore("https://t100.example.com/?token="+token+"&email=erin@example.com", nil), f.alerts)
	f.machine.OnLoad(ctx)

	assert.Equal(t, ViewRecoverPassword, f.machine.CurrentView())
	assert.Equal(t, loginflow.TokenExpired, f.machine.RecoverPasswordData().TokenStatus)
	assert.Equal(t, "erin@example.com", f.machine.RecoverPasswordData().Email)
}

func TestResetTokenParamValid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "erin", Email: "erin@example.com", Password: "erin-pwd"})
	token := f.store.IssueResetToken("erin@example.com", time.Hour)

	f.machine = NewMachine(Config{DisableAutoLogin: true}, f.flow,
		params.NewStore("https://t100.example.com/?token="+token+"&email=erin@example.com", nil), f.alerts)
	f.machine.OnLoad(ctx)

	assert.Equal(t, ViewChangePassword, f.machine.CurrentView())
}

func TestAutomaticLoginWithStoredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "alice", Email: "alice@example.com", Password: "alice-pwd"})

	token := credstore.EncodeToken(identity.Credentials{Tenant: "t100", User: "alice", Password: "alice-pwd"})
	require.NoError(t, f.tokens.StoreToken(ctx, token, false))

	machine := NewMachine(Config{}, f.flow, params.NewStore("https://t100.example.com/", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Len(t, f.redirects, 1, "stored token logs in automatically")
}

func TestFailedAutomaticLoginShowsCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")

	machine := NewMachine(Config{}, f.flow, params.NewStore("https://t100.example.com/", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Equal(t, ViewCredentials, machine.CurrentView())
	assert.Empty(t, f.redirects)
	assert.Empty(t, f.alerts.Alerts(), "a failed automatic login stays quiet")
}

func TestFailedAutomaticLoginRedirectsToExternalSSO(t *testing.T) {
	ctx := context.Background()
	f := newModeFixture(t, "https://t100.example.com/", []identity.LoginMode{
		{Type: identity.LoginModeOAuth2, InitRequest: "https://sso.example.com/init?tenant_id=t100"},
	})

	machine := NewMachine(Config{}, f.flow, params.NewStore("https://t100.example.com/", nil), f.alerts)
	machine.OnLoad(ctx)

	require.Len(t, f.redirects, 1, "an SSO tenant forwards to the identity provider")
	assert.Contains(t, f.redirects[0], "https://sso.example.com/init")
	assert.Contains(t, f.redirects[0], "originUri=")
}

func TestFailedAutomaticLoginPrefersInternalModeOverSSO(t *testing.T) {
	ctx := context.Background()
	f := newModeFixture(t, "https://t100.example.com/", []identity.LoginMode{
		{Type: identity.LoginModeOAuth2Internal, TFASupported: true},
		{Type: identity.LoginModeOAuth2, InitRequest: "https://sso.example.com/init?tenant_id=t100"},
	})

	machine := NewMachine(Config{}, f.flow, params.NewStore("https://t100.example.com/", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Empty(t, f.redirects, "the internal mode wins over the SSO forward")
	assert.Equal(t, ViewCredentials, machine.CurrentView())
}

func TestFailedAutomaticLoginHTTPSOnly(t *testing.T) {
	ctx := context.Background()
	f := newModeFixture(t, "http://t100.example.com/", []identity.LoginMode{
		{Type: identity.LoginModeOAuth2Internal},
	})

	machine := NewMachine(Config{}, f.flow, params.NewStore("http://t100.example.com/", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Equal(t, ViewCredentials, machine.CurrentView())
	alerts := f.alerts.Alerts()
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[len(alerts)-1].Text, "HTTPS")
}

func TestFailedAutomaticLoginForbiddenSkipsSSORedirect(t *testing.T) {
	ctx := context.Background()
	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"access denied"}`))
	}))
	t.Cleanup(denied.Close)

	fetch := identity.NewFetchClient(denied.URL)
	alerts := notification.NewService()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())
	var redirects []string
	flow := loginflow.NewService(loginflow.Config{
		RawURL: "https://t100.example.com/",
		LoginOptions: []identity.LoginMode{
			{Type: identity.LoginModeOAuth2, InitRequest: "https://sso.example.com/init"},
		},
	}, loginflow.Clients{
		Fetch:        fetch,
		Identity:     identity.NewHTTPIdentityClient(fetch),
		LoginOptions: identity.NewHTTPLoginOptionsClient(fetch),
		Applications: identity.NewHTTPManifestClient(fetch),
	}, tokens, alerts, loginflow.RedirectorFunc(func(target string) {
		redirects = append(redirects, target)
	}))

	machine := NewMachine(Config{}, flow, params.NewStore("https://t100.example.com/", nil), alerts)
	machine.OnLoad(ctx)

	// A definite 403 verdict must not bounce the user to the identity
	// provider again; it surfaces on the credential view instead.
	assert.Empty(t, redirects)
	assert.Equal(t, ViewCredentials, machine.CurrentView())
	var hasDanger bool
	for _, alert := range alerts.Alerts() {
		if alert.Level == notification.LevelDanger {
			hasDanger = true
		}
	}
	assert.True(t, hasDanger)
}

func TestTenantAndUserParamsPrefillCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")

	machine := NewMachine(Config{DisableAutoLogin: true}, f.flow,
		params.NewStore("https://t100.example.com/?tenant=t200&user=alice", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Equal(t, ViewCredentials, machine.CurrentView())
	assert.Equal(t, "t200", machine.Credentials().Tenant)
	assert.Equal(t, "alice", machine.Credentials().User)
}

func TestChallengeWithdrawsStaleFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "bob", "wrong", false)
	require.True(t, f.hasDanger())

	f.machine.SubmitCredentials(ctx, "", "bob", "bob-pwd", false)
	assert.Equal(t, ViewSMSChallenge, f.machine.CurrentView())
	assert.False(t, f.hasDanger(), "the stale failure of the earlier attempt is withdrawn")
}

func TestSMSChallengeWithPasswordGrant(t *testing.T) {
	ctx := context.Background()
	f := newModeFixture(t, "https://t100.example.com/", []identity.LoginMode{
		{Type: identity.LoginModeOAuth2Internal, TFASupported: true},
	})
	acct := f.seed(t, idp.AccountParams{Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "bob", "bob-pwd", false)
	require.Equal(t, ViewSMSChallenge, f.machine.CurrentView())

	pin, alreadySent := f.store.IssuePin(acct)
	require.True(t, alreadySent)

	// The code rides the token exchange; the pin endpoint stays untouched.
	f.machine.VerifySMSCode(ctx, pin)
	assert.Len(t, f.redirects, 1, "verified SMS code completes the login")
	assert.Zero(t, f.hits("/user/pin"))
}

func TestResendSMS(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "bob", Email: "bob@example.com", Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS})

	f.machine.OnLoad(ctx)
	f.machine.SubmitCredentials(ctx, "", "bob", "bob-pwd", false)
	require.Equal(t, ViewSMSChallenge, f.machine.CurrentView())

	f.machine.ResendSMS(ctx)

	assert.False(t, f.hasDanger())
	var resent bool
	for _, alert := range f.alerts.Alerts() {
		if alert.Level == notification.LevelSuccess && alert.Text == "Verification code SMS resent." {
			resent = true
		}
	}
	assert.True(t, resent)
}

func TestFirstVisitEndsAfterLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")

	require.True(t, f.flow.IsFirstLogin())
	f.machine.OnLoad(ctx)
	assert.False(t, f.flow.IsFirstLogin(), "any load path ends the first-visit phase")
}

func TestResetTokenParamIgnoredAfterFirstVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "erin", Email: "erin@example.com", Password: "erin-pwd"})
	token := f.store.IssueResetToken("erin@example.com", time.Hour)

	f.machine.OnLoad(ctx)

	// A reset token arriving on a later load is a stale deep link, not a
	// fresh landing; it must not hijack the view.
	machine := NewMachine(Config{DisableAutoLogin: true}, f.flow,
		params.NewStore("https://t100.example.com/?token="+token+"&email=erin@example.com", nil), f.alerts)
	machine.OnLoad(ctx)

	assert.Equal(t, ViewCredentials, machine.CurrentView())
	assert.Empty(t, machine.Credentials().Token)
}

func TestAccountLockedSurfacesAsServerFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://t100.example.com/")
	f.seed(t, idp.AccountParams{Username: "alice", Email: "alice@example.com", Password: "alice-pwd"})

	f.machine.OnLoad(ctx)
	for i := 0; i < 6; i++ {
		f.machine.SubmitCredentials(ctx, "", "alice", "wrong", false)
	}

	assert.Equal(t, ViewCredentials, f.machine.CurrentView())
	assert.True(t, f.hasDanger())
	assert.Empty(t, f.redirects)
}

func TestDestroyCleansURLParams(t *testing.T) {
	var navigated []string
	store := params.NewStore("https://t100.example.com/?code=abc&tenant=t1&keep=1", params.NavigatorFunc(func(rawURL string) {
		navigated = append(navigated, rawURL)
	}))
	f := newFixture(t, "https://t100.example.com/")
	machine := NewMachine(Config{DisableAutoLogin: true}, f.flow, store, f.alerts)

	machine.Destroy()
	require.Len(t, navigated, 1)
	assert.NotContains(t, navigated[0], "code=")
	assert.NotContains(t, navigated[0], "tenant=")
	assert.Contains(t, navigated[0], "keep=1")
}
