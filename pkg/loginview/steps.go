package loginview

import (
	"context"
	"net/http"

	"github.com/tenantgate/login-flow/pkg/authstrategy"
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/loginflow"
)

// SubmitCredentials runs a manual login attempt from the credential view.
func (m *Machine) SubmitCredentials(ctx context.Context, tenant, user, password string, rememberMe bool) {
	if identity.IsOauthInternal(m.flow.LoginMode()) && !m.flow.IsSecureOrigin() && !m.flow.IsLocalOrigin() {
		m.alerts.Danger(loginflow.ErrorMessage("https_only"))
		return
	}

	m.mu.Lock()
	if tenant != "" {
		m.creds.Tenant = tenant
	}
	m.creds.User = user
	m.creds.Password = password
	creds := m.creds
	m.mu.Unlock()

	m.flow.SetRememberMe(rememberMe)
	m.loginWith(ctx, creds)
}

// VerifySMSCode submits the code of an SMS challenge. A password-grant login
// carries the code straight into the token exchange; every other mode
// verifies it against the pin endpoint first and retries with the two-factor
// token handed back.
func (m *Machine) VerifySMSCode(ctx context.Context, code string) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if grant, err := m.flow.IsPasswordGrantLogin(ctx, &creds); err == nil && grant {
		m.mu.Lock()
		m.creds.TFA = code
		creds = m.creds
		m.mu.Unlock()
		m.loginWith(ctx, creds)
		return
	}

	headers, err := m.flow.Identity().VerifyTFACode(ctx, code)
	if err != nil {
		m.alerts.Danger(loginflow.ErrorMessage("tfa_invalid"))
		return
	}
	// The verification consumed the pin; the retry must present the
	// two-factor token handed back instead.
	tfa := headers.Get(authstrategy.TFATokenHeader)
	if tfa != "" {
		m.flow.SaveTFAToken(ctx, tfa)
	} else {
		tfa = code
	}

	m.mu.Lock()
	m.creds.TFA = tfa
	creds = m.creds
	m.mu.Unlock()
	m.loginWith(ctx, creds)
}

// ResendSMS requests a fresh verification code. A password-grant login
// retriggers pin delivery through the token endpoint; every other mode
// submits the "0" placeholder code, which the provider answers with a 403
// resend trigger.
func (m *Machine) ResendSMS(ctx context.Context) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	creds.TFA = ""

	if grant, err := m.flow.IsPasswordGrantLogin(ctx, &creds); err == nil && grant {
		res, genErr := m.flow.GenerateOauthToken(ctx, &creds)
		if genErr != nil {
			m.alerts.AddServerFailure(genErr)
			return
		}
		if res != nil {
			res.Body.Close()
		}
		m.flow.AddSuccessMessage("resend_sms")
		return
	}

	_, err := m.flow.Identity().VerifyTFACode(ctx, "0")
	if err == nil || identity.StatusOf(err) == http.StatusForbidden {
		m.flow.AddSuccessMessage("resend_sms")
		return
	}
	m.alerts.AddServerFailure(err)
}

// SubmitTOTPCode submits the code of a TOTP challenge.
func (m *Machine) SubmitTOTPCode(ctx context.Context, code string) {
	m.mu.Lock()
	m.creds.TFA = code
	creds := m.creds
	m.mu.Unlock()
	m.loginWith(ctx, creds)
}

// SubmitTOTPSetup activates time-based codes for the account and completes
// the login with the first generated code.
func (m *Machine) SubmitTOTPSetup(ctx context.Context, code string) {
	if err := m.flow.Identity().ActivateTOTP(ctx); err != nil {
		m.alerts.AddServerFailure(err)
		return
	}
	m.SubmitTOTPCode(ctx, code)
}

// RequestPasswordReset asks the provider to send a reset mail and returns to
// the credential view.
func (m *Machine) RequestPasswordReset(ctx context.Context, email string) {
	if err := m.flow.Identity().SendPasswordResetMail(ctx, email, m.flow.GetTenant()); err != nil {
		m.alerts.AddServerFailure(err)
		return
	}
	m.mu.Lock()
	m.recover.Email = email
	m.mu.Unlock()
	m.flow.AddSuccessMessage("password_reset_requested")
	m.transition(ViewCredentials)
}

// SubmitNewPassword redeems the carried reset token for a new password.
func (m *Machine) SubmitNewPassword(ctx context.Context, email, newPassword string) {
	m.mu.Lock()
	token := m.creds.Token
	m.mu.Unlock()

	err := m.flow.Identity().ResetPassword(ctx, token, email, newPassword, m.flow.GetTenant())
	if err != nil {
		if identity.StatusOf(err) == http.StatusUnprocessableEntity {
			m.mu.Lock()
			m.creds.Token = ""
			m.recover = RecoverPassword{Email: email, TokenStatus: loginflow.TokenExpired, TenantID: m.flow.GetTenant()}
			m.mu.Unlock()
			m.transition(ViewRecoverPassword)
			return
		}
		m.alerts.AddServerFailure(err)
		return
	}

	m.mu.Lock()
	m.creds.Token = ""
	m.creds.Password = ""
	m.mu.Unlock()
	m.flow.AddSuccessMessage("password_changed")
	m.SetView(ctx)
}

// SubmitPhoneNumber stores the phone number two-factor SMS delivery needs,
// then retries the login, which is expected to raise the SMS challenge.
func (m *Machine) SubmitPhoneNumber(ctx context.Context, phone string) {
	if err := m.flow.Identity().SavePhoneNumber(ctx, phone); err != nil {
		m.alerts.AddServerFailure(err)
		return
	}
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	m.loginWith(ctx, creds)
}

// SetupTenant resolves login options for an explicitly entered tenant id,
// moving the session to the tenant's login domain when one is configured.
func (m *Machine) SetupTenant(ctx context.Context, tenantID string) {
	if err := m.flow.RefreshLoginOptions(ctx, tenantID); err != nil {
		m.alerts.AddServerFailure(err)
		return
	}
	mode := m.flow.LoginMode()
	if mode.LoginRedirectDomain != "" && !m.flow.IsOnDomain(mode.LoginRedirectDomain) {
		m.flow.RedirectToDomain(mode.LoginRedirectDomain)
		return
	}
	m.mu.Lock()
	m.creds.Tenant = tenantID
	m.mu.Unlock()
	m.SetView(ctx)
}

// loginWith performs the network login and routes its outcome.
func (m *Machine) loginWith(ctx context.Context, creds identity.Credentials) {
	strategy := m.flow.UseBasicAuth(creds)
	redirected, err := m.flow.Login(ctx, strategy, &creds)

	m.mu.Lock()
	m.creds.Tenant = creds.Tenant
	m.mu.Unlock()

	m.handleLoginOutcome(ctx, redirected, err, creds)
}

// handleLoginOutcome maps a login result onto the next view: success
// redirects or reports missing access, expected challenges route to their
// dedicated views, anything else surfaces as a server failure and resets the
// flow.
func (m *Machine) handleLoginOutcome(ctx context.Context, redirected bool, err error, creds identity.Credentials) {
	if err == nil {
		if !redirected {
			m.transition(ViewMissingApplicationAccess)
		}
		return
	}

	challenge := loginflow.Classify(err, m.flow.IsSupportUser(&creds))
	switch challenge.Kind {
	case loginflow.ChallengePasswordReset:
		m.alerts.RemoveLastDanger()
		m.mu.Lock()
		m.creds.Token = challenge.ResetToken
		m.mu.Unlock()
		m.transition(ViewChangePassword)

	case loginflow.ChallengeSMS:
		if m.CurrentView() == ViewSMSChallenge {
			m.alerts.Danger(loginflow.ErrorMessage("tfa_invalid"))
			return
		}
		m.alerts.RemoveLastDanger()
		if challenge.PinAlreadySent {
			m.alerts.Warning(loginflow.ErrorMessage("pin_already_sent"))
		} else {
			m.flow.AddSuccessMessage("send_sms")
		}
		m.transition(ViewSMSChallenge)

	case loginflow.ChallengeTOTP:
		if m.CurrentView() == ViewTOTPChallenge {
			m.alerts.Danger(loginflow.ErrorMessage("tfa_invalid"))
			return
		}
		m.transition(ViewTOTPChallenge)

	case loginflow.ChallengeTOTPSetup:
		m.transition(ViewTOTPSetup)

	case loginflow.ChallengeProvidePhone:
		m.alerts.Warning(loginflow.ErrorMessage("phone_number_required"))
		m.transition(ViewProvidePhoneNumber)

	default:
		// Legacy cleanup the backend still expects after a failed
		// password-grant attempt. Best effort, never blocks the reset.
		go func(creds identity.Credentials) {
			res, genErr := m.flow.GenerateOauthToken(context.WithoutCancel(ctx), &creds)
			if genErr == nil && res != nil {
				res.Body.Close()
			}
		}(creds)
		m.alerts.AddServerFailure(err)
		m.ResetView(ctx)
	}
}
