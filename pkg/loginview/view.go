// Package loginview drives a user through the login flow: it owns the
// current view, decides the initial view on load, and transitions between
// views in response to events raised by each step's outcome. All network
// authentication is delegated to pkg/loginflow.
package loginview

import (
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/loginflow"
)

// View tags the screen currently presented. Exactly one view is current at a
// time; transitions through the machine are the only legal mutation.
type View string

const (
	ViewNone                     View = "NONE"
	ViewCredentials              View = "CREDENTIALS"
	ViewRecoverPassword          View = "RECOVER_PASSWORD"
	ViewSMSChallenge             View = "SMS_CHALLENGE"
	ViewChangePassword           View = "CHANGE_PASSWORD"
	ViewTOTPChallenge            View = "TOTP_CHALLENGE"
	ViewTOTPSetup                View = "TOTP_SETUP"
	ViewProvidePhoneNumber       View = "PROVIDE_PHONE_NUMBER"
	ViewTenantIDSetup            View = "TENANT_ID_SETUP"
	ViewMissingApplicationAccess View = "MISSING_APPLICATION_ACCESS"
)

// RecoverPassword carries the pre-fill data of the password recovery view.
type RecoverPassword struct {
	Email       string
	TokenStatus loginflow.TokenStatus
	TenantID    string
}

// Event is a transient message produced by a view step and consumed exactly
// once by the machine to transition. Optional payloads are merged into the
// machine's session state.
type Event struct {
	View            View
	Credentials     *identity.Credentials
	ViewParams      map[string]string
	RecoverPassword *RecoverPassword
}
