package loginflow

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/tenantgate/login-flow/pkg/identity"
)

// Response headers the identity provider uses to signal expected challenges.
const (
	PasswordResetTokenHeader = "Passwordresettoken"
	NoPhoneHeader            = "NoPhoneHeader"
)

// ChallengeKind names an expected challenge raised by a failed login
// attempt. Challenges are normal flow outcomes, not failures; each routes to
// a dedicated next view.
type ChallengeKind string

const (
	ChallengeNone          ChallengeKind = ""
	ChallengePasswordReset ChallengeKind = "password_reset"
	ChallengeSMS           ChallengeKind = "sms"
	ChallengeTOTP          ChallengeKind = "totp"
	ChallengeTOTPSetup     ChallengeKind = "totp_setup"
	ChallengeProvidePhone  ChallengeKind = "provide_phone"
)

// Challenge is the classified outcome of a failed login attempt.
type Challenge struct {
	Kind ChallengeKind
	// ResetToken carries the password reset token of a
	// ChallengePasswordReset.
	ResetToken string
	// PinAlreadySent is set on a ChallengeSMS whose verification code had
	// already been generated by an earlier attempt.
	PinAlreadySent bool
}

// TokenStatus is the verdict on a password reset token.
type TokenStatus string

const (
	TokenValid   TokenStatus = "valid"
	TokenInvalid TokenStatus = "invalid"
	TokenExpired TokenStatus = "expired"
)

var (
	pinGeneratedPattern   = regexp.MustCompile(`(?i)pin.*generated`)
	pinAlreadySentPattern = regexp.MustCompile(`(?i)pin has already been generated`)
	totpPattern           = regexp.MustCompile(`(?i)TOTP`)
	totpSetupPattern      = regexp.MustCompile(`(?i)TOTP setup required`)
	tfaExpiredPattern     = regexp.MustCompile(`(?i)invalid\scredentials.*pin.*generate`)
)

// Classify maps a login error onto the expected-challenge taxonomy.
// supportUser suppresses the provide-phone challenge: operators impersonating
// a user are not asked to register a phone number.
//
// ChallengeNone means the error really is a failure and should surface as
// one.
func Classify(err error, supportUser bool) Challenge {
	var apiErr *identity.APIError
	if !errors.As(err, &apiErr) {
		return Challenge{}
	}
	if apiErr.Headers != nil {
		if token := apiErr.Headers.Get(PasswordResetTokenHeader); token != "" {
			return Challenge{Kind: ChallengePasswordReset, ResetToken: token}
		}
	}
	if apiErr.Status == http.StatusUnauthorized && pinGeneratedPattern.MatchString(apiErr.Message) {
		return Challenge{
			Kind:           ChallengeSMS,
			PinAlreadySent: pinAlreadySentPattern.MatchString(apiErr.Message),
		}
	}
	if apiErr.Status == http.StatusUnauthorized && totpPattern.MatchString(apiErr.Message) {
		if totpSetupPattern.MatchString(apiErr.Message) {
			return Challenge{Kind: ChallengeTOTPSetup}
		}
		return Challenge{Kind: ChallengeTOTP}
	}
	if apiErr.Headers != nil && apiErr.Headers.Get(NoPhoneHeader) != "" && !supportUser {
		return Challenge{Kind: ChallengeProvidePhone}
	}
	return Challenge{}
}
