package loginflow

// User-facing messages of the login flow. Kept in one place so the
// presentation layer can translate them by text.
var errorMessages = map[string]string{
	"remote_error":   "Server error occurred.",
	"tfa_expired":    "Two-factor authentication token expired.",
	"tfa_invalid":    "The code you entered is invalid. Please try again.",
	"https_only":     "Current login mode only supports HTTPS.",
	"account_locked": "Authentication failed due to: user account is locked.",
	"pin_already_sent": "The verification code was already sent. " +
		"For a new verification code, please click on the link above.",
	"phone_number_required": "Two-factor authentication has been turned on for this account. " +
		"Provide your phone number above to save it in your user profile and start receiving " +
		"verification codes via SMS.",
	"sso_failed": "SSO login failed. Contact the administrator.",
}

var successMessages = map[string]string{
	"password_changed":         "Password changed. You can now log in using new password.",
	"password_reset_requested": "Password reset request has been sent. Please check your email.",
	"resend_sms":               "Verification code SMS resent.",
	"send_sms":                 "Verification code SMS sent.",
}

// ErrorMessage returns the canonical user-facing text for a message key.
func ErrorMessage(key string) string {
	return errorMessages[key]
}

// AddSuccessMessage surfaces the named success message, if known.
func (s *Service) AddSuccessMessage(key string) {
	if msg, ok := successMessages[key]; ok {
		s.alerts.Success(msg)
	}
}
