package loginflow

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tenantgate/login-flow/pkg/identity"
)

func apiError(status int, message string, headers http.Header) *identity.APIError {
	return &identity.APIError{Status: status, Message: message, Headers: headers}
}

func TestClassifyPasswordResetHeader(t *testing.T) {
	headers := http.Header{}
	headers.Set(PasswordResetTokenHeader, "XYZ")

	challenge := Classify(apiError(401, "password reset required", headers), false)
	assert.Equal(t, ChallengePasswordReset, challenge.Kind)
	assert.Equal(t, "XYZ", challenge.ResetToken)
}

func TestClassifySMSChallenge(t *testing.T) {
	challenge := Classify(apiError(401, "PIN generated and sent to the user", nil), false)
	assert.Equal(t, ChallengeSMS, challenge.Kind)
	assert.False(t, challenge.PinAlreadySent)
}

func TestClassifySMSChallengePinAlreadySent(t *testing.T) {
	challenge := Classify(apiError(401, "A pin has already been generated", nil), false)
	assert.Equal(t, ChallengeSMS, challenge.Kind)
	assert.True(t, challenge.PinAlreadySent)
}

func TestClassifyTOTPChallenge(t *testing.T) {
	challenge := Classify(apiError(401, "TOTP code required", nil), false)
	assert.Equal(t, ChallengeTOTP, challenge.Kind)
}

func TestClassifyTOTPSetup(t *testing.T) {
	challenge := Classify(apiError(401, "TOTP setup required", nil), false)
	assert.Equal(t, ChallengeTOTPSetup, challenge.Kind)
}

func TestClassifyProvidePhone(t *testing.T) {
	headers := http.Header{}
	headers.Set(NoPhoneHeader, "true")

	challenge := Classify(apiError(401, "phone number required", headers), false)
	assert.Equal(t, ChallengeProvidePhone, challenge.Kind)
}

func TestClassifyProvidePhoneSuppressedForSupportUser(t *testing.T) {
	headers := http.Header{}
	headers.Set(NoPhoneHeader, "true")

	challenge := Classify(apiError(401, "phone number required", headers), true)
	assert.Equal(t, ChallengeNone, challenge.Kind)
}

func TestClassifySMSRequiresUnauthorizedStatus(t *testing.T) {
	challenge := Classify(apiError(500, "PIN generated and sent to the user", nil), false)
	assert.Equal(t, ChallengeNone, challenge.Kind)
}

func TestClassifyUnrelatedErrors(t *testing.T) {
	assert.Equal(t, ChallengeNone, Classify(apiError(500, "boom", nil), false).Kind)
	assert.Equal(t, ChallengeNone, Classify(errors.New("network down"), false).Kind)
	assert.Equal(t, ChallengeNone, Classify(nil, false).Kind)
}

func TestResetHeaderWinsOverMessagePatterns(t *testing.T) {
	headers := http.Header{}
	headers.Set(PasswordResetTokenHeader, "tok")

	challenge := Classify(apiError(401, "PIN generated and sent to the user", headers), false)
	assert.Equal(t, ChallengePasswordReset, challenge.Kind)
}
