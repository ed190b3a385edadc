package idp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *Store, p AccountParams) *Account {
	t.Helper()
	acct, err := store.CreateAccount(p)
	require.NoError(t, err)
	return acct
}

func TestCheckPassword(t *testing.T) {
	store := NewStore()
	acct := seedAccount(t, store, AccountParams{Tenant: "t1", Username: "alice", Password: "pwd"})

	assert.NoError(t, store.CheckPassword(acct, "pwd"))
	assert.ErrorIs(t, store.CheckPassword(acct, "wrong"), ErrInvalidCredentials)
}

func TestAccountLocksAfterRepeatedFailures(t *testing.T) {
	store := NewStore()
	acct := seedAccount(t, store, AccountParams{Tenant: "t1", Username: "alice", Password: "pwd"})

	for i := 0; i < 5; i++ {
		assert.Error(t, store.CheckPassword(acct, "wrong"))
	}
	assert.ErrorIs(t, store.CheckPassword(acct, "pwd"), ErrAccountLocked)
}

func TestIssuePinReusesPendingPin(t *testing.T) {
	store := NewStore()
	acct := seedAccount(t, store, AccountParams{Tenant: "t1", Username: "bob", Password: "pwd", TFAMode: TFASMS})

	first, alreadySent := store.IssuePin(acct)
	assert.False(t, alreadySent)

	second, alreadySent := store.IssuePin(acct)
	assert.True(t, alreadySent)
	assert.Equal(t, first, second)
}

func TestVerifyPinConsumes(t *testing.T) {
	store := NewStore()
	acct := seedAccount(t, store, AccountParams{Tenant: "t1", Username: "bob", Password: "pwd", TFAMode: TFASMS})

	pin, _ := store.IssuePin(acct)
	require.True(t, store.HasPendingPin(acct))
	assert.True(t, store.VerifyPin(acct, pin))
	assert.False(t, store.VerifyPin(acct, pin), "a pin is single use")
	assert.False(t, store.HasPendingPin(acct))
}

func TestResetTokenLifecycle(t *testing.T) {
	store := NewStore()
	seedAccount(t, store, AccountParams{Tenant: "t1", Username: "erin", Email: "erin@example.com", Password: "old"})

	token := store.IssueResetToken("erin@example.com", time.Hour)
	valid, expired := store.CheckResetToken(token, "erin@example.com")
	assert.True(t, valid)
	assert.False(t, expired)

	require.NoError(t, store.RedeemResetToken(token, "erin@example.com", "new"))

	acct, _ := store.Lookup("t1", "erin")
	assert.NoError(t, store.CheckPassword(acct, "new"))

	// The token is single use.
	valid, _ = store.CheckResetToken(token, "erin@example.com")
	assert.False(t, valid)
}

func TestExpiredResetToken(t *testing.T) {
	store := NewStore()
	token := store.IssueResetToken("erin@example.com", -time.Minute)

	valid, expired := store.CheckResetToken(token, "erin@example.com")
	assert.False(t, valid)
	assert.True(t, expired)
}

func TestTOTPAccountGetsSecret(t *testing.T) {
	store := NewStore()
	acct := seedAccount(t, store, AccountParams{Tenant: "t1", Username: "carol", Password: "pwd", TFAMode: TFATOTP})
	assert.NotEmpty(t, acct.TOTPSecret)
	assert.False(t, acct.TOTPActivated)
}
