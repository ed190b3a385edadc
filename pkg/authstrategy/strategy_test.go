package authstrategy

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
)

func TestBasicAuthApply(t *testing.T) {
	basic := NewBasicAuth()
	token := basic.UpdateCredentials(identity.Credentials{Tenant: "t1", User: "alice", Password: "pwd", TFA: "123456"})
	require.NotEmpty(t, token)

	req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	basic.Apply(req)
	assert.Equal(t, "Basic "+token, req.Header.Get("Authorization"))
	assert.Equal(t, "123456", req.Header.Get(TFATokenHeader))
}

func TestBasicAuthKeepsTokenWithoutPassword(t *testing.T) {
	basic := NewBasicAuth()
	original := basic.UpdateCredentials(identity.Credentials{Tenant: "t1", User: "support", Password: "pwd"})

	// Updating tenant and user only, as the post-login credential merge
	// does for a support user, must not invalidate the token.
	updated := basic.UpdateCredentials(identity.Credentials{Tenant: "t1", User: "support$alice"})
	assert.Equal(t, original, updated)
	assert.Equal(t, "support$alice", basic.Credentials().User)
}

func TestBasicAuthRecomputesTokenOnNewPassword(t *testing.T) {
	basic := NewBasicAuth()
	first := basic.UpdateCredentials(identity.Credentials{User: "alice", Password: "old"})
	second := basic.UpdateCredentials(identity.Credentials{User: "alice", Password: "new"})
	assert.NotEqual(t, first, second)
}

func TestBasicAuthLogoutDropsCredentials(t *testing.T) {
	basic := NewBasicAuth()
	basic.UpdateCredentials(identity.Credentials{User: "alice", Password: "pwd"})
	require.NoError(t, basic.Logout(context.Background(), true))

	req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	basic.Apply(req)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBearerAuthApply(t *testing.T) {
	bearer := NewBearerAuth("some-token")
	req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	bearer.Apply(req)
	assert.Equal(t, "Bearer some-token", req.Header.Get("Authorization"))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "t1/alice",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestSelectorPrefersUsableBearerToken(t *testing.T) {
	ctx := context.Background()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())
	require.NoError(t, tokens.Session.Set(ctx, credstore.BearerTokenKey, signedToken(t, time.Now().Add(time.Hour))))

	selector := &Selector{Tokens: tokens, Basic: NewBasicAuth(), Cookie: NewCookieAuth(nil)}
	_, ok := selector.Select(ctx).(*BearerAuth)
	assert.True(t, ok)
}

func TestSelectorSkipsExpiredBearerToken(t *testing.T) {
	ctx := context.Background()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())
	require.NoError(t, tokens.Session.Set(ctx, credstore.BearerTokenKey, signedToken(t, time.Now().Add(-time.Hour))))

	selector := &Selector{Tokens: tokens, Basic: NewBasicAuth(), Cookie: NewCookieAuth(nil)}
	_, ok := selector.Select(ctx).(*CookieAuth)
	assert.True(t, ok)
}

func TestSelectorUsesStoredBasicToken(t *testing.T) {
	ctx := context.Background()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())
	stored := credstore.EncodeToken(identity.Credentials{Tenant: "t1", User: "alice", Password: "pwd"})
	require.NoError(t, tokens.StoreToken(ctx, stored, false))
	require.NoError(t, tokens.StoreTFAToken(ctx, "tfa-token", false))

	basic := NewBasicAuth()
	selector := &Selector{Tokens: tokens, Basic: basic, Cookie: NewCookieAuth(nil)}

	strategy := selector.Select(ctx)
	assert.Same(t, basic, strategy)
	assert.Equal(t, stored, basic.Credentials().Token)
	assert.Equal(t, "tfa-token", basic.Credentials().TFA)
}

func TestSelectorDefaultsToCookie(t *testing.T) {
	ctx := context.Background()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), credstore.NewMemoryStorage())
	selector := &Selector{Tokens: tokens, Basic: NewBasicAuth(), Cookie: NewCookieAuth(nil)}
	_, ok := selector.Select(ctx).(*CookieAuth)
	assert.True(t, ok)
}
