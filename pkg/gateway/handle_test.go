package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/idp"
	"github.com/tenantgate/login-flow/pkg/loginview"
)

type gatewayFixture struct {
	client  *http.Client
	gateURL string
	store   *idp.Store
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	store := idp.NewStore("cockpit")
	provider := idp.NewServer(idp.Config{
		TenantName: "t100",
		JWTSecret:  "test-secret",
		LoginOptions: []identity.LoginMode{
			{Type: identity.LoginModeBasic},
		},
	}, store, nil)
	providerServer := httptest.NewServer(provider.Routes())
	t.Cleanup(providerServer.Close)

	handler := NewHandler(Config{
		IDPBaseURL: providerServer.URL,
		PublicURL:  "https://t100.example.com/",
	}, credstore.NewMemoryStorage())
	gateServer := httptest.NewServer(handler.Routes())
	t.Cleanup(gateServer.Close)

	jar := newCookieClient(t)
	return &gatewayFixture{client: jar, gateURL: gateServer.URL, store: store}
}

func newCookieClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (f *gatewayFixture) post(t *testing.T, path string, body interface{}) stateResponse {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := f.client.Post(f.gateURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()

	var state stateResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&state))
	return state
}

func TestOpenSessionShowsCredentials(t *testing.T) {
	f := newGatewayFixture(t)

	state := f.post(t, "/session", openRequest{URL: "https://t100.example.com/"})
	assert.Equal(t, loginview.ViewCredentials, state.View)
	assert.Empty(t, state.Redirect)
}

func TestLoginThroughGateway(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.store.CreateAccount(idp.AccountParams{
		Tenant: "t100", Username: "alice", Email: "alice@example.com", Password: "alice-pwd",
	})
	require.NoError(t, err)

	f.post(t, "/session", openRequest{URL: "https://t100.example.com/"})
	state := f.post(t, "/session/login", map[string]interface{}{
		"user": "alice", "password": "alice-pwd",
	})

	assert.Contains(t, state.Redirect, "/apps/cockpit/")
	assert.Equal(t, "t100", state.Tenant)
}

func TestLoginChallengeThroughGateway(t *testing.T) {
	f := newGatewayFixture(t)
	_, err := f.store.CreateAccount(idp.AccountParams{
		Tenant: "t100", Username: "bob", Email: "bob@example.com",
		Phone: "+15550100", Password: "bob-pwd", TFAMode: idp.TFASMS,
	})
	require.NoError(t, err)

	f.post(t, "/session", openRequest{URL: "https://t100.example.com/"})
	state := f.post(t, "/session/login", map[string]interface{}{
		"user": "bob", "password": "bob-pwd",
	})

	assert.Equal(t, loginview.ViewSMSChallenge, state.View)
	assert.Empty(t, state.Redirect)
}

func TestIdleSessionExpires(t *testing.T) {
	store := idp.NewStore("cockpit")
	provider := idp.NewServer(idp.Config{
		TenantName:   "t100",
		JWTSecret:    "test-secret",
		LoginOptions: []identity.LoginMode{{Type: identity.LoginModeBasic}},
	}, store, nil)
	providerServer := httptest.NewServer(provider.Routes())
	t.Cleanup(providerServer.Close)

	handler := NewHandler(Config{
		IDPBaseURL:         providerServer.URL,
		PublicURL:          "https://t100.example.com/",
		SessionIdleTimeout: 10 * time.Millisecond,
	}, credstore.NewMemoryStorage())
	gateServer := httptest.NewServer(handler.Routes())
	t.Cleanup(gateServer.Close)

	client := newCookieClient(t)
	res, err := client.Post(gateServer.URL+"/session", "application/json",
		strings.NewReader(`{"url":"https://t100.example.com/"}`))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	time.Sleep(50 * time.Millisecond)

	res, err = client.Get(gateServer.URL + "/session")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestStepsRequireSession(t *testing.T) {
	f := newGatewayFixture(t)

	res, err := http.Get(f.gateURL + "/session")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
