// Package credstore persists the small set of named values a login flow
// needs across two storage durabilities, and encodes the opaque basic-auth
// token the rest of the platform reads after a redirect.
package credstore

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/tenantgate/login-flow/pkg/identity"
)

// Well-known storage keys. These are externally observable: the remainder of
// the platform reads them after the post-login redirect, so they must not
// change.
const (
	TokenKey        = "loginToken"
	TFATokenKey     = "loginTFAToken"
	BearerTokenKey  = "bearerSessionToken"
	RedirectPathKey = "loginRedirectAfterLoginPath"
)

// tokenPattern matches the decoded form `[tenant/]user:password`.
var tokenPattern = regexp.MustCompile(`^(?:([^/]*)/)?([^/:]+):(.+)$`)

// EncodeToken encodes credentials into the opaque stored-token string.
func EncodeToken(creds identity.Credentials) string {
	plain := creds.User + ":" + creds.Password
	if creds.Tenant != "" {
		plain = creds.Tenant + "/" + plain
	}
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// DecodeToken decodes a stored token back into a tenant/user/password
// triple. Malformed input of any kind fails cleanly with an error; callers
// must treat a decode failure as "no stored credentials".
func DecodeToken(token string) (identity.Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return identity.Credentials{}, fmt.Errorf("decode stored token: %w", err)
	}
	m := tokenPattern.FindStringSubmatch(string(raw))
	if m == nil {
		return identity.Credentials{}, fmt.Errorf("stored token has unexpected shape")
	}
	return identity.Credentials{
		Tenant:   m[1],
		User:     m[2],
		Password: m[3],
	}, nil
}
