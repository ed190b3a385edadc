package authstrategy

import (
	"context"
	"log/slog"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
)

// Selector picks the auth strategy for a login attempt from the stored
// tokens. It is a priority cascade, not a user choice: later sources are
// consulted only when earlier ones are absent.
type Selector struct {
	Tokens *credstore.TokenStore
	Basic  *BasicAuth
	Cookie *CookieAuth
}

// Select resolves the strategy: a usable bearer session token wins, then a
// stored basic-auth token (with its two-factor token), then cookie auth.
func (s *Selector) Select(ctx context.Context) Strategy {
	if bearer := s.Tokens.BearerSessionToken(ctx); bearer != "" && tokenUsable(bearer) {
		slog.Debug("using bearer auth from session storage")
		return NewBearerAuth(bearer)
	}
	if token := s.Tokens.StoredToken(ctx); token != "" {
		s.Basic.UpdateCredentials(identity.Credentials{
			Token: token,
			TFA:   s.Tokens.StoredTFAToken(ctx),
		})
		return s.Basic
	}
	return s.Cookie
}
