package credstore

import (
	"context"
	"log/slog"

	"github.com/tenantgate/login-flow/pkg/identity"
)

// TokenStore bundles the session and durable storages behind the operations
// the login flow performs. Reads prefer the session storage; writes go to the
// session storage always and additionally to the durable one when asked.
type TokenStore struct {
	Session Storage
	Durable Storage
}

func NewTokenStore(session, durable Storage) *TokenStore {
	return &TokenStore{Session: session, Durable: durable}
}

// StoredToken returns the stored basic-auth token, session storage first.
func (s *TokenStore) StoredToken(ctx context.Context) string {
	return s.firstOf(ctx, TokenKey)
}

// StoredTFAToken returns the stored two-factor token, session storage first.
func (s *TokenStore) StoredTFAToken(ctx context.Context) string {
	return s.firstOf(ctx, TFATokenKey)
}

// BearerSessionToken returns the bearer token of an SSO session, if any.
func (s *TokenStore) BearerSessionToken(ctx context.Context) string {
	value, err := s.Session.Get(ctx, BearerTokenKey)
	if err != nil {
		slog.Warn("failed reading bearer session token", "err", err)
		return ""
	}
	return value
}

// StoredCredentials decodes the stored token. A missing or malformed token
// yields no credentials.
func (s *TokenStore) StoredCredentials(ctx context.Context) (identity.Credentials, bool) {
	token := s.StoredToken(ctx)
	if token == "" {
		return identity.Credentials{}, false
	}
	creds, err := DecodeToken(token)
	if err != nil {
		slog.Warn("stored token is not decodable, treating as absent", "err", err)
		return identity.Credentials{}, false
	}
	return creds, true
}

// StoreToken persists the basic-auth token to the session storage, and to
// the durable storage as well when rememberMe is set. Last write wins.
func (s *TokenStore) StoreToken(ctx context.Context, token string, rememberMe bool) error {
	if err := s.Session.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	if rememberMe {
		return s.Durable.Set(ctx, TokenKey, token)
	}
	return nil
}

// StoreTFAToken persists the two-factor token analogously to StoreToken.
func (s *TokenStore) StoreTFAToken(ctx context.Context, tfaToken string, rememberMe bool) error {
	if err := s.Session.Set(ctx, TFATokenKey, tfaToken); err != nil {
		return err
	}
	if rememberMe {
		return s.Durable.Set(ctx, TFATokenKey, tfaToken)
	}
	return nil
}

// TakeRedirectPath consumes the stashed post-login redirect path: it is read
// once and deleted.
func (s *TokenStore) TakeRedirectPath(ctx context.Context) string {
	path, err := s.Session.Get(ctx, RedirectPathKey)
	if err != nil || path == "" {
		return ""
	}
	if err := s.Session.Delete(ctx, RedirectPathKey); err != nil {
		slog.Warn("failed deleting stashed redirect path", "err", err)
	}
	return path
}

// StashRedirectPath records the path to return to after login completes.
func (s *TokenStore) StashRedirectPath(ctx context.Context, path string) error {
	return s.Session.Set(ctx, RedirectPathKey, path)
}

// ClearTokens removes all locally cached basic-auth material from both
// storages. Called when the flow switches to cookie auth.
func (s *TokenStore) ClearTokens(ctx context.Context) {
	for _, key := range []string{TokenKey, TFATokenKey} {
		if err := s.Session.Delete(ctx, key); err != nil {
			slog.Warn("failed clearing session token", "key", key, "err", err)
		}
		if err := s.Durable.Delete(ctx, key); err != nil {
			slog.Warn("failed clearing durable token", "key", key, "err", err)
		}
	}
}

func (s *TokenStore) firstOf(ctx context.Context, key string) string {
	if value, err := s.Session.Get(ctx, key); err == nil && value != "" {
		return value
	} else if err != nil {
		slog.Warn("session storage read failed", "key", key, "err", err)
	}
	value, err := s.Durable.Get(ctx, key)
	if err != nil {
		slog.Warn("durable storage read failed", "key", key, "err", err)
		return ""
	}
	return value
}
