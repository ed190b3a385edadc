// Package params provides one-shot consumption of the query parameters a
// login flow recognizes. The parameter set is seeded from the initial URL at
// construction, mutated in memory, and flushed back to the visible URL only
// at defined checkpoints.
package params

import (
	"net/url"
	"sync"
)

// Recognized query parameter names. Each is read at most once per flow
// session and removed from the visible URL afterwards.
const (
	ParamToken            = "token"
	ParamEmail            = "email"
	ParamCode             = "code"
	ParamSessionState     = "session_state"
	ParamError            = "error"
	ParamErrorDescription = "error_description"
	ParamIdpHint          = "idp_hint"
	ParamTenant           = "tenant"
	ParamUser             = "user"
)

// Navigator applies a rewritten URL back to whatever owns the address bar.
type Navigator interface {
	Navigate(rawURL string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(rawURL string)

func (f NavigatorFunc) Navigate(rawURL string) { f(rawURL) }

// Store holds the working parameter set of one flow session.
//
// When the initial URL cannot be parsed the store degrades silently: every
// read misses and the flush is a no-op. No parameter is ever treated as
// present in that case.
type Store struct {
	mu      sync.Mutex
	ok      bool
	u       *url.URL
	values  url.Values
	nav     Navigator
	changed bool
}

// NewStore seeds a store from the initial URL of the flow session.
func NewStore(rawURL string, nav Navigator) *Store {
	s := &Store{nav: nav}
	u, err := url.Parse(rawURL)
	if err != nil || u == nil {
		return s
	}
	s.ok = true
	s.u = u
	s.values = u.Query()
	return s
}

// GetAndClear returns the named parameter and removes it from the working
// set, guaranteeing at-most-once consumption. The second return reports
// whether the parameter was present.
func (s *Store) GetAndClear(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return "", false
	}
	if !s.values.Has(name) {
		return "", false
	}
	value := s.values.Get(name)
	s.values.Del(name)
	s.changed = true
	if value == "" {
		return "", false
	}
	return value, true
}

// Peek returns the named parameter without consuming it. Used for values
// that are forwarded verbatim, such as idp_hint.
func (s *Store) Peek(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return ""
	}
	return s.values.Get(name)
}

// RemoveConsumedParams flushes the working set back to the URL, triggering a
// navigation when anything was removed since the last flush. It reports
// whether a removal occurred; calling it again without further reads is a
// no-op.
func (s *Store) RemoveConsumedParams() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok || !s.changed {
		return false
	}
	s.changed = false
	rewritten := *s.u
	rewritten.RawQuery = s.values.Encode()
	s.u = &rewritten
	if s.nav != nil {
		s.nav.Navigate(rewritten.String())
	}
	return true
}

// URL returns the current (possibly rewritten) URL of the session, or nil
// when the store degraded at construction.
func (s *Store) URL() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return nil
	}
	u := *s.u
	return &u
}
