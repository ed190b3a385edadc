package loginflow

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tenantgate/login-flow/pkg/identity"
)

// expiryAlertDelay postpones the expiry notification until the redirect back
// to the login entry point has settled, so the alert is not wiped by the
// view reset.
const expiryAlertDelay = 500 * time.Millisecond

// WatchSessionExpiry arms the automatic logout: every 401 of an
// authenticated session whose body reports an expired two-factor token
// triggers a full logout. Concurrent 401s collapse into a single logout.
func (s *Service) WatchSessionExpiry() {
	s.clients.Fetch.HookResponse(func(res *http.Response) {
		if res.StatusCode != http.StatusUnauthorized {
			return
		}
		if s.CurrentUser() == nil {
			return
		}
		raw, err := identity.CloneBody(res)
		if err != nil {
			slog.Warn("could not inspect 401 response body", "err", err)
			return
		}
		if !tfaExpiredPattern.MatchString(unmarshalMessage(raw)) {
			return
		}
		go s.forceLogout()
	})
}

// forceLogout serializes expiry logouts: while one runs, later triggers are
// dropped instead of queued.
func (s *Service) forceLogout() {
	s.logoutMu.Lock()
	if s.loggingOut {
		s.logoutMu.Unlock()
		return
	}
	s.loggingOut = true
	s.logoutMu.Unlock()

	defer func() {
		s.logoutMu.Lock()
		s.loggingOut = false
		s.logoutMu.Unlock()
	}()

	s.Logout(context.Background(), true)
	time.AfterFunc(expiryAlertDelay, func() {
		s.alerts.Danger(errorMessages["tfa_expired"])
	})
}
