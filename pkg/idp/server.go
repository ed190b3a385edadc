package idp

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/notification"
)

const (
	sessionCookie  = "authorization"
	tfaTokenHeader = "TFAToken"
	sessionTTL     = 2 * time.Hour
	resetTokenTTL  = 24 * time.Hour
)

// Config seeds a simulated provider.
type Config struct {
	TenantName   string
	TenantDomain string
	LoginOptions []identity.LoginMode
	JWTSecret    string
	// DefaultApp is the context path the root redirect resolves to.
	DefaultApp string
	// ExternalAuthURL is returned for UI-controlled SSO initiations.
	ExternalAuthURL string
}

// Server is the in-memory identity provider.
type Server struct {
	cfg      Config
	store    *Store
	auth     *jwtauth.JWTAuth
	notifier notification.Notifier

	ssoCodes map[string]*Account
}

// NewServer wires a provider around a store. notifier may be nil; reset
// mails are then only logged.
func NewServer(cfg Config, store *Store, notifier notification.Notifier) *Server {
	if cfg.DefaultApp == "" {
		cfg.DefaultApp = "cockpit"
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		auth:     jwtauth.New("HS256", []byte(cfg.JWTSecret), nil),
		notifier: notifier,
		ssoCodes: map[string]*Account{},
	}
}

// IssueSSOCode registers a one-time SSO authorization code for an account.
func (s *Server) IssueSSOCode(acct *Account) string {
	code := uuid.NewString()
	s.ssoCodes[code] = acct
	return code
}

// Routes assembles the provider's HTTP surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/apps/{app}/*", s.handleApp)
	r.Get("/apps/{app}", s.handleApp)

	r.Route("/tenant", func(r chi.Router) {
		r.Get("/currentTenant", s.handleCurrentTenant)
		r.Get("/loginOptions", s.handleLoginOptions)
		r.Post("/oauth", s.handlePasswordGrant)
		r.Get("/oauth", s.handleOauthGet)
	})

	r.Route("/user", func(r chi.Router) {
		r.Get("/currentUser", s.handleCurrentUser)
		r.Post("/pin", s.handleVerifyPin)
		r.Post("/passwordReset", s.handleRequestReset)
		r.Put("/passwordReset", s.handleRedeemReset)
		r.Post("/passwordResetToken", s.handleValidateResetToken)
		r.Post("/totp/activate", s.handleActivateTOTP)
		r.Put("/phone", s.handleSavePhone)
		r.Post("/logout", s.handleLogout)
	})

	r.Get("/application/manifest/{contextPath}", s.handleManifest)
	return r
}

// challenge is a non-2xx login outcome carrying the headers and message the
// flow classifies challenges by.
type challenge struct {
	status  int
	message string
	header  http.Header
}

func (c *challenge) Error() string { return c.message }

func unauthorized(message string) *challenge {
	return &challenge{status: http.StatusUnauthorized, message: message}
}

// authenticate resolves the account of a request, raising the configured
// challenges when two-factor or password-reset requirements are unmet.
// tfaCode is an out-of-band code (password-grant form field); the TFAToken
// header is consulted as well.
func (s *Server) authenticate(r *http.Request, tfaCode string) (*Account, *challenge) {
	if acct := s.sessionAccount(r); acct != nil {
		return acct, nil
	}

	authz := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authz, "Bearer "):
		acct := s.tokenAccount(strings.TrimPrefix(authz, "Bearer "))
		if acct == nil {
			return nil, unauthorized("invalid token")
		}
		return acct, nil

	case strings.HasPrefix(authz, "Basic "):
		return s.basicAccount(r, strings.TrimPrefix(authz, "Basic "), tfaCode)
	}
	return nil, unauthorized("authentication required")
}

func (s *Server) basicAccount(r *http.Request, encoded, tfaCode string) (*Account, *challenge) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, unauthorized("malformed credentials")
	}
	tenant, username, password := splitBasic(string(raw))
	if tenant == "" {
		tenant = s.cfg.TenantName
	}
	acct, ok := s.store.Lookup(tenant, username)
	if !ok {
		return nil, unauthorized("invalid credentials")
	}

	// A session-token continuation carries no password; the earlier
	// password check is vouched for by a valid two-factor token.
	if password != "" {
		if err := s.store.CheckPassword(acct, password); err != nil {
			return nil, unauthorized("authentication failed due to: " + err.Error())
		}
	}

	if acct.ResetRequired {
		token := s.store.IssueResetToken(acct.Email, resetTokenTTL)
		ch := unauthorized("password reset required")
		ch.header = http.Header{}
		ch.header.Set("Passwordresettoken", token)
		return nil, ch
	}

	if tfaCode == "" {
		tfaCode = r.Header.Get(tfaTokenHeader)
	}
	return s.checkTwoFactor(acct, tfaCode)
}

// checkTwoFactor enforces the account's two-factor mode. tfa may be a signed
// two-factor token from an earlier pin verification or a raw code.
func (s *Server) checkTwoFactor(acct *Account, tfa string) (*Account, *challenge) {
	switch acct.TFAMode {
	case TFANone:
		return acct, nil

	case TFASMS:
		if s.verifyTFAToken(acct, tfa) || (tfa != "" && s.store.VerifyPin(acct, tfa)) {
			return acct, nil
		}
		if acct.Phone == "" {
			ch := unauthorized("phone number required for SMS verification")
			ch.header = http.Header{}
			ch.header.Set("NoPhoneHeader", "true")
			return nil, ch
		}
		pin, alreadySent := s.store.IssuePin(acct)
		if alreadySent {
			return nil, unauthorized("A pin has already been generated")
		}
		slog.Info("sms pin issued", "user", acct.Username, "pin", pin)
		return nil, unauthorized("PIN generated and sent to the user")

	case TFATOTP:
		if !acct.TOTPActivated {
			return nil, unauthorized("TOTP setup required")
		}
		if s.verifyTFAToken(acct, tfa) || (tfa != "" && s.store.VerifyTOTP(acct, tfa)) {
			return acct, nil
		}
		return nil, unauthorized("TOTP code required")
	}
	return acct, nil
}

func (s *Server) handleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	if _, ch := s.authenticate(r, ""); ch != nil {
		s.renderChallenge(w, r, ch)
		return
	}
	render.JSON(w, r, identity.Tenant{
		Name:       s.cfg.TenantName,
		DomainName: s.cfg.TenantDomain,
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	acct, ch := s.authenticate(r, "")
	if ch != nil {
		s.renderChallenge(w, r, ch)
		return
	}
	user := identity.User{
		ID:          acct.Tenant + "/" + acct.Username,
		UserName:    acct.Username,
		Email:       acct.Email,
		PhoneNumber: acct.Phone,
	}
	if r.URL.Query().Get("withEffectiveRoles") == "true" {
		user.EffectiveRoles = acct.Roles
	}
	render.JSON(w, r, user)
}

func (s *Server) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{"loginOptions": s.cfg.LoginOptions})
}

func (s *Server) handlePasswordGrant(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "PASSWORD" {
		s.renderError(w, r, http.StatusBadRequest, "unsupported grant_type "+grant)
		return
	}

	tenant, username, _ := splitBasic(r.PostForm.Get("username") + ":")
	if tenant == "" {
		tenant = r.URL.Query().Get("tenant_id")
	}
	if tenant == "" {
		tenant = s.cfg.TenantName
	}
	acct, ok := s.store.Lookup(tenant, username)
	if !ok {
		s.renderError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := s.store.CheckPassword(acct, r.PostForm.Get("password")); err != nil {
		s.renderError(w, r, http.StatusUnauthorized, "authentication failed due to: "+err.Error())
		return
	}
	if _, ch := s.checkTwoFactor(acct, r.PostForm.Get("tfa_code")); ch != nil {
		s.renderChallenge(w, r, ch)
		return
	}

	s.setSessionCookie(w, acct)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleOauthGet(w http.ResponseWriter, r *http.Request) {
	if code := r.URL.Query().Get("code"); code != "" {
		acct, ok := s.ssoCodes[code]
		if !ok {
			s.renderError(w, r, http.StatusUnauthorized, "invalid authorization code")
			return
		}
		delete(s.ssoCodes, code)
		s.setSessionCookie(w, acct)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>logged in</body></html>"))
		return
	}
	// UI-controlled SSO initiation: hand the client the URL to open.
	render.JSON(w, r, map[string]string{"redirectTo": s.cfg.ExternalAuthURL})
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	acct := s.pendingAccount(r)
	if acct == nil {
		s.renderError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var body struct {
		Pin string `json:"pin"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil || body.Pin == "" || body.Pin == "0" {
		// Submitting no pin, or the "0" placeholder, is the resend path.
		pin, _ := s.store.IssuePin(acct)
		slog.Info("sms pin re-issued", "user", acct.Username, "pin", pin)
		s.renderError(w, r, http.StatusForbidden, "pin code not yet provided")
		return
	}
	if !s.store.VerifyPin(acct, body.Pin) {
		s.renderError(w, r, http.StatusUnauthorized, "invalid pin code")
		return
	}
	w.Header().Set(tfaTokenHeader, s.issueTFAToken(acct))
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email  string `json:"email"`
		Tenant string `json:"tenant"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	// Same answer whether or not the account exists.
	if _, ok := s.store.LookupByEmail(body.Email); ok {
		token := s.store.IssueResetToken(body.Email, resetTokenTTL)
		s.deliverResetMail(body.Email, body.Tenant, token)
	}
	render.JSON(w, r, map[string]string{"status": "accepted"})
}

func (s *Server) handleRedeemReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		Email       string `json:"email"`
		NewPassword string `json:"newPassword"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if valid, expired := s.store.CheckResetToken(body.Token, body.Email); !valid {
		if expired {
			s.renderError(w, r, http.StatusUnprocessableEntity, "password reset token expired")
			return
		}
		s.renderError(w, r, http.StatusForbidden, "invalid password reset token")
		return
	}
	if err := s.store.RedeemResetToken(body.Token, body.Email, body.NewPassword); err != nil {
		s.renderError(w, r, http.StatusForbidden, err.Error())
		return
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	valid, expired := s.store.CheckResetToken(body.Token, body.Email)
	switch {
	case valid:
		render.JSON(w, r, map[string]string{"status": "ok"})
	case expired:
		s.renderError(w, r, http.StatusUnprocessableEntity, "password reset token expired")
	default:
		s.renderError(w, r, http.StatusForbidden, "invalid password reset token")
	}
}

func (s *Server) handleActivateTOTP(w http.ResponseWriter, r *http.Request) {
	acct := s.pendingAccount(r)
	if acct == nil {
		s.renderError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	s.store.ActivateTOTP(acct)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleSavePhone(w http.ResponseWriter, r *http.Request) {
	acct := s.pendingAccount(r)
	if acct == nil {
		s.renderError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var body struct {
		Phone string `json:"phone"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil || body.Phone == "" {
		s.renderError(w, r, http.StatusBadRequest, "phone number required")
		return
	}
	s.store.SavePhone(acct, body.Phone)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", MaxAge: -1, Path: "/"})
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	contextPath := chi.URLParam(r, "contextPath")
	if !s.store.HasApp(contextPath) {
		s.renderError(w, r, http.StatusNotFound, "application not found")
		return
	}
	render.JSON(w, r, identity.Manifest{ContextPath: contextPath})
}

// handleRoot resolves the default landing application the way the platform
// does: a redirect the client follows to its final URL.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/apps/"+s.cfg.DefaultApp+"/", http.StatusFound)
}

func (s *Server) handleApp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("<html><body>" + chi.URLParam(r, "app") + "</body></html>"))
}

// pendingAccount identifies the account of a mid-login request (pin
// verification, TOTP activation, phone registration) from its basic
// credentials, skipping the two-factor gate that is still being satisfied.
func (s *Server) pendingAccount(r *http.Request) *Account {
	if acct := s.sessionAccount(r); acct != nil {
		return acct
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Basic ") {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authz, "Basic "))
	if err != nil {
		return nil
	}
	tenant, username, password := splitBasic(string(raw))
	if tenant == "" {
		tenant = s.cfg.TenantName
	}
	acct, ok := s.store.Lookup(tenant, username)
	if !ok {
		return nil
	}
	if password != "" && s.store.CheckPassword(acct, password) != nil {
		return nil
	}
	return acct
}

func (s *Server) sessionAccount(r *http.Request) *Account {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	return s.tokenAccount(cookie.Value)
}

func (s *Server) tokenAccount(raw string) *Account {
	token, err := jwtauth.VerifyToken(s.auth, raw)
	if err != nil {
		return nil
	}
	tenant, username, _ := splitBasic(token.Subject() + ":")
	acct, ok := s.store.Lookup(tenant, username)
	if !ok {
		return nil
	}
	return acct
}

func (s *Server) setSessionCookie(w http.ResponseWriter, acct *Account) {
	_, token, err := s.auth.Encode(map[string]interface{}{
		"sub": acct.Tenant + "/" + acct.Username,
		"exp": time.Now().Add(sessionTTL).Unix(),
	})
	if err != nil {
		slog.Error("could not encode session token", "err", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}

// issueTFAToken signs the token a completed pin verification hands back; its
// presence on later requests satisfies the SMS gate.
func (s *Server) issueTFAToken(acct *Account) string {
	_, token, err := s.auth.Encode(map[string]interface{}{
		"sub": acct.Tenant + "/" + acct.Username,
		"tfa": true,
		"exp": time.Now().Add(sessionTTL).Unix(),
	})
	if err != nil {
		slog.Error("could not encode two-factor token", "err", err)
		return ""
	}
	return token
}

func (s *Server) verifyTFAToken(acct *Account, raw string) bool {
	if raw == "" {
		return false
	}
	token, err := jwtauth.VerifyToken(s.auth, raw)
	if err != nil {
		return false
	}
	if token.Subject() != acct.Tenant+"/"+acct.Username {
		return false
	}
	claim, ok := token.Get("tfa")
	tfa, _ := claim.(bool)
	return ok && tfa
}

func (s *Server) deliverResetMail(email, tenant, token string) {
	if s.notifier == nil {
		slog.Info("password reset token issued", "email", email, "token", token)
		return
	}
	err := s.notifier.Send(notification.PasswordResetNotification, notification.NotificationData{
		To:      email,
		Subject: "Password reset",
		Data: map[string]string{
			"tenant": tenant,
			"link":   "/?token=" + token + "&email=" + email,
		},
	})
	if err != nil {
		slog.Warn("could not deliver reset mail", "email", email, "err", err)
	}
}

func (s *Server) renderChallenge(w http.ResponseWriter, r *http.Request, ch *challenge) {
	for name, values := range ch.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	s.renderError(w, r, ch.status, ch.message)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"message": message})
}

// splitBasic decomposes "[tenant/]user:password".
func splitBasic(raw string) (tenant, user, password string) {
	user, password, _ = strings.Cut(raw, ":")
	if t, u, ok := strings.Cut(user, "/"); ok {
		tenant, user = t, u
	}
	return tenant, user, password
}
