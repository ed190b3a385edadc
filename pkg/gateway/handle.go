// Package gateway exposes the login flow over HTTP: it keeps one view state
// machine per browser session and translates JSON step submissions into
// machine events, answering each with the resulting view and pending alerts.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tenantgate/login-flow/pkg/credstore"
	"github.com/tenantgate/login-flow/pkg/identity"
	"github.com/tenantgate/login-flow/pkg/loginflow"
	"github.com/tenantgate/login-flow/pkg/loginview"
	"github.com/tenantgate/login-flow/pkg/notification"
	"github.com/tenantgate/login-flow/pkg/params"
)

const (
	sessionCookie             = "flow_session"
	defaultSessionIdleTimeout = 30 * time.Minute
)

// Config seeds the gateway.
type Config struct {
	// IDPBaseURL is the identity provider the flow authenticates against.
	IDPBaseURL string
	// PublicURL is the address sessions appear to be opened at; it decides
	// localhost conveniences and HTTPS enforcement.
	PublicURL string

	SkipSSORedirect  bool
	HideBrandLogo    bool
	DisableAnimation bool

	// SessionIdleTimeout evicts sessions no request touched for this long.
	// Zero means the 30 minute default.
	SessionIdleTimeout time.Duration
}

// session is the server-side state of one browser.
type session struct {
	machine *loginview.Machine
	flow    *loginflow.Service
	alerts  *notification.Service
	store   *params.Store
	tokens  *credstore.TokenStore

	mu       sync.Mutex
	redirect string
	lastSeen time.Time
}

func (s *session) setRedirect(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = target
}

func (s *session) takeRedirect() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.redirect
	s.redirect = ""
	return target
}

func (s *session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

func (s *session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Handler serves the flow API.
type Handler struct {
	cfg     Config
	durable credstore.Storage

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHandler builds a gateway. durable is the store shared across sessions
// for remember-me tokens; pass a credstore.MemoryStorage when no Redis is
// configured.
func NewHandler(cfg Config, durable credstore.Storage) *Handler {
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = defaultSessionIdleTimeout
	}
	return &Handler{
		cfg:      cfg,
		durable:  durable,
		sessions: map[string]*session{},
	}
}

// Routes assembles the JSON API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/session", h.handleOpen)
	r.Group(func(r chi.Router) {
		r.Use(h.withSession)
		r.Get("/session", h.handleState)
		r.Delete("/session", h.handleClose)
		r.Post("/session/login", h.handleLogin)
		r.Post("/session/sms", h.handleSMS)
		r.Post("/session/sms/resend", h.handleResendSMS)
		r.Post("/session/totp", h.handleTOTP)
		r.Post("/session/totp/setup", h.handleTOTPSetup)
		r.Post("/session/password/recover", h.handleRecover)
		r.Post("/session/password/change", h.handleChangePassword)
		r.Post("/session/phone", h.handlePhone)
		r.Post("/session/tenant", h.handleTenant)
		r.Post("/session/logout", h.handleLogout)
	})
	return r
}

type openRequest struct {
	// URL is the full address the login page was opened with, including
	// any token, SSO or error parameters.
	URL string `json:"url"`
}

type stateResponse struct {
	View     loginview.View       `json:"view"`
	Alerts   []notification.Alert `json:"alerts"`
	Redirect string               `json:"redirect,omitempty"`
	Branding loginview.Branding   `json:"branding"`
	Tenant   string               `json:"tenant,omitempty"`
	// ShowTenant tells the client to offer a tenant input field.
	ShowTenant bool `json:"showTenant"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"message": "malformed request body"})
		return
	}
	if body.URL == "" {
		body.URL = h.cfg.PublicURL
	}

	h.dropIdleSessions()
	sess := h.newSession(r.Context(), body.URL)
	sess.touch()
	id := uuid.NewString()
	h.mu.Lock()
	h.sessions[id] = sess
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})

	sess.machine.OnLoad(r.Context())
	h.renderState(w, r, sess)
}

func (h *Handler) newSession(ctx context.Context, rawURL string) *session {
	fetch := identity.NewFetchClient(h.cfg.IDPBaseURL)
	alerts := notification.NewService()
	tokens := credstore.NewTokenStore(credstore.NewMemoryStorage(), h.durable)

	sess := &session{alerts: alerts, tokens: tokens}
	redirector := loginflow.RedirectorFunc(sess.setRedirect)
	sess.store = params.NewStore(rawURL, params.NavigatorFunc(func(string) {}))

	clients := loginflow.Clients{
		Fetch:        fetch,
		Identity:     identity.NewHTTPIdentityClient(fetch),
		LoginOptions: identity.NewHTTPLoginOptionsClient(fetch),
		Applications: identity.NewHTTPManifestClient(fetch),
	}

	// Login options are resolved before the flow starts; a failure leaves
	// them unknown, which routes the user to tenant-id setup.
	var options []identity.LoginMode
	if listed, err := clients.LoginOptions.List(ctx); err == nil {
		options = listed
	}

	sess.flow = loginflow.NewService(loginflow.Config{
		RawURL:          rawURL,
		LoginOptions:    options,
		SkipSSORedirect: h.cfg.SkipSSORedirect,
	}, clients, tokens, alerts, redirector)

	sess.machine = loginview.NewMachine(loginview.Config{
		HideBrandLogo:    h.cfg.HideBrandLogo,
		DisableAnimation: h.cfg.DisableAnimation,
	}, sess.flow, sess.store, alerts)
	return sess
}

func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"message": "no flow session"})
			return
		}
		h.mu.Lock()
		sess, ok := h.sessions[cookie.Value]
		h.mu.Unlock()
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"message": "unknown flow session"})
			return
		}
		if time.Since(sess.idleSince()) > h.cfg.SessionIdleTimeout {
			h.mu.Lock()
			delete(h.sessions, cookie.Value)
			h.mu.Unlock()
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"message": "expired flow session"})
			return
		}
		sess.touch()
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// dropIdleSessions evicts sessions nothing touched within the idle timeout,
// keeping abandoned browsers from growing the session map forever.
func (h *Handler) dropIdleSessions() {
	cutoff := time.Now().Add(-h.cfg.SessionIdleTimeout)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sess := range h.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(h.sessions, id)
		}
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	h.renderState(w, r, sessionFrom(r.Context()))
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.machine.Destroy()
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		h.mu.Lock()
		delete(h.sessions, cookie.Value)
		h.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", MaxAge: -1, Path: "/"})
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var body struct {
		Tenant     string `json:"tenant"`
		User       string `json:"user"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"message": "malformed request body"})
		return
	}
	sess.machine.SubmitCredentials(r.Context(), body.Tenant, body.User, body.Password, body.RememberMe)
	h.renderState(w, r, sess)
}

func (h *Handler) handleSMS(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.machine.VerifySMSCode(r.Context(), decodeCode(r))
	h.renderState(w, r, sess)
}

func (h *Handler) handleResendSMS(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.machine.ResendSMS(r.Context())
	h.renderState(w, r, sess)
}

func (h *Handler) handleTOTP(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.machine.SubmitTOTPCode(r.Context(), decodeCode(r))
	h.renderState(w, r, sess)
}

func (h *Handler) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.machine.SubmitTOTPSetup(r.Context(), decodeCode(r))
	h.renderState(w, r, sess)
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var body struct {
		Email string `json:"email"`
	}
	render.DecodeJSON(r.Body, &body)
	sess.machine.RequestPasswordReset(r.Context(), body.Email)
	h.renderState(w, r, sess)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var body struct {
		Email       string `json:"email"`
		NewPassword string `json:"newPassword"`
	}
	render.DecodeJSON(r.Body, &body)
	sess.machine.SubmitNewPassword(r.Context(), body.Email, body.NewPassword)
	h.renderState(w, r, sess)
}

func (h *Handler) handlePhone(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var body struct {
		Phone string `json:"phone"`
	}
	render.DecodeJSON(r.Body, &body)
	sess.machine.SubmitPhoneNumber(r.Context(), body.Phone)
	h.renderState(w, r, sess)
}

func (h *Handler) handleTenant(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	var body struct {
		Tenant string `json:"tenant"`
	}
	render.DecodeJSON(r.Body, &body)
	sess.machine.SetupTenant(r.Context(), body.Tenant)
	h.renderState(w, r, sess)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	sess.flow.Logout(r.Context(), true)
	h.renderState(w, r, sess)
}

func (h *Handler) renderState(w http.ResponseWriter, r *http.Request, sess *session) {
	render.JSON(w, r, stateResponse{
		View:       sess.machine.CurrentView(),
		Alerts:     sess.alerts.Alerts(),
		Redirect:   sess.takeRedirect(),
		Branding:   sess.machine.Branding(),
		Tenant:     sess.flow.GetTenant(),
		ShowTenant: sess.flow.ShowTenant(),
	})
}

func decodeCode(r *http.Request) string {
	var body struct {
		Code string `json:"code"`
	}
	render.DecodeJSON(r.Body, &body)
	return body.Code
}

type sessionKey struct{}

func withSession(ctx context.Context, sess *session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFrom(ctx context.Context) *session {
	sess, _ := ctx.Value(sessionKey{}).(*session)
	return sess
}
