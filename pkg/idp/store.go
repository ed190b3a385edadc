package idp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Two-factor modes an account can be configured with.
const (
	TFANone = ""
	TFASMS  = "sms"
	TFATOTP = "totp"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("user account is locked")
	ErrUnknownAccount     = errors.New("unknown account")
)

// Account is one login identity of a tenant.
type Account struct {
	Tenant        string
	Username      string
	Email         string
	Phone         string
	PasswordHash  []byte
	TFAMode       string
	TOTPSecret    string
	TOTPActivated bool
	// ResetRequired forces a password change on the next login attempt.
	ResetRequired bool
	Locked        bool
	Roles         []string
	FailedLogins  int
}

// AccountParams configures a new account.
type AccountParams struct {
	Tenant        string
	Username      string
	Email         string
	Phone         string
	Password      string
	TFAMode       string
	ResetRequired bool
	Roles         []string
}

type resetToken struct {
	email   string
	expires time.Time
}

type smsPin struct {
	pin     string
	created time.Time
}

// Store holds the mutable state of the simulated provider.
type Store struct {
	mu          sync.Mutex
	accounts    map[string]*Account // keyed tenant + "/" + username
	resetTokens map[string]resetToken
	smsPins     map[string]smsPin // keyed by account key
	apps        map[string]bool   // context paths that exist
	lockAfter   int
}

// NewStore builds an empty store. Applications named in defaultApps are
// resolvable through the manifest endpoint.
func NewStore(defaultApps ...string) *Store {
	apps := map[string]bool{}
	for _, app := range defaultApps {
		apps[app] = true
	}
	return &Store{
		accounts:    map[string]*Account{},
		resetTokens: map[string]resetToken{},
		smsPins:     map[string]smsPin{},
		apps:        apps,
		lockAfter:   5,
	}
}

// CreateAccount registers an account, hashing its password with bcrypt. A
// TOTP account gets a freshly generated secret.
func (s *Store) CreateAccount(p AccountParams) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := &Account{
		Tenant:        p.Tenant,
		Username:      p.Username,
		Email:         p.Email,
		Phone:         p.Phone,
		PasswordHash:  hash,
		TFAMode:       p.TFAMode,
		ResetRequired: p.ResetRequired,
		Roles:         p.Roles,
	}
	if p.TFAMode == TFATOTP {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "tenantgate",
			AccountName: p.Username,
		})
		if err != nil {
			return nil, fmt.Errorf("generate totp secret: %w", err)
		}
		acct.TOTPSecret = key.Secret()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[accountKey(p.Tenant, p.Username)] = acct
	return acct, nil
}

// Lookup returns the account of a tenant/username pair.
func (s *Store) Lookup(tenant, username string) (*Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountKey(tenant, username)]
	return acct, ok
}

// LookupByEmail finds an account by its mail address.
func (s *Store) LookupByEmail(email string) (*Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.Email == email {
			return acct, true
		}
	}
	return nil, false
}

// CheckPassword verifies a password, counting failures and locking the
// account after too many.
func (s *Store) CheckPassword(acct *Account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.Locked {
		return ErrAccountLocked
	}
	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(password)) != nil {
		acct.FailedLogins++
		if acct.FailedLogins >= s.lockAfter {
			acct.Locked = true
		}
		return ErrInvalidCredentials
	}
	acct.FailedLogins = 0
	return nil
}

// IssuePin generates (or re-uses) the SMS pin of an account. The boolean
// reports whether a pin had already been generated.
func (s *Store) IssuePin(acct *Account) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey(acct.Tenant, acct.Username)
	if existing, ok := s.smsPins[key]; ok && time.Since(existing.created) < 5*time.Minute {
		return existing.pin, true
	}
	pin := uuid.NewString()[:6]
	s.smsPins[key] = smsPin{pin: pin, created: time.Now()}
	return pin, false
}

// VerifyPin checks and consumes the SMS pin of an account.
func (s *Store) VerifyPin(acct *Account, pin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey(acct.Tenant, acct.Username)
	issued, ok := s.smsPins[key]
	if !ok || pin == "" || issued.pin != pin {
		return false
	}
	delete(s.smsPins, key)
	return true
}

// HasPendingPin reports whether an unconsumed pin exists for the account.
func (s *Store) HasPendingPin(acct *Account) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.smsPins[accountKey(acct.Tenant, acct.Username)]
	return ok
}

// VerifyTOTP validates a time-based code against the account secret.
func (s *Store) VerifyTOTP(acct *Account, code string) bool {
	return totp.Validate(code, acct.TOTPSecret)
}

// ActivateTOTP completes first-time TOTP setup.
func (s *Store) ActivateTOTP(acct *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.TOTPActivated = true
}

// SavePhone stores the SMS delivery number of an account.
func (s *Store) SavePhone(acct *Account, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct.Phone = phone
}

// IssueResetToken creates a password reset token for an email address.
func (s *Store) IssueResetToken(email string, ttl time.Duration) string {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTokens[token] = resetToken{email: email, expires: time.Now().Add(ttl)}
	return token
}

// CheckResetToken validates a reset token. expired distinguishes a known but
// stale token from an unknown one.
func (s *Store) CheckResetToken(token, email string) (valid, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issued, ok := s.resetTokens[token]
	if !ok || issued.email != email {
		return false, false
	}
	if time.Now().After(issued.expires) {
		return false, true
	}
	return true, false
}

// RedeemResetToken consumes a reset token and sets the new password.
func (s *Store) RedeemResetToken(token, email, newPassword string) error {
	s.mu.Lock()
	issued, ok := s.resetTokens[token]
	if !ok || issued.email != email {
		s.mu.Unlock()
		return ErrInvalidCredentials
	}
	delete(s.resetTokens, token)
	var acct *Account
	for _, a := range s.accounts {
		if a.Email == email {
			acct = a
			break
		}
	}
	s.mu.Unlock()
	if acct == nil {
		return ErrUnknownAccount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	acct.PasswordHash = hash
	acct.ResetRequired = false
	acct.Locked = false
	acct.FailedLogins = 0
	s.mu.Unlock()
	return nil
}

// HasApp reports whether an application context path exists.
func (s *Store) HasApp(contextPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[contextPath]
}

func accountKey(tenant, username string) string {
	return tenant + "/" + username
}
