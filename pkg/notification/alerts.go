// Package notification carries user-facing alerts of the login flow and the
// mail delivery used for password reset messages.
package notification

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tenantgate/login-flow/pkg/identity"
)

// Level classifies an alert.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Alert is one user-facing message. Alerts are fire-and-forget from the
// flow's perspective; the presentation layer drains them.
type Alert struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Service collects the alerts of one flow session.
type Service struct {
	mu     sync.Mutex
	alerts []Alert
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Success(text string) { s.add(LevelSuccess, text) }
func (s *Service) Warning(text string) { s.add(LevelWarning, text) }
func (s *Service) Danger(text string)  { s.add(LevelDanger, text) }

// AddServerFailure surfaces an unclassified server failure. The most
// specific message of the identity provider error is used when available.
func (s *Service) AddServerFailure(err error) {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		s.add(LevelDanger, apiErr.UserMessage())
		return
	}
	s.add(LevelDanger, "Server error occurred.")
}

// RemoveLastDanger drops the most recent danger alert, if any. Challenge
// routing uses it to withdraw the stale failure message of an earlier
// attempt before presenting the challenge view.
func (s *Service) RemoveLastDanger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].Level == LevelDanger {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return
		}
	}
}

// ClearAll drops every pending alert.
func (s *Service) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
}

// Alerts returns a snapshot of the pending alerts.
func (s *Service) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

func (s *Service) add(level Level, text string) {
	slog.Debug("alert", "level", level, "text", text)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, Alert{Level: level, Text: text})
}
