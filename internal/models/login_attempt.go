package models

import "time"

// Guard reason codes
const (
	ReasonIPBlocked          = "ip_blocked"
	ReasonAccountLocked      = "account_locked"
	ReasonCredentialStuffing = "credential_stuffing"
)

// Guard event types written to security_events
const (
	SecurityEventLoginFailure       = "login_failure"
	SecurityEventLoginSuccess       = "login_success"
	SecurityEventIPBlocked          = "ip_blocked"
	SecurityEventAccountLocked      = "account_locked"
	SecurityEventCredentialStuffing = "credential_stuffing"
	SecurityEventManualUnblock      = "manual_unblock"
)

// WindowState is a read-only snapshot of one login attempt window
type WindowState struct {
	Key             string     `json:"key"`
	Count           int        `json:"count"`
	WindowStartedAt time.Time  `json:"window_started_at"`
	Blocked         bool       `json:"blocked"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

// LoginCheck is the result of a pre-authentication check
type LoginCheck struct {
	Allowed           bool       `json:"allowed"`
	Reason            string     `json:"reason,omitempty"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
}

// Err converts a refused check into the typed blocked outcome, nil when allowed
func (c *LoginCheck) Err() error {
	if c.Allowed {
		return nil
	}
	until := time.Time{}
	if c.BlockedUntil != nil {
		until = *c.BlockedUntil
	}
	return &LoginBlockedError{Reason: c.Reason, BlockedUntil: until}
}

// FailureOutcome is the result of recording one failed authentication
type FailureOutcome struct {
	Blocked      bool       `json:"blocked"`
	Reason       string     `json:"reason,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// LoginGuardState aggregates the windows an operator sees for an ip/account pair
type LoginGuardState struct {
	IP             *WindowState `json:"ip,omitempty"`
	Account        *WindowState `json:"account,omitempty"`
	AccountsTried  []string     `json:"accounts_tried,omitempty"`
	StuffingSignal bool         `json:"stuffing_signal"`
}
