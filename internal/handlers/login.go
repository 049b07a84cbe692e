package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// LoginGuard is the brute-force guard as seen by the login endpoints
type LoginGuard interface {
	CheckAllowed(ip, account string) *models.LoginCheck
	RecordFailure(ctx context.Context, ip, account, reason string) *models.FailureOutcome
	RecordSuccess(ctx context.Context, ip, account string)
	State(ip, account string) *models.LoginGuardState
	Unblock(ctx context.Context, ip, account string)
}

// LoginHandler exposes the guard to the authentication service
type LoginHandler struct {
	guard LoginGuard
	now   func() time.Time
}

// NewLoginHandler creates a new LoginHandler. now may be nil.
func NewLoginHandler(guard LoginGuard, now func() time.Time) *LoginHandler {
	if now == nil {
		now = time.Now
	}
	return &LoginHandler{guard: guard, now: now}
}

// LoginAttemptRequest identifies one authentication attempt. ip defaults to the
// client address of the request when omitted.
type LoginAttemptRequest struct {
	IP      string `json:"ip" validate:"required,ip"`
	Account string `json:"account" validate:"max=320"`
}

// LoginFailureRequest reports a failed authentication
type LoginFailureRequest struct {
	IP      string `json:"ip" validate:"required,ip"`
	Account string `json:"account" validate:"max=320"`
	Reason  string `json:"reason" validate:"max=64"`
}

// UnblockRequest releases an address, an account, or both
type UnblockRequest struct {
	IP      string `json:"ip" validate:"required_without=Account,omitempty,ip"`
	Account string `json:"account" validate:"required_without=IP,max=320"`
}

// CheckLogin answers whether an attempt may proceed: 200 allowed, 429 blocked
func (h *LoginHandler) CheckLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginAttemptRequest
	if !h.decode(w, r, &req, &req.IP) {
		return
	}

	check := h.guard.CheckAllowed(req.IP, req.Account)
	if err := check.Err(); err != nil {
		h.writeBlocked(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, check)
}

// RecordFailure counts a failed attempt: 200 when still allowed, 429 once blocked
func (h *LoginHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	var req LoginFailureRequest
	if !h.decode(w, r, &req, &req.IP) {
		return
	}

	outcome := h.guard.RecordFailure(r.Context(), req.IP, req.Account, req.Reason)
	if outcome.Blocked {
		until := time.Time{}
		if outcome.BlockedUntil != nil {
			until = *outcome.BlockedUntil
		}
		h.writeBlocked(w, &models.LoginBlockedError{Reason: outcome.Reason, BlockedUntil: until})
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, outcome)
}

// RecordSuccess resets the account window after a successful authentication
func (h *LoginHandler) RecordSuccess(w http.ResponseWriter, r *http.Request) {
	var req LoginAttemptRequest
	if !h.decode(w, r, &req, &req.IP) {
		return
	}

	h.guard.RecordSuccess(r.Context(), req.IP, req.Account)
	w.WriteHeader(http.StatusNoContent)
}

// GetState returns the guard windows for ?ip=&account=
func (h *LoginHandler) GetState(w http.ResponseWriter, r *http.Request) {
	req := LoginAttemptRequest{
		IP:      r.URL.Query().Get("ip"),
		Account: r.URL.Query().Get("account"),
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, h.guard.State(req.IP, req.Account))
}

// Unblock releases blocks for an operator
func (h *LoginHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	var req UnblockRequest
	if err := decodeJSON(r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.guard.Unblock(r.Context(), req.IP, req.Account)
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates the body, filling ip from the request context when absent
func (h *LoginHandler) decode(w http.ResponseWriter, r *http.Request, req interface{}, ip *string) bool {
	if err := decodeJSON(r, req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	if *ip == "" {
		*ip = middleware.GetRequestContext(r.Context()).IP
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

func (h *LoginHandler) writeBlocked(w http.ResponseWriter, err error) {
	var blocked *models.LoginBlockedError
	if !errors.As(err, &blocked) {
		pkghttp.WriteTooManyRequests(w, "login blocked")
		return
	}
	pkghttp.WriteBlocked(w, blocked.Reason, blocked.BlockedUntil, blocked.RetryAfter(h.now()))
}
