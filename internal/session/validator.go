// Package session checks that the caller's authenticated session is still
// usable, retrying transport failures with exponential backoff and giving up
// immediately on an authorization failure.
package session

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrTransient marks a failure worth retrying, such as an overloaded
	// auth endpoint.
	ErrTransient = errors.New("transient session check failure")
	// ErrTerminalAuth marks an invalid or expired credential.
	ErrTerminalAuth = errors.New("session is invalid or expired")
)

// User is the identity behind a session.
type User struct {
	ID    uint64 `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session is an authenticated session.  ExpiresAt is nil when the auth
// server does not report an expiry.
type Session struct {
	User      User       `json:"user"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Checker performs one authentication check.
type Checker interface {
	Check(ctx context.Context) (Session, error)
}

// FailureType names why validation failed.
type FailureType string

const (
	FailureNetwork FailureType = "network"
	FailureExpired FailureType = "expired"
	FailureUnknown FailureType = "unknown"
)

// FailureInfo describes a failed validation.
type FailureInfo struct {
	Type      FailureType `json:"type"`
	Retryable bool        `json:"retryable"`
}

// Result is the outcome of ValidateWithRetry.  Exactly one of Session and
// Error is set.
type Result struct {
	Valid   bool         `json:"valid"`
	User    *User        `json:"user,omitempty"`
	Session *Session     `json:"session,omitempty"`
	Error   *FailureInfo `json:"error,omitempty"`
}

// Classify maps a Checker error to a failure type.  Transport problems are
// retryable network failures, ErrTerminalAuth is a non-retryable expiry and
// anything else is unknown and not retried.
func Classify(err error) FailureInfo {
	if errors.Is(err, ErrTerminalAuth) {
		return FailureInfo{Type: FailureExpired}
	}
	// A cancelled caller stays cancelled, even when wrapped in a *url.Error.
	if errors.Is(err, context.Canceled) {
		return FailureInfo{Type: FailureUnknown}
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return FailureInfo{Type: FailureNetwork, Retryable: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureInfo{Type: FailureNetwork, Retryable: true}
	}
	return FailureInfo{Type: FailureUnknown}
}

// IsSessionExpired reports whether s has an expiry at or before now.  A
// session without an expiry never expires.
func IsSessionExpired(s Session, now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !s.ExpiresAt.After(now)
}

// Backoff returns the wait after the given failed attempt: 1s, 2s, 4s...
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

// Validator runs a Checker with bounded retries.  Sleep and Now default to
// the real clock.
type Validator struct {
	Checker Checker
	Sleep   func(time.Duration)
	Now     func() time.Time
}

// NewValidator returns a Validator using the wall clock.
func NewValidator(c Checker) *Validator {
	return &Validator{Checker: c, Sleep: time.Sleep, Now: time.Now}
}

// ValidateWithRetry checks the session up to maxAttempts times.  Attempts
// are sequential and the waits between them are not interruptible; ctx is
// only handed to the Checker, so callers wanting a deadline set it there.
func (v *Validator) ValidateWithRetry(ctx context.Context, maxAttempts int) Result {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep, now := v.Sleep, v.Now
	if sleep == nil {
		sleep = time.Sleep
	}
	if now == nil {
		now = time.Now
	}

	for attempt := 1; ; attempt++ {
		s, err := v.Checker.Check(ctx)
		if err == nil {
			if IsSessionExpired(s, now()) {
				return Result{Error: &FailureInfo{Type: FailureExpired}}
			}
			return Result{Valid: true, User: &s.User, Session: &s}
		}

		info := Classify(err)
		if !info.Retryable {
			return Result{Error: &info}
		}
		if attempt >= maxAttempts {
			return Result{Error: &FailureInfo{Type: FailureNetwork, Retryable: true}}
		}
		sleep(Backoff(attempt))
	}
}
