package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/danhigham/tgupload/internal/domain"
)

// State is a step of one login attempt.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateCodeRequested
	StateAwaitingCode
	StateAwaitingSecondFactor
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateCodeRequested:
		return "code requested"
	case StateAwaitingCode:
		return "awaiting code"
	case StateAwaitingSecondFactor:
		return "awaiting second factor"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Challenge ties a requested login code to a phone and a time window.
type Challenge struct {
	ID       string
	Phone    string
	IssuedAt time.Time
}

// Reason classifies a failed attempt.
type Reason int

const (
	ReasonInvalidCode Reason = iota + 1
	ReasonCodeExpired
	ReasonSecondFactorRequired
	ReasonWrongSecondFactor
	ReasonRateLimited
	ReasonConnection
	ReasonCancelled
	// ReasonRejected covers any other error returned by the server.
	ReasonRejected
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidCode:
		return "invalid code"
	case ReasonCodeExpired:
		return "code expired"
	case ReasonSecondFactorRequired:
		return "second factor required"
	case ReasonWrongSecondFactor:
		return "wrong second factor"
	case ReasonRateLimited:
		return "rate limited"
	case ReasonConnection:
		return "connection error"
	case ReasonCancelled:
		return "cancelled"
	case ReasonRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is the terminal failure of a login attempt.
type Error struct {
	Reason Reason
	// RetryAfter is set for ReasonRateLimited.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonRateLimited:
		return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter)
	case ReasonInvalidCode:
		return "the login code is invalid, request a new one"
	case ReasonCodeExpired:
		return "the login code expired, request a new one"
	case ReasonSecondFactorRequired:
		return "two-step verification password was not provided in time"
	case ReasonWrongSecondFactor:
		return "wrong two-step verification password"
	case ReasonCancelled:
		return "login cancelled"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the reason of an *Error in err's chain, or 0.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return 0
}

// Event is emitted by a login attempt. The stream ends with exactly one of
// AlreadyAuthenticated, Succeeded or Failed.
type Event interface {
	isEvent()
}

type Connecting struct{}

type AlreadyAuthenticated struct {
	Identity domain.Identity
}

type CodeSent struct {
	Challenge Challenge
}

type SecondFactorRequired struct{}

// SecondFactorRejected is followed by another wait for a secret.
type SecondFactorRejected struct {
	Err *Error
}

type Succeeded struct {
	Identity domain.Identity
}

type Failed struct {
	Err *Error
}

func (Connecting) isEvent()           {}
func (AlreadyAuthenticated) isEvent() {}
func (CodeSent) isEvent()             {}
func (SecondFactorRequired) isEvent() {}
func (SecondFactorRejected) isEvent() {}
func (Succeeded) isEvent()            {}
func (Failed) isEvent()               {}
