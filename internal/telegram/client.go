package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danhigham/tgupload/internal/domain"
)

// Dialer opens connections to the remote account.
type Dialer interface {
	Dial(ctx context.Context, creds domain.Credentials) (Conn, error)
}

// Conn is one open connection. Close must be called on every path.
type Conn interface {
	// Self returns the authorized account or ErrNotAuthenticated.
	Self(ctx context.Context) (domain.Identity, error)
	// RequestLoginCode sends a login code to phone and returns the challenge id.
	RequestLoginCode(ctx context.Context, phone string) (string, error)
	SubmitLoginCode(ctx context.Context, phone, challengeID, code string) (domain.Identity, error)
	SubmitSecondFactor(ctx context.Context, secret string) (domain.Identity, error)
	// Dialogs calls fn for up to limit dialogs (0 means all), most recent
	// first. Iteration stops at the first error returned by fn; returning
	// ErrStopDialogs ends it early with a nil result.
	Dialogs(ctx context.Context, limit int, fn func(domain.RawDialog) error) error
	// SetTransportConcurrency sets the number of parallel part uploads per file.
	SetTransportConcurrency(n int)
	SendMedia(ctx context.Context, req SendRequest) (int, error)
	Close() error
}

// SendRequest describes one outbound media message.
type SendRequest struct {
	ConversationID int64
	Path           string
	FileName       string
	Caption        string
	Metadata       domain.Metadata
	// OnProgress is called with bytes sent so far. A non-nil error aborts
	// the transfer and is returned from SendMedia.
	OnProgress func(sent, total int64) error
}

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrSecondFactorRequired = errors.New("second factor required")
	ErrInvalidCode          = errors.New("invalid login code")
	ErrCodeExpired          = errors.New("login code expired")
	ErrWrongSecondFactor    = errors.New("wrong second factor secret")
	ErrUnknownPeer          = errors.New("unknown recipient")
	ErrSessionBusy          = errors.New("session file is busy")

	// ErrStopDialogs is returned by a Dialogs callback that has seen enough.
	ErrStopDialogs = errors.New("stop listing dialogs")
)

// RateLimitError means the server asked to wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ConnectionError wraps transport failures.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
