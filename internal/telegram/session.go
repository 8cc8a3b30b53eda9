package telegram

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// SessionFile is the persisted login session shared by all connections.
type SessionFile struct {
	Path     string
	Attempts int
	Interval time.Duration
	Logger   *zap.Logger

	remove func(string) error
}

// NewSessionFile returns a SessionFile that retries deletion 5 times, 1s apart.
func NewSessionFile(path string, logger *zap.Logger) *SessionFile {
	return &SessionFile{
		Path:     path,
		Attempts: 5,
		Interval: time.Second,
		Logger:   logger,
	}
}

// Reset deletes the session so the next login starts from scratch. The file
// may still be held by a connection that is tearing down, so deletion is
// retried before giving up with ErrSessionBusy. A missing file is not an error.
func (s *SessionFile) Reset(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	remove := s.remove
	if remove == nil {
		remove = os.Remove
	}
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	op := func() error {
		attempt++
		err := remove(s.Path)
		switch {
		case err == nil:
			logger.Info("session file removed", zap.String("path", s.Path), zap.Int("attempt", attempt))
			return nil
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("session file not found", zap.String("path", s.Path))
			return nil
		default:
			logger.Warn("session file busy",
				zap.String("path", s.Path),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(err),
			)
			return err
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Interval), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrSessionBusy, err)
	}
	return nil
}
