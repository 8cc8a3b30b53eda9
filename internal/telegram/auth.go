package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/danhigham/tgupload/internal/domain"
)

// Self reports the authorized account without prompting for anything.
func (c *gotdConn) Self(ctx context.Context) (domain.Identity, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return domain.Identity{}, classifyError(err)
	}
	if !status.Authorized || status.User == nil {
		return domain.Identity{}, ErrNotAuthenticated
	}
	return identityFromUser(status.User), nil
}

func (c *gotdConn) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", classifyError(err)
	}
	s, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("unexpected sent code type: %T", sent)
	}
	return s.PhoneCodeHash, nil
}

func (c *gotdConn) SubmitLoginCode(ctx context.Context, phone, challengeID, code string) (domain.Identity, error) {
	a, err := c.client.Auth().SignIn(ctx, phone, code, challengeID)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			return domain.Identity{}, ErrSecondFactorRequired
		}
		return domain.Identity{}, classifyError(err)
	}
	return identityFromAuthorization(a)
}

func (c *gotdConn) SubmitSecondFactor(ctx context.Context, secret string) (domain.Identity, error) {
	a, err := c.client.Auth().Password(ctx, secret)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordInvalid) {
			return domain.Identity{}, ErrWrongSecondFactor
		}
		return domain.Identity{}, classifyError(err)
	}
	return identityFromAuthorization(a)
}

func identityFromAuthorization(a *tg.AuthAuthorization) (domain.Identity, error) {
	u, ok := a.User.(*tg.User)
	if !ok {
		return domain.Identity{}, fmt.Errorf("unexpected user type: %T", a.User)
	}
	return identityFromUser(u), nil
}

func identityFromUser(u *tg.User) domain.Identity {
	return domain.Identity{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Premium:   u.Premium,
	}
}

// classifyError maps gotd and RPC errors onto the facade's named conditions.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &RateLimitError{RetryAfter: d}
	}
	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"):
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return fmt.Errorf("%w: %v", ErrCodeExpired, err)
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return fmt.Errorf("%w: %v", ErrWrongSecondFactor, err)
	case tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return ErrSecondFactorRequired
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "USER_DEACTIVATED", "SESSION_REVOKED"):
		return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	case tgerr.Is(err, "PEER_ID_INVALID", "CHANNEL_INVALID", "CHAT_ID_INVALID"):
		return fmt.Errorf("%w: %v", ErrUnknownPeer, err)
	}
	if _, ok := tgerr.As(err); ok {
		return fmt.Errorf("rpc: %w", err)
	}
	return &ConnectionError{Err: err}
}
