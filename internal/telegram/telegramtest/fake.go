// Package telegramtest provides an in-memory telegram.Dialer for tests.
package telegramtest

import (
	"context"
	"errors"
	"sync"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/telegram"
)

// Dialer hands out Conn on every Dial, or fails with DialErr.
type Dialer struct {
	Conn    *Conn
	DialErr error

	mu    sync.Mutex
	dials int
}

// NewDialer returns a dialer serving conn.
func NewDialer(conn *Conn) *Dialer {
	return &Dialer{Conn: conn}
}

func (d *Dialer) Dial(ctx context.Context, creds domain.Credentials) (telegram.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	d.Conn.open()
	return d.Conn, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conn is a scripted connection. Nil funcs fall back to simple defaults:
// not authenticated, fixed challenge, successful sends.
type Conn struct {
	SelfFunc         func(ctx context.Context) (domain.Identity, error)
	RequestCodeFunc  func(ctx context.Context, phone string) (string, error)
	SignInFunc       func(ctx context.Context, phone, challengeID, code string) (domain.Identity, error)
	SecondFactorFunc func(ctx context.Context, secret string) (domain.Identity, error)
	SendFunc         func(ctx context.Context, req telegram.SendRequest) (int, error)

	DialogList []domain.RawDialog
	// DialogsErr is returned after DialogsErrAfter dialogs were delivered.
	DialogsErr      error
	DialogsErrAfter int

	mu          sync.Mutex
	opened      int
	closed      int
	concurrency int
	sent        []telegram.SendRequest
	dialogCalls []int
}

func (c *Conn) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
}

func (c *Conn) Self(ctx context.Context) (domain.Identity, error) {
	if c.SelfFunc != nil {
		return c.SelfFunc(ctx)
	}
	return domain.Identity{}, telegram.ErrNotAuthenticated
}

func (c *Conn) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	if c.RequestCodeFunc != nil {
		return c.RequestCodeFunc(ctx, phone)
	}
	return "challenge-1", nil
}

func (c *Conn) SubmitLoginCode(ctx context.Context, phone, challengeID, code string) (domain.Identity, error) {
	if c.SignInFunc != nil {
		return c.SignInFunc(ctx, phone, challengeID, code)
	}
	return domain.Identity{ID: 1, FirstName: "Test"}, nil
}

func (c *Conn) SubmitSecondFactor(ctx context.Context, secret string) (domain.Identity, error) {
	if c.SecondFactorFunc != nil {
		return c.SecondFactorFunc(ctx, secret)
	}
	return domain.Identity{}, errors.New("second factor not scripted")
}

func (c *Conn) Dialogs(ctx context.Context, limit int, fn func(domain.RawDialog) error) error {
	c.mu.Lock()
	c.dialogCalls = append(c.dialogCalls, limit)
	c.mu.Unlock()

	for i, d := range c.DialogList {
		if c.DialogsErr != nil && i == c.DialogsErrAfter {
			return c.DialogsErr
		}
		if limit > 0 && i >= limit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			if errors.Is(err, telegram.ErrStopDialogs) {
				return nil
			}
			return err
		}
	}
	if c.DialogsErr != nil && c.DialogsErrAfter >= len(c.DialogList) {
		return c.DialogsErr
	}
	return nil
}

func (c *Conn) SetTransportConcurrency(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concurrency = n
}

func (c *Conn) SendMedia(ctx context.Context, req telegram.SendRequest) (int, error) {
	c.mu.Lock()
	c.sent = append(c.sent, req)
	n := len(c.sent)
	c.mu.Unlock()

	if c.SendFunc != nil {
		return c.SendFunc(ctx, req)
	}
	if req.OnProgress != nil {
		if err := req.OnProgress(50, 100); err != nil {
			return 0, err
		}
		if err := req.OnProgress(100, 100); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// Opened and Closed count connection lifecycle calls.
func (c *Conn) Opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Conn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Concurrency returns the last transport concurrency set.
func (c *Conn) Concurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.concurrency
}

// Sent returns the send requests in call order.
func (c *Conn) Sent() []telegram.SendRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]telegram.SendRequest, len(c.sent))
	copy(out, c.sent)
	return out
}

// DialogCalls returns the limit passed to each Dialogs call.
func (c *Conn) DialogCalls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.dialogCalls))
	copy(out, c.dialogCalls)
	return out
}
