// Package auth drives the interactive login: request a code, wait for the
// user to type it, then an optional two-step password, all over one
// connection.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/task"
	"github.com/danhigham/tgupload/internal/telegram"
)

// DefaultCodeTimeout bounds each wait for user input.
const DefaultCodeTimeout = 120 * time.Second

var errInputTimeout = errors.New("input timeout")

// Option configures a Controller.
type Option func(*Controller)

// WithCodeTimeout overrides how long the controller waits for a code or a
// two-step password.
func WithCodeTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.codeTimeout = d
		}
	}
}

// WithAfter replaces time.After for the input waits.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Controller) {
		c.after = after
	}
}

// SessionStatus is the result of Check.
type SessionStatus struct {
	Authenticated bool
	Identity      domain.Identity
}

// Controller runs at most one login attempt at a time.
type Controller struct {
	dialer      telegram.Dialer
	logger      *zap.Logger
	codeTimeout time.Duration
	after       func(time.Duration) <-chan time.Time
	now         func() time.Time

	slot task.Slot

	mu        sync.Mutex
	cur       *attempt
	state     State
	challenge *Challenge
}

type attempt struct {
	codes   chan string
	secrets chan string
}

func New(dialer telegram.Dialer, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		dialer:      dialer,
		logger:      logger.Named("auth"),
		codeTimeout: DefaultCodeTimeout,
		after:       time.After,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check reports whether the stored session is already authorized. Errors
// other than invalid credentials resolve to "not authenticated".
func (c *Controller) Check(ctx context.Context, creds domain.Credentials) (SessionStatus, error) {
	if err := creds.Validate(); err != nil {
		return SessionStatus{}, err
	}

	conn, err := c.dialer.Dial(ctx, creds)
	if err != nil {
		c.logger.Info("session check: connect failed", zap.Error(err))
		return SessionStatus{}, nil
	}
	defer conn.Close()

	id, err := conn.Self(ctx)
	if err != nil {
		c.logger.Debug("session check: not authorized", zap.Error(err))
		return SessionStatus{}, nil
	}
	return SessionStatus{Authenticated: true, Identity: id}, nil
}

// Start begins a login attempt, replacing any attempt still running. The
// returned channel is closed after the terminal event and must be drained.
func (c *Controller) Start(ctx context.Context, creds domain.Credentials) (<-chan Event, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	a := &attempt{
		codes:   make(chan string, 1),
		secrets: make(chan string, 1),
	}
	c.mu.Lock()
	c.cur = a
	c.state = StateIdle
	c.challenge = nil
	c.mu.Unlock()

	out := make(chan Event, 16)
	c.slot.Start(ctx, func(ctx context.Context) {
		defer close(out)
		emit := func(ev Event) { out <- ev }
		emit(c.run(ctx, a, creds, emit))
	})
	return out, nil
}

// SubmitCode delivers a login code to the attempt waiting for one. It
// reports false, doing nothing, when no attempt is waiting.
func (c *Controller) SubmitCode(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.state != StateAwaitingCode || c.challenge == nil {
		return false
	}
	select {
	case c.cur.codes <- code:
		return true
	default:
		return false
	}
}

// SubmitSecondFactor delivers the two-step password, or keeps it until
// the running attempt asks for it. A later secret replaces a kept one.
func (c *Controller) SubmitSecondFactor(secret string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.state == StateAuthenticated || c.state == StateFailed {
		return false
	}
	select {
	case <-c.cur.secrets:
	default:
	}
	c.cur.secrets <- secret
	return true
}

// Cancel stops the running attempt at its next suspension point.
func (c *Controller) Cancel() {
	c.slot.Cancel()
}

// Wait blocks until the running attempt has finished.
func (c *Controller) Wait() {
	c.slot.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Challenge returns the outstanding challenge. It is cleared once a code
// was submitted for it or its window elapsed.
func (c *Controller) Challenge() (Challenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.challenge == nil {
		return Challenge{}, false
	}
	return *c.challenge, true
}

func (c *Controller) transition(a *attempt, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != a {
		return
	}
	c.state = s
}

func (c *Controller) setChallenge(a *attempt, ch *Challenge) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != a {
		return
	}
	c.challenge = ch
	if ch != nil {
		c.state = StateAwaitingCode
	}
}

// run performs the attempt and returns its terminal event.
func (c *Controller) run(ctx context.Context, a *attempt, creds domain.Credentials, emit func(Event)) Event {
	c.transition(a, StateConnecting)
	emit(Connecting{})

	conn, err := c.dialer.Dial(ctx, creds)
	if err != nil {
		return c.fail(ctx, a, err, ReasonConnection)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Warn("close connection", zap.Error(err))
		}
	}()

	id, err := conn.Self(ctx)
	if err == nil {
		c.logger.Info("already authenticated", zap.Int64("user_id", id.ID))
		c.transition(a, StateAuthenticated)
		return AlreadyAuthenticated{Identity: id}
	}
	if ctx.Err() != nil {
		return c.fail(ctx, a, ctx.Err(), ReasonCancelled)
	}

	c.transition(a, StateCodeRequested)
	challengeID, err := conn.RequestLoginCode(ctx, creds.Phone)
	if err != nil {
		return c.fail(ctx, a, err, ReasonRejected)
	}
	challenge := Challenge{ID: challengeID, Phone: creds.Phone, IssuedAt: c.now()}
	c.setChallenge(a, &challenge)
	c.logger.Info("login code requested")
	emit(CodeSent{Challenge: challenge})

	code, err := c.await(ctx, a.codes)
	c.setChallenge(a, nil)
	if errors.Is(err, errInputTimeout) {
		return c.fail(ctx, a, nil, ReasonCodeExpired)
	}
	if err != nil {
		return c.fail(ctx, a, err, ReasonCancelled)
	}

	id, err = conn.SubmitLoginCode(ctx, creds.Phone, challenge.ID, code)
	if err == nil {
		return c.succeed(a, id)
	}
	if !errors.Is(err, telegram.ErrSecondFactorRequired) {
		return c.fail(ctx, a, err, ReasonRejected)
	}

	c.transition(a, StateAwaitingSecondFactor)
	emit(SecondFactorRequired{})
	for {
		secret, err := c.await(ctx, a.secrets)
		if errors.Is(err, errInputTimeout) {
			return c.fail(ctx, a, nil, ReasonSecondFactorRequired)
		}
		if err != nil {
			return c.fail(ctx, a, err, ReasonCancelled)
		}

		id, err := conn.SubmitSecondFactor(ctx, secret)
		if err == nil {
			return c.succeed(a, id)
		}
		if !errors.Is(err, telegram.ErrWrongSecondFactor) {
			return c.fail(ctx, a, err, ReasonRejected)
		}
		c.logger.Info("second factor rejected")
		emit(SecondFactorRejected{Err: &Error{Reason: ReasonWrongSecondFactor, Err: err}})
	}
}

// await suspends until input arrives, the timeout elapses or ctx ends.
func (c *Controller) await(ctx context.Context, input <-chan string) (string, error) {
	select {
	case v := <-input:
		return v, nil
	case <-c.after(c.codeTimeout):
		return "", errInputTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Controller) succeed(a *attempt, id domain.Identity) Event {
	c.logger.Info("authenticated", zap.Int64("user_id", id.ID))
	c.transition(a, StateAuthenticated)
	return Succeeded{Identity: id}
}

func (c *Controller) fail(ctx context.Context, a *attempt, err error, fallback Reason) Event {
	ae := classify(ctx, err, fallback)
	c.logger.Warn("login failed", zap.Stringer("reason", ae.Reason), zap.Error(err))
	c.transition(a, StateFailed)
	return Failed{Err: ae}
}

// classify maps a facade error to the failure taxonomy.
func classify(ctx context.Context, err error, fallback Reason) *Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &Error{Reason: ReasonCancelled, Err: err}
	}

	var rl *telegram.RateLimitError
	var ce *telegram.ConnectionError
	switch {
	case errors.As(err, &rl):
		return &Error{Reason: ReasonRateLimited, RetryAfter: rl.RetryAfter, Err: err}
	case errors.As(err, &ce):
		return &Error{Reason: ReasonConnection, Err: err}
	case errors.Is(err, telegram.ErrInvalidCode):
		return &Error{Reason: ReasonInvalidCode, Err: err}
	case errors.Is(err, telegram.ErrCodeExpired):
		return &Error{Reason: ReasonCodeExpired, Err: err}
	case errors.Is(err, telegram.ErrWrongSecondFactor):
		return &Error{Reason: ReasonWrongSecondFactor, Err: err}
	case errors.Is(err, telegram.ErrSecondFactorRequired):
		return &Error{Reason: ReasonSecondFactorRequired, Err: err}
	}
	return &Error{Reason: fallback, Err: err}
}
