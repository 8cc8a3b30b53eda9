package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/telegram"
	"github.com/danhigham/tgupload/internal/telegram/telegramtest"
)

var creds = domain.Credentials{AppID: 12345, AppSecret: "abcdef", Phone: "+15550100"}

// manualTimer records requested durations and fires only when told to.
type manualTimer struct {
	mu        sync.Mutex
	requested []time.Duration
	fire      chan time.Time
}

func newManualTimer() *manualTimer {
	return &manualTimer{fire: make(chan time.Time, 1)}
}

func (m *manualTimer) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, d)
	return m.fire
}

func (m *manualTimer) Requested() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.requested...)
}

func newController(t *testing.T, conn *telegramtest.Conn, timer *manualTimer) (*auth.Controller, *telegramtest.Dialer) {
	t.Helper()
	d := telegramtest.NewDialer(conn)
	c := auth.New(d, zaptest.NewLogger(t), auth.WithAfter(timer.After))
	return c, d
}

func next(t *testing.T, events <-chan auth.Event) auth.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func expectClosed(t *testing.T, events <-chan auth.Event) {
	t.Helper()
	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("unexpected event %T after terminal event", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
}

func failure(t *testing.T, ev auth.Event) *auth.Error {
	t.Helper()
	f, ok := ev.(auth.Failed)
	if !ok {
		t.Fatalf("event = %T, want Failed", ev)
	}
	return f.Err
}

func TestStart_RejectsInvalidCredentials(t *testing.T) {
	bad := []domain.Credentials{
		{AppID: 0, AppSecret: "x", Phone: "+1"},
		{AppID: 1, AppSecret: "", Phone: "+1"},
		{AppID: 1, AppSecret: "x", Phone: ""},
	}
	for _, cr := range bad {
		c, d := newController(t, &telegramtest.Conn{}, newManualTimer())

		_, err := c.Start(context.Background(), cr)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Start(%+v) error = %v, want ValidationError", cr, err)
		}
		if _, err := c.Check(context.Background(), cr); !errors.As(err, &ve) {
			t.Errorf("Check(%+v) error = %v, want ValidationError", cr, err)
		}
		if d.Dials() != 0 {
			t.Errorf("Dials = %d, want 0", d.Dials())
		}
	}
}

func TestStart_AlreadyAuthenticated(t *testing.T) {
	conn := &telegramtest.Conn{
		SelfFunc: func(context.Context) (domain.Identity, error) {
			return domain.Identity{ID: 9, FirstName: "Ann"}, nil
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	events, err := c.Start(context.Background(), creds)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := next(t, events).(auth.Connecting); !ok {
		t.Fatal("first event is not Connecting")
	}
	ev, ok := next(t, events).(auth.AlreadyAuthenticated)
	if !ok {
		t.Fatalf("event = %T, want AlreadyAuthenticated", ev)
	}
	if ev.Identity.ID != 9 {
		t.Errorf("Identity.ID = %d, want 9", ev.Identity.ID)
	}
	expectClosed(t, events)
	c.Wait()

	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
	if c.State() != auth.StateAuthenticated {
		t.Errorf("State = %v, want authenticated", c.State())
	}
}

func TestStart_CodeLogin(t *testing.T) {
	var gotChallenge, gotCode string
	conn := &telegramtest.Conn{
		SignInFunc: func(_ context.Context, phone, challengeID, code string) (domain.Identity, error) {
			gotChallenge, gotCode = challengeID, code
			return domain.Identity{ID: 1, FirstName: "Test"}, nil
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	if c.SubmitCode("early") {
		t.Error("SubmitCode accepted with no attempt running")
	}

	events, err := c.Start(context.Background(), creds)
	if err != nil {
		t.Fatal(err)
	}
	next(t, events) // Connecting
	sent, ok := next(t, events).(auth.CodeSent)
	if !ok {
		t.Fatal("second event is not CodeSent")
	}
	if sent.Challenge.ID != "challenge-1" || sent.Challenge.Phone != creds.Phone {
		t.Errorf("Challenge = %+v", sent.Challenge)
	}
	if c.State() != auth.StateAwaitingCode {
		t.Errorf("State = %v, want awaiting code", c.State())
	}

	if !c.SubmitCode("12345") {
		t.Fatal("SubmitCode rejected while awaiting code")
	}
	if _, ok := next(t, events).(auth.Succeeded); !ok {
		t.Fatal("final event is not Succeeded")
	}
	expectClosed(t, events)
	c.Wait()

	if gotChallenge != "challenge-1" || gotCode != "12345" {
		t.Errorf("sign in got (%q, %q)", gotChallenge, gotCode)
	}
	if c.SubmitCode("12345") {
		t.Error("SubmitCode accepted after authentication")
	}
	if c.State() != auth.StateAuthenticated {
		t.Errorf("State = %v, want authenticated", c.State())
	}
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestStart_CodeExpires(t *testing.T) {
	timer := newManualTimer()
	conn := &telegramtest.Conn{}
	c, _ := newController(t, conn, timer)

	events, err := c.Start(context.Background(), creds)
	if err != nil {
		t.Fatal(err)
	}
	next(t, events) // Connecting
	next(t, events) // CodeSent
	if _, ok := c.Challenge(); !ok {
		t.Error("no outstanding challenge after CodeSent")
	}

	timer.fire <- time.Now()
	if ae := failure(t, next(t, events)); ae.Reason != auth.ReasonCodeExpired {
		t.Errorf("Reason = %v, want code expired", ae.Reason)
	}
	expectClosed(t, events)
	c.Wait()

	if got := timer.Requested(); len(got) != 1 || got[0] != 120*time.Second {
		t.Errorf("timer requested %v, want [2m0s]", got)
	}
	if _, ok := c.Challenge(); ok {
		t.Error("expired challenge still stored")
	}
	if c.SubmitCode("12345") {
		t.Error("SubmitCode accepted after failure")
	}
	if c.State() != auth.StateFailed {
		t.Errorf("State = %v, want failed", c.State())
	}
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestStart_InvalidCode(t *testing.T) {
	conn := &telegramtest.Conn{
		SignInFunc: func(context.Context, string, string, string) (domain.Identity, error) {
			return domain.Identity{}, telegram.ErrInvalidCode
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	next(t, events)
	c.SubmitCode("00000")

	if ae := failure(t, next(t, events)); ae.Reason != auth.ReasonInvalidCode {
		t.Errorf("Reason = %v, want invalid code", ae.Reason)
	}
	expectClosed(t, events)
}

func TestStart_SecondFactorRetry(t *testing.T) {
	conn := &telegramtest.Conn{
		SignInFunc: func(context.Context, string, string, string) (domain.Identity, error) {
			return domain.Identity{}, telegram.ErrSecondFactorRequired
		},
		SecondFactorFunc: func(_ context.Context, secret string) (domain.Identity, error) {
			if secret != "good" {
				return domain.Identity{}, telegram.ErrWrongSecondFactor
			}
			return domain.Identity{ID: 3}, nil
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	next(t, events)
	c.SubmitCode("12345")

	if _, ok := next(t, events).(auth.SecondFactorRequired); !ok {
		t.Fatal("event is not SecondFactorRequired")
	}
	if c.State() != auth.StateAwaitingSecondFactor {
		t.Errorf("State = %v, want awaiting second factor", c.State())
	}

	c.SubmitSecondFactor("bad")
	rej, ok := next(t, events).(auth.SecondFactorRejected)
	if !ok {
		t.Fatal("event is not SecondFactorRejected")
	}
	if rej.Err.Reason != auth.ReasonWrongSecondFactor {
		t.Errorf("Reason = %v, want wrong second factor", rej.Err.Reason)
	}

	c.SubmitSecondFactor("good")
	ok2, ok := next(t, events).(auth.Succeeded)
	if !ok {
		t.Fatal("event is not Succeeded")
	}
	if ok2.Identity.ID != 3 {
		t.Errorf("Identity.ID = %d, want 3", ok2.Identity.ID)
	}
	expectClosed(t, events)
}

func TestStart_BufferedSecondFactor(t *testing.T) {
	var calls int
	conn := &telegramtest.Conn{
		SignInFunc: func(context.Context, string, string, string) (domain.Identity, error) {
			return domain.Identity{}, telegram.ErrSecondFactorRequired
		},
		SecondFactorFunc: func(_ context.Context, secret string) (domain.Identity, error) {
			calls++
			return domain.Identity{ID: 4}, nil
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	next(t, events)
	if !c.SubmitSecondFactor("secret") {
		t.Fatal("SubmitSecondFactor not buffered")
	}
	c.SubmitCode("12345")

	if _, ok := next(t, events).(auth.SecondFactorRequired); !ok {
		t.Fatal("event is not SecondFactorRequired")
	}
	if _, ok := next(t, events).(auth.Succeeded); !ok {
		t.Fatal("buffered secret was not applied")
	}
	expectClosed(t, events)
	if calls != 1 {
		t.Errorf("SubmitSecondFactor calls = %d, want 1", calls)
	}
}

func TestStart_SecondFactorTimeout(t *testing.T) {
	timer := newManualTimer()
	conn := &telegramtest.Conn{
		SignInFunc: func(context.Context, string, string, string) (domain.Identity, error) {
			return domain.Identity{}, telegram.ErrSecondFactorRequired
		},
	}
	c, _ := newController(t, conn, timer)

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	next(t, events)
	c.SubmitCode("12345")
	next(t, events) // SecondFactorRequired

	timer.fire <- time.Now()
	if ae := failure(t, next(t, events)); ae.Reason != auth.ReasonSecondFactorRequired {
		t.Errorf("Reason = %v, want second factor required", ae.Reason)
	}
	expectClosed(t, events)
}

func TestCancel_DuringCodeWait(t *testing.T) {
	conn := &telegramtest.Conn{}
	c, _ := newController(t, conn, newManualTimer())

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	next(t, events)

	c.Cancel()
	if ae := failure(t, next(t, events)); ae.Reason != auth.ReasonCancelled {
		t.Errorf("Reason = %v, want cancelled", ae.Reason)
	}
	expectClosed(t, events)
	c.Wait()
	if conn.Closed() != 1 {
		t.Errorf("Closed = %d, want 1", conn.Closed())
	}
}

func TestStart_ReplacesRunningAttempt(t *testing.T) {
	conn := &telegramtest.Conn{}
	c, d := newController(t, conn, newManualTimer())

	first, _ := c.Start(context.Background(), creds)
	next(t, first)
	next(t, first)

	second, err := c.Start(context.Background(), creds)
	if err != nil {
		t.Fatal(err)
	}
	if ae := failure(t, next(t, first)); ae.Reason != auth.ReasonCancelled {
		t.Errorf("first attempt Reason = %v, want cancelled", ae.Reason)
	}
	expectClosed(t, first)

	next(t, second)
	if _, ok := next(t, second).(auth.CodeSent); !ok {
		t.Fatal("second attempt did not request a code")
	}
	if !c.SubmitCode("12345") {
		t.Fatal("SubmitCode rejected for second attempt")
	}
	if _, ok := next(t, second).(auth.Succeeded); !ok {
		t.Fatal("second attempt did not succeed")
	}
	c.Wait()
	if d.Dials() != 2 || conn.Closed() != 2 {
		t.Errorf("Dials = %d, Closed = %d, want 2 and 2", d.Dials(), conn.Closed())
	}
}

func TestStart_RateLimited(t *testing.T) {
	conn := &telegramtest.Conn{
		RequestCodeFunc: func(context.Context, string) (string, error) {
			return "", &telegram.RateLimitError{RetryAfter: 30 * time.Second}
		},
	}
	c, _ := newController(t, conn, newManualTimer())

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	ae := failure(t, next(t, events))
	if ae.Reason != auth.ReasonRateLimited || ae.RetryAfter != 30*time.Second {
		t.Errorf("Error = %+v, want rate limited for 30s", ae)
	}
	if ae.Error() != "too many attempts, retry in 30s" {
		t.Errorf("Error() = %q", ae.Error())
	}
}

func TestStart_ConnectFailure(t *testing.T) {
	d := &telegramtest.Dialer{Conn: &telegramtest.Conn{}, DialErr: errors.New("refused")}
	c := auth.New(d, zaptest.NewLogger(t))

	events, _ := c.Start(context.Background(), creds)
	next(t, events)
	if ae := failure(t, next(t, events)); ae.Reason != auth.ReasonConnection {
		t.Errorf("Reason = %v, want connection error", ae.Reason)
	}
	expectClosed(t, events)
}

func TestCheck(t *testing.T) {
	conn := &telegramtest.Conn{}
	c, _ := newController(t, conn, newManualTimer())

	st, err := c.Check(context.Background(), creds)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if st.Authenticated {
		t.Error("Authenticated = true for unauthorized session")
	}

	conn.SelfFunc = func(context.Context) (domain.Identity, error) {
		return domain.Identity{ID: 5}, nil
	}
	st, err = c.Check(context.Background(), creds)
	if err != nil || !st.Authenticated || st.Identity.ID != 5 {
		t.Errorf("Check() = %+v, %v", st, err)
	}
	if conn.Closed() != 2 {
		t.Errorf("Closed = %d, want 2", conn.Closed())
	}

	failing := &telegramtest.Dialer{DialErr: errors.New("offline")}
	st, err = auth.New(failing, zaptest.NewLogger(t)).Check(context.Background(), creds)
	if err != nil || st.Authenticated {
		t.Errorf("Check() with dial error = %+v, %v", st, err)
	}
}
