// Package catalog loads the conversations a batch can be sent to.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/task"
	"github.com/danhigham/tgupload/internal/telegram"
)

// progressEvery is how many dialogs are scanned between progress notes.
const progressEvery = 50

var ErrNotAuthenticated = errors.New("not authenticated, log in first")

// LoadError wraps a failure while enumerating dialogs.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load conversations: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Event is emitted while loading. The stream ends with Loaded or LoadFailed.
type Event interface {
	isEvent()
}

type Progress struct {
	Scanned int
	Note    string
}

type Loaded struct {
	Conversations []domain.Conversation
}

type LoadFailed struct {
	Err error
}

func (Progress) isEvent()   {}
func (Loaded) isEvent()     {}
func (LoadFailed) isEvent() {}

// Loader fetches the conversation list, one load at a time.
type Loader struct {
	dialer telegram.Dialer
	logger *zap.Logger
	slot   task.Slot
}

func New(dialer telegram.Dialer, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dialer: dialer, logger: logger.Named("catalog")}
}

// Start loads in the background, replacing a load still running. The
// returned channel is closed after the terminal event.
func (l *Loader) Start(ctx context.Context, creds domain.Credentials) (<-chan Event, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	out := make(chan Event, 8)
	l.slot.Start(ctx, func(ctx context.Context) {
		defer close(out)
		convs, err := l.Load(ctx, creds, func(p Progress) {
			select {
			case out <- p:
			case <-ctx.Done():
			}
		})
		if err != nil {
			out <- LoadFailed{Err: err}
			return
		}
		out <- Loaded{Conversations: convs}
	})
	return out, nil
}

func (l *Loader) Cancel() {
	l.slot.Cancel()
}

func (l *Loader) Wait() {
	l.slot.Wait()
}

// Load connects, checks the session and returns the eligible conversations
// sorted by display name. Nothing is returned if enumeration fails part way.
func (l *Loader) Load(ctx context.Context, creds domain.Credentials, progress func(Progress)) ([]domain.Conversation, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	conn, err := l.dialer.Dial(ctx, creds)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			l.logger.Warn("close connection", zap.Error(err))
		}
	}()

	if _, err := conn.Self(ctx); err != nil {
		if errors.Is(err, telegram.ErrNotAuthenticated) {
			return nil, ErrNotAuthenticated
		}
		return nil, &LoadError{Err: err}
	}

	var (
		convs   []domain.Conversation
		scanned int
	)
	err = conn.Dialogs(ctx, 0, func(d domain.RawDialog) error {
		scanned++
		if scanned%progressEvery == 0 && progress != nil {
			progress(Progress{
				Scanned: scanned,
				Note:    fmt.Sprintf("Scanned %d conversations...", scanned),
			})
		}
		if c, ok := Convert(d); ok {
			convs = append(convs, c)
		}
		return nil
	})
	if err != nil {
		l.logger.Warn("dialog enumeration failed", zap.Int("scanned", scanned), zap.Error(err))
		return nil, &LoadError{Err: err}
	}

	Sort(convs)
	l.logger.Info("conversations loaded", zap.Int("scanned", scanned), zap.Int("eligible", len(convs)))
	return convs, nil
}

// Include reports whether a raw dialog is an eligible send target.
func Include(d domain.RawDialog) bool {
	if d.Self || d.Support || d.Verified || d.Deleted || d.Restricted {
		return false
	}
	if !d.CanSend {
		return false
	}
	switch d.Kind {
	case domain.PeerUser, domain.PeerChat, domain.PeerMegagroup:
		return true
	default:
		return false
	}
}

// Convert turns an eligible raw dialog into a Conversation.
func Convert(d domain.RawDialog) (domain.Conversation, bool) {
	if !Include(d) {
		return domain.Conversation{}, false
	}
	c := domain.Conversation{
		ID:          d.ID,
		DisplayName: DisplayName(d),
		Username:    d.Username,
		CanSend:     true,
	}
	switch d.Kind {
	case domain.PeerUser:
		c.Kind = domain.KindDirect
	case domain.PeerChat:
		c.Kind = domain.KindGroup
	case domain.PeerMegagroup:
		c.Kind = domain.KindSupergroup
	}
	return c, true
}

// DisplayName builds the label shown for a dialog.
func DisplayName(d domain.RawDialog) string {
	var name string
	switch d.Kind {
	case domain.PeerUser, domain.PeerBot:
		name = strings.TrimSpace(d.FirstName + " " + d.LastName)
		if name == "" {
			name = fmt.Sprintf("User %d", d.ID)
		}
	default:
		name = strings.TrimSpace(d.Title)
		if name == "" {
			kind := domain.KindGroup
			if d.Kind == domain.PeerMegagroup || d.Kind == domain.PeerBroadcast {
				kind = domain.KindSupergroup
			}
			name = fmt.Sprintf("%s %d", kind, d.ID)
		}
	}
	if d.Username != "" {
		name += " (@" + d.Username + ")"
	}
	return name
}

// Sort orders conversations case-insensitively by display name, keeping
// the original order of equal names.
func Sort(convs []domain.Conversation) {
	slices.SortStableFunc(convs, func(a, b domain.Conversation) int {
		return strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
	})
}

// Filter returns the conversations whose name contains query, ignoring case.
func Filter(convs []domain.Conversation, query string) []domain.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return convs
	}
	var out []domain.Conversation
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.DisplayName), query) {
			out = append(out, c)
		}
	}
	return out
}
