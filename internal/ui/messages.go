package ui

import (
	tea "charm.land/bubbletea/v2"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/catalog"
	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/upload"
)

// sessionCheckedMsg carries the startup probe of the stored session.
type sessionCheckedMsg struct {
	status auth.SessionStatus
	err    error
}

// authEventMsg delivers one login event; ch is read again for the next.
type authEventMsg struct {
	ev auth.Event
	ch <-chan auth.Event
}

type catalogEventMsg struct {
	ev catalog.Event
	ch <-chan catalog.Event
}

type uploadEventMsg struct {
	ev upload.Event
	ch <-chan upload.Event
}

// streamClosedMsg is returned once an event channel is exhausted.
type streamClosedMsg struct{}

// ChatSelectedMsg is emitted when the user picks a conversation.
type ChatSelectedMsg struct {
	Conversation domain.Conversation
}

// formSubmittedMsg is emitted when Enter is pressed on the last field.
type formSubmittedMsg struct {
	id     formID
	values []string
}

// sessionResetMsg reports the outcome of ctrl+r.
type sessionResetMsg struct {
	err error
}

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg triggers a status bar time refresh.
type clockTickMsg struct{}

func waitAuth(ch <-chan auth.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return authEventMsg{ev: ev, ch: ch}
	}
}

func waitCatalog(ch <-chan catalog.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return catalogEventMsg{ev: ev, ch: ch}
	}
}

func waitUpload(ch <-chan upload.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return uploadEventMsg{ev: ev, ch: ch}
	}
}
