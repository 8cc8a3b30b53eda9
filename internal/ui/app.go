package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/danhigham/tgupload/internal/auth"
	"github.com/danhigham/tgupload/internal/catalog"
	"github.com/danhigham/tgupload/internal/domain"
	"github.com/danhigham/tgupload/internal/state"
	"github.com/danhigham/tgupload/internal/telegram"
	"github.com/danhigham/tgupload/internal/upload"
)

type stage int

const (
	stageCredentials stage = iota
	stageConnecting
	stageCode
	stageSecondFactor
	stageLoadingChats
	stageChats
	stageSetup
	stageUpload
)

// Deps are the components the shell drives.
type Deps struct {
	Settings *state.Store
	Auth     *auth.Controller
	Catalog  *catalog.Loader
	Upload   *upload.Engine
	Session  *telegram.SessionFile
	Logger   *zap.Logger

	DefaultDelaySeconds int
	DefaultConcurrency  int
}

// Model is the root Bubble Tea model.
type Model struct {
	deps Deps
	ctx  context.Context

	stage    stage
	form     FormModel
	chatList ChatListModel
	activity ActivityModel
	status   statusModel
	help     HelpModel
	splash   startupSplash

	creds   domain.Credentials
	target  domain.Conversation
	message string

	width  int
	height int
}

// NewModel creates the root model with all sub-components.
func NewModel(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	m := Model{
		deps:     deps,
		ctx:      ctx,
		stage:    stageCredentials,
		form:     credentialsForm(deps.Settings),
		chatList: NewChatListModel(),
		activity: NewActivityModel(),
		status:   newStatusModel(),
		help:     NewHelpModel(),
		splash:   newStartupSplash(),
	}
	m.target = domain.Conversation{
		ID:          deps.Settings.Int64(state.KeySelectedChatID, 0),
		DisplayName: deps.Settings.String(state.KeySelectedChatName, ""),
	}
	m.status = m.status.SetTarget(m.target.DisplayName)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.checkSession(),
		tea.Tick(2*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		tickClock(),
	)
}

func tickClock() tea.Cmd {
	return tea.Tick(30*time.Second, func(time.Time) tea.Msg { return clockTickMsg{} })
}

func (m Model) checkSession() tea.Cmd {
	creds, err := m.deps.Settings.Credentials()
	if err != nil {
		return func() tea.Msg { return sessionCheckedMsg{err: err} }
	}
	ctrl := m.deps.Auth
	ctx := m.ctx
	return func() tea.Msg {
		st, err := ctrl.Check(ctx, creds)
		return sessionCheckedMsg{status: st, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.distributeSize(), nil

	case SplashDoneMsg:
		m.splash = m.splash.clear(gateMinTime)
		return m, nil

	case clockTickMsg:
		return m, tickClock()

	case sessionCheckedMsg:
		m.splash = m.splash.clear(gateSession)
		if msg.err != nil || !msg.status.Authenticated {
			m.status = m.status.SetText("Log in", false)
			return m, nil
		}
		creds, _ := m.deps.Settings.Credentials()
		m.creds = creds
		m.status = m.status.SetUserName(msg.status.Identity.DisplayName())
		return m.loadChats()

	case formSubmittedMsg:
		return m.submit(msg)

	case authEventMsg:
		return m.onAuthEvent(msg)

	case catalogEventMsg:
		return m.onCatalogEvent(msg)

	case uploadEventMsg:
		m.activity = m.activity.Apply(msg.ev)
		if fin, ok := msg.ev.(upload.Finished); ok {
			m.status = m.status.SetText(uploadOutcome(fin), false)
		}
		return m, waitUpload(msg.ch)

	case streamClosedMsg:
		return m, nil

	case ChatSelectedMsg:
		m.target = msg.Conversation
		if err := m.deps.Settings.SetMany(map[string]any{
			state.KeySelectedChatID:   msg.Conversation.ID,
			state.KeySelectedChatName: msg.Conversation.DisplayName,
		}); err != nil {
			m.deps.Logger.Warn("save selected chat", zap.Error(err))
		}
		m.status = m.status.SetTarget(msg.Conversation.DisplayName)
		return m.toSetup(), nil

	case sessionResetMsg:
		m.stage = stageCredentials
		m.form = credentialsForm(m.deps.Settings)
		m.status = m.status.SetUserName("")
		if msg.err != nil {
			m.form = m.form.SetError(msg.err.Error())
			m.status = m.status.SetText("Reset failed", false)
		} else {
			m.status = m.status.SetText("Session cleared", false)
		}
		return m, nil

	case tea.KeyMsg:
		return m.onKey(msg)
	}

	return m.forward(msg)
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.splash.showing() {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		m.cancelAll()
		return m, tea.Quit
	case "f1":
		m.help = m.help.Toggle()
		return m, nil
	case "ctrl+r":
		m.status = m.status.SetText("Resetting session", true)
		return m, m.resetSession()
	}

	if m.help.IsVisible() {
		if msg.String() == "esc" {
			m.help = m.help.Toggle()
		}
		return m, nil
	}

	switch m.stage {
	case stageCode, stageSecondFactor, stageConnecting:
		if msg.String() == "esc" {
			m.deps.Auth.Cancel()
			return m, nil
		}
	case stageChats:
		if !m.chatList.Filtering() && msg.String() == "r" {
			return m.loadChats()
		}
	case stageSetup:
		if msg.String() == "esc" {
			m.stage = stageChats
			return m, nil
		}
	case stageUpload:
		switch msg.String() {
		case "c", "esc":
			if m.activity.Running() {
				m.deps.Upload.RequestCancel()
				m.status = m.status.SetText("Cancelling", true)
			}
			return m, nil
		case "enter":
			if !m.activity.Running() {
				m.stage = stageChats
			}
			return m, nil
		}
	}

	return m.forward(msg)
}

// forward hands msg to the component owning the current stage.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.stage {
	case stageCredentials, stageCode, stageSecondFactor, stageSetup:
		m.form, cmd = m.form.Update(msg)
	case stageChats:
		m.chatList, cmd = m.chatList.Update(msg)
	}
	return m, cmd
}

func (m Model) submit(msg formSubmittedMsg) (tea.Model, tea.Cmd) {
	switch msg.id {
	case formCredentials:
		creds, err := domain.ParseCredentials(msg.values[0], msg.values[1], msg.values[2])
		if err != nil {
			m.form = m.form.SetError(err.Error())
			return m, nil
		}
		if err := m.deps.Settings.SetMany(map[string]any{
			state.KeyAPIID:   strconv.Itoa(creds.AppID),
			state.KeyAPIHash: creds.AppSecret,
			state.KeyPhone:   creds.Phone,
		}); err != nil {
			m.deps.Logger.Warn("save credentials", zap.Error(err))
		}
		events, err := m.deps.Auth.Start(m.ctx, creds)
		if err != nil {
			m.form = m.form.SetError(err.Error())
			return m, nil
		}
		m.creds = creds
		m.stage = stageConnecting
		m.message = "Connecting..."
		m.status = m.status.SetText("Logging in", true)
		return m, waitAuth(events)

	case formCode:
		if msg.values[0] == "" || !m.deps.Auth.SubmitCode(msg.values[0]) {
			m.form = m.form.SetError("No login is waiting for a code")
			return m, nil
		}
		m.stage = stageConnecting
		m.message = "Checking code..."
		return m, nil

	case formSecondFactor:
		if msg.values[0] == "" {
			return m, nil
		}
		m.deps.Auth.SubmitSecondFactor(msg.values[0])
		m.stage = stageConnecting
		m.message = "Checking password..."
		return m, nil

	case formSetup:
		return m.startUpload(msg.values)
	}
	return m, nil
}

func (m Model) onAuthEvent(msg authEventMsg) (tea.Model, tea.Cmd) {
	next := waitAuth(msg.ch)
	switch ev := msg.ev.(type) {
	case auth.Connecting:
		m.message = "Connecting..."
	case auth.CodeSent:
		m.stage = stageCode
		m.form = codeForm(ev.Challenge)
	case auth.SecondFactorRequired:
		m.stage = stageSecondFactor
		m.form = secondFactorForm("This account has two-step verification enabled.")
	case auth.SecondFactorRejected:
		m.stage = stageSecondFactor
		m.form = secondFactorForm("").SetError(ev.Err.Error())
	case auth.AlreadyAuthenticated:
		m.status = m.status.SetUserName(ev.Identity.DisplayName())
		model, cmd := m.loadChats()
		return model, tea.Batch(next, cmd)
	case auth.Succeeded:
		m.status = m.status.SetUserName(ev.Identity.DisplayName())
		model, cmd := m.loadChats()
		return model, tea.Batch(next, cmd)
	case auth.Failed:
		m.stage = stageCredentials
		m.form = credentialsForm(m.deps.Settings).SetError(authFailureText(ev.Err))
		m.status = m.status.SetText("Login failed", false)
	}
	return m, next
}

func (m Model) loadChats() (tea.Model, tea.Cmd) {
	events, err := m.deps.Catalog.Start(m.ctx, m.creds)
	if err != nil {
		m.stage = stageCredentials
		m.form = credentialsForm(m.deps.Settings).SetError(err.Error())
		return m, nil
	}
	m.stage = stageLoadingChats
	m.message = "Loading conversations..."
	m.status = m.status.SetText("Loading", true)
	return m, waitCatalog(events)
}

func (m Model) onCatalogEvent(msg catalogEventMsg) (tea.Model, tea.Cmd) {
	switch ev := msg.ev.(type) {
	case catalog.Progress:
		m.message = ev.Note
	case catalog.Loaded:
		m.chatList = m.chatList.WithConversations(ev.Conversations, m.target.ID)
		m.stage = stageChats
		m.status = m.status.SetText(fmt.Sprintf("%d chats", len(ev.Conversations)), false)
	case catalog.LoadFailed:
		if errors.Is(ev.Err, catalog.ErrNotAuthenticated) {
			m.stage = stageCredentials
			m.form = credentialsForm(m.deps.Settings).SetError(ev.Err.Error())
		} else {
			m.stage = stageChats
			m.status = m.status.SetText("Load failed", false)
			m.message = ev.Err.Error()
		}
	}
	return m, waitCatalog(msg.ch)
}

func (m Model) toSetup() Model {
	s := m.deps.Settings
	m.stage = stageSetup
	m.form = NewFormModel(formSetup, "Upload to "+m.target.DisplayName,
		"Concurrency is 1, 4 or 8 parallel parts per file. Esc goes back.",
		newField("Folder", "/path/to/videos", s.String(state.KeyFolder, ""), false),
		newField("Caption prefix", "optional", s.String(state.KeyPrefixText, ""), false),
		newField("Delay (s)", "1", strconv.Itoa(s.Int(state.KeyDelaySeconds, m.deps.DefaultDelaySeconds)), false),
		newField("Concurrency", "4", strconv.Itoa(s.Int(state.KeyConcurrency, m.deps.DefaultConcurrency)), false),
	)
	return m
}

func (m Model) startUpload(values []string) (tea.Model, tea.Cmd) {
	if values[0] == "" {
		m.form = m.form.SetError("Choose a folder or file to upload")
		return m, nil
	}
	delay, err := strconv.Atoi(values[2])
	if err != nil {
		m.form = m.form.SetError("Delay must be a whole number of seconds")
		return m, nil
	}
	concurrency, err := strconv.Atoi(values[3])
	if err != nil {
		m.form = m.form.SetError("Concurrency must be 1, 4 or 8")
		return m, nil
	}

	job := upload.Job{
		Credentials:    m.creds,
		ConversationID: m.target.ID,
		Paths:          []string{values[0]},
		Delay:          time.Duration(delay) * time.Second,
		Concurrency:    concurrency,
		Prefix:         values[1],
	}
	events, err := m.deps.Upload.Start(m.ctx, job)
	if err != nil {
		m.form = m.form.SetError(err.Error())
		return m, nil
	}

	if err := m.deps.Settings.SetMany(map[string]any{
		state.KeyFolder:       values[0],
		state.KeyPrefixText:   values[1],
		state.KeyDelaySeconds: delay,
		state.KeyConcurrency:  concurrency,
	}); err != nil {
		m.deps.Logger.Warn("save upload settings", zap.Error(err))
	}

	m.stage = stageUpload
	m.activity = m.activity.Reset(m.target.DisplayName)
	m.status = m.status.SetText("Uploading", true)
	return m, waitUpload(events)
}

func (m Model) cancelAll() {
	m.deps.Auth.Cancel()
	m.deps.Catalog.Cancel()
	m.deps.Upload.RequestCancel()
}

// resetSession stops every task, waits for their connections to close and
// deletes the stored session.
func (m Model) resetSession() tea.Cmd {
	deps := m.deps
	ctx := m.ctx
	m.cancelAll()
	return func() tea.Msg {
		deps.Auth.Wait()
		deps.Catalog.Wait()
		deps.Upload.Wait()
		return sessionResetMsg{err: deps.Session.Reset(ctx)}
	}
}

func uploadOutcome(f upload.Finished) string {
	switch {
	case f.Err != nil:
		return "Upload failed"
	case f.Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("%d sent, %d failed", f.Succeeded, f.Failed)
	}
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	// Panel sizes include the border; the status bar takes the last row.
	contentW := m.width
	contentH := m.height - 1

	var body string
	switch m.stage {
	case stageCredentials, stageCode, stageSecondFactor, stageSetup:
		body = m.form.View()
	case stageConnecting, stageLoadingChats:
		body = titleStyle.Render(m.message)
	case stageChats:
		body = m.chatList.View()
		if m.message != "" && m.chatList.Len() == 0 {
			body = errStyle.Render(m.message) + "\n\n" + hintStyle.Render("Press r to retry.")
		}
	case stageUpload:
		body = m.activity.View()
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		panel(body, contentW, contentH, true),
		m.status.View(),
	)
	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(main)

	switch {
	case m.splash.showing():
		v.SetContent(m.splash.View())
	case m.help.IsVisible():
		x, y := m.help.BoxOffset()
		bg := lipgloss.NewLayer(mainContent)
		fg := lipgloss.NewLayer(m.help.View()).X(x).Y(y).Z(1)
		v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
	default:
		v.SetContent(mainContent)
	}
	return v
}

func (m Model) distributeSize() Model {
	innerW := m.width - 4
	innerH := m.height - 3
	m.chatList = m.chatList.SetSize(innerW, innerH)
	m.activity = m.activity.SetSize(innerW, innerH)
	m.status = m.status.SetWidth(m.width)
	m.help = m.help.SetSize(m.width, m.height)
	m.splash = m.splash.resize(m.width, m.height)
	return m
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

// NewApp creates a new App ready to Run.
func NewApp(ctx context.Context, deps Deps) *App {
	return &App{program: tea.NewProgram(NewModel(ctx, deps), tea.WithContext(ctx))}
}

// Run starts the Bubble Tea event loop (blocks until quit).
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}
