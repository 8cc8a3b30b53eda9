package ui

import (
	"fmt"
	"io"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/tgupload/internal/domain"
)

// chatItem implements list.Item for the conversation list.
type chatItem struct {
	conv     domain.Conversation
	selected bool
}

func (i chatItem) FilterValue() string { return i.conv.DisplayName }

// chatItemDelegate renders a chatItem in the list.
type chatItemDelegate struct{}

func (d chatItemDelegate) Height() int                             { return 2 }
func (d chatItemDelegate) Spacing() int                            { return 0 }
func (d chatItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d chatItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(chatItem)
	if !ok {
		return
	}

	// Account for the cursor prefix ("  " or "> ") in available width.
	contentWidth := m.Width() - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	nameStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	kindStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(dimColor)

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
		nameStyle = nameStyle.Foreground(lipgloss.Color("170")).Bold(true)
		kindStyle = kindStyle.Foreground(lipgloss.Color("250"))
	}
	name := ci.conv.DisplayName
	if ci.selected {
		name += " ✓"
	}

	fmt.Fprintf(w, "%s%s\n  %s", cursor, nameStyle.Render(name), kindStyle.Render(ci.conv.Kind.String()))
}

// ChatListModel wraps bubbles/list for picking the upload target.
type ChatListModel struct {
	list     list.Model
	selected int64
	width    int
	height   int
}

func NewChatListModel() ChatListModel {
	l := list.New(nil, chatItemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()

	return ChatListModel{list: l}
}

func (m ChatListModel) Update(msg tea.Msg) (ChatListModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		// Enter selects only when not typing a filter.
		if key.String() == "enter" && m.list.FilterState() != list.Filtering {
			if item, ok := m.list.SelectedItem().(chatItem); ok {
				conv := item.conv
				return m, func() tea.Msg { return ChatSelectedMsg{Conversation: conv} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Filtering reports whether the user is typing a filter query.
func (m ChatListModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m ChatListModel) View() string {
	return m.list.View()
}

// WithConversations replaces the items and moves the cursor to the
// previously selected conversation, if present.
func (m ChatListModel) WithConversations(convs []domain.Conversation, selected int64) ChatListModel {
	m.selected = selected
	items := make([]list.Item, len(convs))
	cursor := 0
	for i, c := range convs {
		items[i] = chatItem{conv: c, selected: c.ID == selected}
		if c.ID == selected {
			cursor = i
		}
	}
	m.list.SetItems(items)
	m.list.Select(cursor)
	return m
}

func (m ChatListModel) Len() int {
	return len(m.list.Items())
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	m.list.SetSize(max(w, 1), max(h, 1))
	return m
}
