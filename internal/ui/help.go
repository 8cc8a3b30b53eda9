package ui

import (
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
)

// HelpModel renders a centered help overlay listing keyboard shortcuts.
type HelpModel struct {
	visible       bool
	rendered      string
	width, height int
}

// NewHelpModel creates a hidden help model.
func NewHelpModel() HelpModel {
	return HelpModel{}
}

// IsVisible reports whether the help overlay is showing.
func (h HelpModel) IsVisible() bool {
	return h.visible
}

// Toggle flips the help overlay visibility.
func (h HelpModel) Toggle() HelpModel {
	h.visible = !h.visible
	return h
}

// SetSize updates the terminal dimensions and re-renders the text.
func (h HelpModel) SetSize(w, ht int) HelpModel {
	h.width = w
	h.height = ht

	wrap := w - 12
	if wrap > 70 {
		wrap = 70
	}
	if wrap < 30 {
		wrap = 30
	}
	out, err := glamour.Render(helpMarkdown, "dark")
	if err != nil {
		h.rendered = helpMarkdown
		return h
	}
	h.rendered = lipgloss.NewStyle().MaxWidth(wrap).Render(strings.Trim(out, "\n"))
	return h
}

const helpMarkdown = `# Keyboard shortcuts

## General

| Key | Action |
|---|---|
| Ctrl+C | Quit |
| F1 | Toggle this help |
| Ctrl+R | Cancel everything and forget the session |
| Esc | Back |

## Login

| Key | Action |
|---|---|
| Tab / ↑ ↓ | Move between fields |
| Enter | Next field, submit on the last |

## Conversations

| Key | Action |
|---|---|
| j/k, ↑/↓ | Navigate |
| / | Filter by name |
| Enter | Choose target |
| r | Reload list |

## Upload

| Key | Action |
|---|---|
| Enter | Start (on the last field) |
| c | Cancel the running batch |

Press F1 or Esc to close.
`

// View renders the help box (without full-screen placement).
// Use BoxOffset to get the X/Y for centering via the Layer API.
func (h HelpModel) View() string {
	if !h.visible || h.width == 0 || h.height == 0 {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		BorderForegroundBlend(rainbowBlend...)

	return style.Render(truncateHeight(h.rendered, h.height-4))
}

// BoxOffset returns the (x, y) needed to center the help box
// within the terminal dimensions.
func (h HelpModel) BoxOffset() (int, int) {
	box := h.View()
	x := (h.width - lipgloss.Width(box)) / 2
	y := (h.height - lipgloss.Height(box)) / 2
	return max(x, 0), max(y, 0)
}
