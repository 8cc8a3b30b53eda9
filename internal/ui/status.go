package ui

import (
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	statusBarBg = lipgloss.Color("#353533")
	// Bright magenta while busy, muted purple when idle.
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	statusTimeBg    = lipgloss.Color("#6124DF")
)

type statusModel struct {
	text     string
	busy     bool
	target   string
	userName string
	width    int
}

func newStatusModel() statusModel {
	return statusModel{text: "Starting"}
}

func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

// SetText updates the pill; busy highlights it.
func (m statusModel) SetText(text string, busy bool) statusModel {
	m.text = text
	m.busy = busy
	return m
}

// SetTarget updates the chosen conversation shown on the left.
func (m statusModel) SetTarget(name string) statusModel {
	m.target = name
	return m
}

// SetUserName updates the logged-in account shown on the right.
func (m statusModel) SetUserName(name string) statusModel {
	m.userName = name
	return m
}

// View renders a full-width status bar:
// [STATUS pill] [target] ... [user] [time pill]
func (m statusModel) View() string {
	pillBg := statusPillBgOff
	if m.busy {
		pillBg = statusPillBg
	}
	pill := lipgloss.NewStyle().
		Background(pillBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1).
		Render(strings.ToUpper(m.text))

	target := ""
	if m.target != "" {
		target = lipgloss.NewStyle().
			Background(statusBarBg).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1).
			Render("→ " + m.target)
	}

	user := ""
	if m.userName != "" {
		user = lipgloss.NewStyle().
			Background(lipgloss.Color("#7B5EA7")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1).
			Render(m.userName)
	}

	timePill := lipgloss.NewStyle().
		Background(statusTimeBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1).
		Render(time.Now().Format("15:04"))

	left := pill + target
	right := user + timePill

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Background(statusBarBg).
		Render(strings.Repeat(" ", gap))

	return lipgloss.NewStyle().
		Background(statusBarBg).
		Width(m.width).
		Render(left + filler + right)
}
