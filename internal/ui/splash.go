package ui

import "charm.land/lipgloss/v2"

const banner = `
 _                          _                 _
| |_ __ _      _   _ _ __ | | ___   __ _  __| |
| __/ _` + "`" + ` |____| | | | '_ \| |/ _ \ / _` + "`" + ` |/ _` + "`" + ` |
| || (_| |____| |_| | |_) | | (_) | (_| | (_| |
 \__\__, |     \__,_| .__/|_|\___/ \__,_|\__,_|
    |___/           |_|`

// startGate is something the startup screen waits for.
type startGate uint8

const (
	gateMinTime startGate = 1 << iota
	gateSession
)

// startupSplash covers the terminal until every gate has cleared.
type startupSplash struct {
	pending       startGate
	width, height int
}

func newStartupSplash() startupSplash {
	return startupSplash{pending: gateMinTime | gateSession}
}

func (s startupSplash) clear(g startGate) startupSplash {
	s.pending &^= g
	return s
}

func (s startupSplash) resize(w, h int) startupSplash {
	s.width, s.height = w, h
	return s
}

func (s startupSplash) showing() bool {
	return s.pending != 0
}

func (s startupSplash) View() string {
	if !s.showing() || s.width == 0 || s.height == 0 {
		return ""
	}

	note := "starting..."
	if s.pending&gateSession != 0 {
		note = "checking saved session..."
	}
	body := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(banner),
		"",
		"video batches to Telegram",
		hintStyle.Render(note),
	)
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(dimColor).
		Padding(1, 4).
		Render(body)
	return lipgloss.Place(s.width, s.height, lipgloss.Center, lipgloss.Center, box)
}
