package ui

import (
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
)

var (
	highlightColor = lipgloss.Color("#FF6B9D")
	dimColor       = lipgloss.Color("240")
	okColor        = lipgloss.Color("2")
	errColor       = lipgloss.Color("1")

	titleStyle  = lipgloss.NewStyle().Foreground(highlightColor).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(dimColor)
	okStyle     = lipgloss.NewStyle().Foreground(okColor)
	errStyle    = lipgloss.NewStyle().Foreground(errColor)
	labelStyle  = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("250"))
	activeLabel = labelStyle.Foreground(highlightColor).Bold(true)

	// Rainbow gradient colors for focused borders (wraps back to start).
	rainbowBlend = []color.Color{
		lipgloss.Color("#FF6B9D"), // pink
		lipgloss.Color("#9B59B6"), // purple
		lipgloss.Color("#3498DB"), // blue
		lipgloss.Color("#2ECC71"), // green
		lipgloss.Color("#FF6B9D"), // pink (wrap)
	}
)

// panel renders content in a rounded box, rainbow-bordered when focused.
func panel(content string, w, h int, focused bool) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(w).
		Height(h)
	if focused {
		style = style.BorderForegroundBlend(rainbowBlend...)
	} else {
		style = style.BorderForeground(dimColor)
	}
	return style.Render(truncateHeight(content, h-2))
}

// truncateHeight limits s to at most maxLines lines.
func truncateHeight(s string, maxLines int) string {
	if maxLines < 0 {
		maxLines = 0
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}
