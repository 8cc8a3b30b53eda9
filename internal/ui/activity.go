package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/progress"
	"charm.land/bubbles/v2/viewport"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/danhigham/tgupload/internal/upload"
)

// ActivityModel shows a running batch: overall and per-file bars, the
// status line and a log of finished files. Once the batch ends the log is
// replaced by a rendered summary.
type ActivityModel struct {
	overall  progress.Model
	item     progress.Model
	log      viewport.Model
	renderer *glamour.TermRenderer

	target   string
	status   string
	percent  float64
	current  upload.ItemProgress
	results  []upload.ItemCompleted
	finished *upload.Finished
	width    int
	height   int
}

func NewActivityModel() ActivityModel {
	return ActivityModel{
		overall: progress.New(progress.WithWidth(40)),
		item:    progress.New(progress.WithWidth(40)),
		log:     viewport.New(),
	}
}

// Reset clears the view for a new batch sent to target.
func (m ActivityModel) Reset(target string) ActivityModel {
	m.target = target
	m.status = "Starting..."
	m.percent = 0
	m.current = upload.ItemProgress{}
	m.results = nil
	m.finished = nil
	return m.refresh()
}

// Running reports whether a batch is in progress.
func (m ActivityModel) Running() bool {
	return m.target != "" && m.finished == nil
}

// Apply folds one engine event into the view.
func (m ActivityModel) Apply(ev upload.Event) ActivityModel {
	switch ev := ev.(type) {
	case upload.Status:
		m.status = ev.Text
	case upload.OverallProgress:
		m.percent = float64(ev.Percent) / 100
	case upload.ItemProgress:
		m.current = ev
	case upload.ItemCompleted:
		m.current = upload.ItemProgress{}
		m.results = append(m.results, ev)
	case upload.Finished:
		m.finished = &ev
		m.status = finishedHeadline(ev)
	}
	return m.refresh()
}

func (m ActivityModel) refresh() ActivityModel {
	if m.finished != nil {
		m.log.SetContent(m.render(SummaryMarkdown(m.target, *m.finished, m.results)))
	} else {
		lines := make([]string, len(m.results))
		for i, r := range m.results {
			mark := okStyle.Render("✓ ")
			if !r.OK {
				mark = errStyle.Render("✗ ")
			}
			lines[i] = mark + r.DisplayName + hintStyle.Render("  "+r.Note)
		}
		m.log.SetContent(strings.Join(lines, "\n"))
		m.log.GotoBottom()
	}
	return m
}

func (m ActivityModel) render(md string) string {
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func (m ActivityModel) SetSize(w, h int) ActivityModel {
	m.width = w
	m.height = h
	m.log.SetWidth(max(w, 1))
	m.log.SetHeight(max(h-7, 1))

	wordWrap := w - 4
	if wordWrap < 20 {
		wordWrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wordWrap),
	)
	if err == nil {
		m.renderer = r
	}
	return m.refresh()
}

func (m ActivityModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Uploading to " + m.target))
	b.WriteString("\n" + m.status + "\n\n")
	b.WriteString(labelStyle.Render("Batch") + m.overall.ViewAs(m.percent) + "\n")
	if m.current.Total > 0 {
		b.WriteString(labelStyle.Render("Current") + m.item.ViewAs(m.current.Percent/100))
		b.WriteString(hintStyle.Render(fmt.Sprintf("  %s  ETA %s", m.current.Speed, m.current.ETA)) + "\n")
		b.WriteString(hintStyle.Render(m.current.DisplayName) + "\n")
	} else {
		b.WriteString("\n\n")
	}
	b.WriteString(lipgloss.NewStyle().MarginTop(1).Render(m.log.View()))
	return b.String()
}

func finishedHeadline(f upload.Finished) string {
	switch {
	case f.Err != nil:
		return errStyle.Render("Upload failed: " + f.Err.Error())
	case f.Cancelled:
		return "Upload cancelled"
	default:
		return okStyle.Render("Upload finished")
	}
}

// SummaryMarkdown renders the result of a batch as markdown for glamour.
func SummaryMarkdown(target string, f upload.Finished, results []upload.ItemCompleted) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Upload to %s\n\n", target)
	if f.Err != nil {
		fmt.Fprintf(&b, "**Stopped:** %s\n\n", f.Err)
	}
	b.WriteString("| Result | Files |\n|---|---|\n")
	fmt.Fprintf(&b, "| Sent | %d |\n", f.Succeeded)
	fmt.Fprintf(&b, "| Failed | %d |\n", f.Failed)
	if f.Cancelled {
		fmt.Fprintf(&b, "| Interrupted | %d |\n", f.CancelledItems)
		b.WriteString("\nThe batch was cancelled before all files were sent.\n")
	}
	if len(results) > 0 {
		b.WriteString("\n## Files\n\n")
		for _, r := range results {
			mark := "sent"
			if !r.OK {
				mark = "**failed**"
			}
			fmt.Fprintf(&b, "- `%s` %s: %s\n", r.DisplayName, mark, r.Note)
		}
	}
	return b.String()
}
