package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"orchat/internal/turn"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	thoughtStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	activeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	reviewStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	logStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (m model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.fatal != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render("fatal: " + m.fatal.Error())
	}
	if m.loading {
		return lipgloss.NewStyle().Padding(1, 2).Render("loading…")
	}

	leftW, rightW := m.paneWidths()

	left := m.renderConversation(leftW)
	right := m.renderActivity(rightW, m.height)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *model) paneWidths() (leftW, rightW int) {
	rightW = clamp(24, m.width/3, 48)
	leftW = max(0, m.width-rightW)
	return leftW, rightW
}

func (m *model) resize() {
	leftW, _ := m.paneWidths()
	headerH := 1
	inputH := 2
	m.viewport.Width = max(0, leftW-2)
	m.viewport.Height = max(0, m.height-headerH-inputH)
}

func (m *model) renderConversation(width int) string {
	header := headingStyle.Render(" orchat") + "  " + doneStyle.Render("thread "+m.controller.ThreadID())

	status := ""
	switch {
	case m.busy():
		status = noticeStyle.Render(m.spinner() + " thinking… (Esc to interrupt)")
	case m.phase == turn.PhaseAwaitingDecision:
		status = reviewStyle.Render("review required: Enter approves, typed text requests changes")
	case m.notice != "":
		status = noticeStyle.Render(m.notice)
	}

	inputLine := m.input.View()
	if status != "" {
		inputLine = status + "\n" + m.input.View()
	} else {
		inputLine = "\n" + inputLine
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), inputLine)
}

// rerender rebuilds the viewport content from history plus the live turn.
func (m *model) rerender() {
	width := max(10, m.viewport.Width-2)

	var lines []string
	addWrapped := func(prefix string, style lipgloss.Style, text string) {
		lines = append(lines, wrapPrefixedLines(prefix, style, text, width)...)
	}
	addBlank := func() {
		if len(lines) == 0 || strings.TrimSpace(lines[len(lines)-1]) != "" {
			lines = append(lines, "")
		}
	}

	for _, e := range m.history {
		switch e.Role {
		case "user":
			addWrapped("You: ", userStyle, e.Content)
		default:
			if m.showThoughts && e.Thoughts != "" {
				addWrapped("  …  ", thoughtStyle, e.Thoughts)
			}
			addWrapped("AI:  ", assistantStyle, e.Content)
		}
		addBlank()
	}

	// The in-flight (or suspended) turn renders from the live snapshot.
	if m.question != "" {
		addWrapped("You: ", userStyle, m.question)
		addBlank()
	}
	if m.showThoughts && m.snapshot.Thoughts != "" {
		addWrapped("  …  ", thoughtStyle, m.snapshot.Thoughts)
	}
	if m.snapshot.Response != "" {
		addWrapped("AI:  ", assistantStyle, m.snapshot.Response)
	}
	if p := m.snapshot.Interrupt; p != nil {
		addBlank()
		addWrapped("REVIEW: ", reviewStyle, p.Content)
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.stickToBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) renderActivity(width, height int) string {
	inner := max(10, width-2)

	var b strings.Builder
	b.WriteString(headingStyle.Render("Agents"))
	b.WriteString("\n")

	if len(m.snapshot.Agents) == 0 {
		b.WriteString(doneStyle.Render("(idle)"))
		b.WriteString("\n")
	}
	for _, ag := range m.snapshot.Agents {
		name := ag.ID
		style := doneStyle
		switch {
		case ag.Active && !ag.Finalized:
			name = m.spinner() + " " + name
			style = activeStyle
		case !ag.Finalized:
			style = assistantStyle
		}
		b.WriteString(style.Render(name))
		b.WriteString("\n")
		for _, tool := range ag.Tools {
			b.WriteString(toolStyle.Render("  ⚙ " + runewidth.Truncate(tool, inner-4, "…")))
			b.WriteString("\n")
		}
		if preview := strings.TrimSpace(ag.Preview); preview != "" {
			for _, line := range strings.Split(wrapText(preview, inner-2), "\n") {
				b.WriteString("  " + doneStyle.Render(line))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	if len(m.snapshot.ProcessLog) > 0 {
		b.WriteString(headingStyle.Render("Steps"))
		b.WriteString("\n")
		for _, step := range m.snapshot.ProcessLog {
			b.WriteString(logStyle.Render(runewidth.Truncate("• "+step, inner, "…")))
			b.WriteString("\n")
		}
	}

	pane := lipgloss.NewStyle().
		Width(inner).
		Height(max(0, height-2)).
		MaxHeight(height).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, false, true)
	return pane.Render(strings.TrimRight(b.String(), "\n"))
}

func wrapPrefixedLines(prefix string, style lipgloss.Style, text string, width int) []string {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	prefixWidth := runewidth.StringWidth(prefix)
	contentWidth := max(10, width-prefixWidth)
	wrapped := wrapText(text, contentWidth)

	lines := strings.Split(wrapped, "\n")
	out := make([]string, 0, len(lines))
	indent := strings.Repeat(" ", prefixWidth)
	for i, line := range lines {
		if i == 0 {
			out = append(out, style.Render(prefix+line))
			continue
		}
		out = append(out, style.Render(indent+line))
	}
	return out
}

// wrapText hard-wraps by display width, breaking overlong words.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		out = append(out, wrapLine(raw, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var out []string
	cur := ""
	flush := func() {
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
	}
	for _, word := range words {
		for runewidth.StringWidth(word) > width {
			flush()
			head := runewidth.Truncate(word, width, "")
			out = append(out, head)
			word = strings.TrimPrefix(word, head)
		}
		switch {
		case cur == "":
			cur = word
		case runewidth.StringWidth(cur)+1+runewidth.StringWidth(word) <= width:
			cur += " " + word
		default:
			flush()
			cur = word
		}
	}
	flush()
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func clamp(lo, v, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// statusLine is the footer hint shown by plain (non-TUI) mode.
func statusLine(phase turn.Phase) string {
	return fmt.Sprintf("[%s]", phase)
}
