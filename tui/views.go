package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bassamadnan/mergemail/merge"
)

const maxVisibleRows = 12

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing terminal size..."
	}

	title := TitleStyle.Render(fmt.Sprintf(" mergemail — %s ", m.active))

	var banner string
	if m.countdown > 0 {
		banner = CountdownStyle.Render(fmt.Sprintf(" Sending in %d... press u to undo ", m.countdown))
	} else if m.executing {
		banner = CountdownStyle.Render(" Sending... ")
	}

	var body string
	switch m.active {
	case segData:
		body = m.renderData()
	case segTemplate:
		body = m.renderTemplate()
	case segPreview:
		body = m.renderPreview()
	case segAssistant:
		body = m.renderAssistant()
	}
	content := SegmentStyle.Width(max(m.width-2, 20)).Render(body)

	statusStyle := StatusBarNormalStyle
	if m.statusIsError {
		statusStyle = StatusBarErrorStyle
	} else if m.statusIsTemp {
		statusStyle = StatusBarSuccessStyle
	}
	status := statusStyle.Width(m.width).Render(m.statusBarText)

	parts := []string{title}
	if banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, content, status)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderData() string {
	if len(m.table.Recipients) == 0 {
		return DimStyle.Render("No recipients loaded. Use the 'load' command or restore a session.")
	}
	var b strings.Builder
	b.WriteString(HeaderKeyStyle.Render(strings.Join(m.table.Headers, " | ")))
	b.WriteString("\n")

	top := 0
	if m.selected >= maxVisibleRows {
		top = m.selected - maxVisibleRows + 1
	}
	end := min(top+maxVisibleRows, len(m.table.Recipients))
	for i := top; i < end; i++ {
		r := m.table.Recipients[i]
		cells := make([]string, len(m.table.Headers))
		for j, h := range m.table.Headers {
			cells[j] = truncate(r[h], 24)
		}
		line := strings.Join(cells, " | ")
		if i == m.selected {
			b.WriteString(SelectedRowStyle.Render("> " + line))
		} else {
			b.WriteString(NormalRowStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%s", DimStyle.Render(fmt.Sprintf("%d recipients", len(m.table.Recipients))))
	return b.String()
}

func (m Model) renderTemplate() string {
	var b strings.Builder
	b.WriteString(HeaderKeyStyle.Render("Subject: "))
	b.WriteString(m.tmpl.Subject)
	b.WriteString("\n\n")
	b.WriteString(m.tmpl.Body)
	b.WriteString("\n\n")
	if len(m.table.Headers) > 0 {
		placeholders := make([]string, len(m.table.Headers))
		for i, h := range m.table.Headers {
			placeholders[i] = "{{" + h + "}}"
		}
		b.WriteString(DimStyle.Render("Available: " + strings.Join(placeholders, " ")))
	}
	return b.String()
}

func (m Model) renderPreview() string {
	previews := merge.Preview(m.table.Recipients, m.tmpl, 0)
	if len(previews) == 0 {
		return DimStyle.Render("Nothing to preview yet.")
	}
	idx := m.selected
	if idx >= len(previews) {
		idx = len(previews) - 1
	}
	p := previews[idx]

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d / %d\n\n", DimStyle.Render("Preview"), idx+1, len(previews))
	b.WriteString(HeaderKeyStyle.Render("To:      "))
	b.WriteString(p.To)
	b.WriteString("\n")
	b.WriteString(HeaderKeyStyle.Render("Subject: "))
	b.WriteString(p.Subject)
	b.WriteString("\n\n")
	b.WriteString(p.Body)
	if !p.Sendable() {
		b.WriteString("\n\n")
		b.WriteString(StatusBarErrorStyle.Render(" this recipient will be skipped at send time "))
	}
	return b.String()
}

func (m Model) renderAssistant() string {
	var b strings.Builder
	start := 0
	if len(m.chat) > maxVisibleRows {
		start = len(m.chat) - maxVisibleRows
	}
	for _, line := range m.chat[start:] {
		prefix := ChatAssistantStyle.Render("assistant")
		if line.fromUser {
			prefix = ChatUserStyle.Render("you")
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, line.text)
	}
	if m.thinking {
		b.WriteString(DimStyle.Render("thinking...\n"))
	}
	fmt.Fprintf(&b, "\n> %s█", m.input)
	return b.String()
}

// truncate shortens a string to a max length, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
