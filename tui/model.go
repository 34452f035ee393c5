package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/bassamadnan/mergemail/assistant"
	"github.com/bassamadnan/mergemail/config"
	"github.com/bassamadnan/mergemail/merge"
	"github.com/bassamadnan/mergemail/send"
)

type segment int

const (
	segData segment = iota
	segTemplate
	segPreview
	segAssistant
	segmentCount
)

func (s segment) String() string {
	switch s {
	case segData:
		return "data"
	case segTemplate:
		return "template"
	case segPreview:
		return "preview"
	case segAssistant:
		return "assistant"
	}
	return "unknown"
}

type chatLine struct {
	fromUser bool
	text     string
}

// Model is the bubbletea model for the merge dashboard. It owns the
// working table and template; the core packages only ever see snapshots.
type Model struct {
	cfg         *config.Manager
	sessionPath string

	table merge.Table
	tmpl  merge.Template
	gate  *send.Gate
	asst  *assistant.Assistant
	actor string

	active     segment
	selected   int // data row / preview index
	confirming bool
	countdown  int
	executing  bool

	chat      []chatLine
	input     string
	thinking  bool
	lastDraft string

	width, height int
	statusBarText string
	statusIsError bool
	statusIsTemp  bool
}

// NewModel seeds the dashboard. A restored session, if any, wins over the
// configured default template.
func NewModel(cfg *config.Manager, sessionPath string, gate *send.Gate, asst *assistant.Assistant, actor string) Model {
	settings := cfg.Get()
	m := Model{
		cfg:         cfg,
		sessionPath: sessionPath,
		gate:        gate,
		asst:        asst,
		actor:       actor,
		tmpl:        merge.Template{Subject: settings.Defaults.Subject, Body: settings.Defaults.Body},
		active:      segData,
		chat: []chatLine{{text: "Hello! I'm ready to help. Ask me to 'get stats', " +
			"'preview emails', 'send emails' or 'draft an email'."}},
		statusBarText: "Loaded. Tab switches panes.",
	}
	if sess, ok, err := config.LoadSession(sessionPath); err != nil {
		log.Warn("unable to restore session", "err", err)
	} else if ok {
		m.table = merge.Table{Headers: sess.Headers, Recipients: sess.Recipients}
		if sess.Subject != "" {
			m.tmpl.Subject = sess.Subject
		}
		if sess.Body != "" {
			m.tmpl.Body = sess.Body
		}
		m.statusBarText = fmt.Sprintf("Session restored: %d recipients.", len(sess.Recipients))
	}
	return m
}

// SetTable replaces the working recipient table before the program starts.
func (m *Model) SetTable(tbl merge.Table) {
	m.table = tbl
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForGateEventCmd(m.gate.Events()),
		statusTickCmd(1*time.Second),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case GateEventMsg:
		ev := send.Event(msg)
		switch ev.Kind {
		case send.EventTick:
			m.countdown = ev.Remaining
			m.updateStatusBar(fmt.Sprintf("Sending in %ds — press u to undo", ev.Remaining))
		case send.EventCancelled:
			m.countdown = 0
			m.showTemporaryStatus("Send cancelled.", 4*time.Second, &cmds)
		case send.EventExecuting:
			m.countdown = 0
			m.executing = true
			m.updateStatusBar("Sending...")
		case send.EventDone:
			m.executing = false
			m.showTemporaryStatus(
				fmt.Sprintf("Send complete: %d succeeded, %d failed.", ev.Summary.Sent, ev.Summary.Failed),
				8*time.Second, &cmds)
			m.chat = append(m.chat, chatLine{text: summarizeResults(ev.Results)})
		}
		cmds = append(cmds, waitForGateEventCmd(m.gate.Events()))

	case AssistantReplyMsg:
		m.thinking = false
		if msg.Err != nil {
			m.chat = append(m.chat, chatLine{text: fmt.Sprintf("Sorry, I ran into an issue: %v", msg.Err)})
			break
		}
		m.chat = append(m.chat, chatLine{text: msg.Response.Text})
		for _, p := range msg.Response.Previews {
			m.chat = append(m.chat, chatLine{text: fmt.Sprintf("  -> %s | %s", p.To, p.Subject)})
		}
		if msg.Response.Draft != "" {
			m.lastDraft = msg.Response.Draft
			m.chat = append(m.chat, chatLine{text: "(ctrl+a applies this draft to the template body)"})
		}
		if msg.Response.SendRequested {
			m.confirming = true
		}

	case StatusTickMsg:
		if !m.statusIsTemp && !m.confirming && m.countdown == 0 && !m.executing {
			m.setStandardStatus()
		}
		cmds = append(cmds, statusTickCmd(1*time.Second))

	case clearTempStatusMsg:
		if m.statusIsTemp {
			m.statusIsTemp = false
			m.setStandardStatus()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	key := msg.String()

	// Keys that work everywhere.
	switch key {
	case "ctrl+c":
		m.saveSession()
		return m, tea.Quit
	case "tab":
		m.active = (m.active + 1) % segmentCount
		m.selected = 0
		m.setStandardStatus()
		return m, nil
	}

	// Confirmation prompt swallows everything until answered.
	if m.confirming {
		switch key {
		case "y", "Y":
			m.confirming = false
			if err := m.gate.Confirm(context.Background()); err != nil {
				m.updateStatusError(fmt.Sprintf("Unable to start: %v", err))
			}
		case "n", "N", "esc":
			m.confirming = false
			if err := m.gate.Decline(); err != nil {
				log.Warn("decline failed", "err", err)
			}
			m.showTemporaryStatus("Send declined.", 3*time.Second, &cmds)
		}
		return m, tea.Batch(cmds...)
	}

	// Undo window while counting down.
	if m.countdown > 0 {
		if key == "u" || key == "U" || key == "esc" {
			if err := m.gate.Cancel(); err != nil {
				m.updateStatusError(fmt.Sprintf("Cannot cancel: %v", err))
			}
		}
		return m, nil
	}

	if m.active == segAssistant {
		return m.updateAssistantKeys(msg)
	}

	switch key {
	case "q":
		m.saveSession()
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < m.maxSelectable() {
			m.selected++
		}
	case "s":
		m.requestSend(&cmds)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateAssistantKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.input)
		if text == "" || m.thinking {
			return m, nil
		}
		m.chat = append(m.chat, chatLine{fromUser: true, text: text})
		m.input = ""
		m.thinking = true
		return m, askAssistantCmd(m.asst, text, m.table, m.tmpl, m.actor)
	case "ctrl+a":
		if m.lastDraft != "" {
			m.tmpl.Body = m.lastDraft
			m.lastDraft = ""
			m.updateStatusBar("Draft applied to template body.")
		}
		return m, nil
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	case "esc":
		m.input = ""
		return m, nil
	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		case tea.KeySpace:
			m.input += " "
		}
		return m, nil
	}
}

func (m *Model) requestSend(cmds *[]tea.Cmd) {
	sendable, unaddressed := merge.SplitSendable(m.table.Recipients)
	err := m.gate.Request(m.table.Recipients, m.tmpl, m.actor)
	if err != nil {
		m.updateStatusError(fmt.Sprintf("Cannot send: %v", err))
		return
	}
	m.confirming = true
	prompt := fmt.Sprintf("Send %d emails? [y/n]", len(sendable))
	if len(unaddressed) > 0 {
		prompt = fmt.Sprintf("Send %d emails (%d skipped, no address)? [y/n]", len(sendable), len(unaddressed))
	}
	m.updateStatusBar(prompt)
	_ = cmds
}

func (m Model) maxSelectable() int {
	switch m.active {
	case segData, segPreview:
		if len(m.table.Recipients) == 0 {
			return 0
		}
		return len(m.table.Recipients) - 1
	}
	return 0
}

func (m *Model) saveSession() {
	sess := config.Session{
		Headers:       m.table.Headers,
		Recipients:    m.table.Recipients,
		Subject:       m.tmpl.Subject,
		Body:          m.tmpl.Body,
		ActiveSegment: m.active.String(),
	}
	if err := config.SaveSession(m.sessionPath, sess); err != nil {
		log.Warn("unable to save session", "err", err)
	}
}

func (m *Model) showTemporaryStatus(text string, duration time.Duration, cmds *[]tea.Cmd) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = true
	*cmds = append(*cmds, tea.Tick(duration, func(t time.Time) tea.Msg {
		return clearTempStatusMsg{}
	}))
}

func (m *Model) updateStatusBar(text string) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = false
}

func (m *Model) updateStatusError(text string) {
	m.statusBarText = text
	m.statusIsError = true
	m.statusIsTemp = false
}

func (m *Model) setStandardStatus() {
	if m.statusIsTemp {
		return
	}
	keyHints := "[Tab]:Pane [S]:Send [Q/Ctrl+C]:Quit"
	if m.active == segAssistant {
		keyHints = "[Tab]:Pane [Enter]:Ask [Ctrl+C]:Quit"
	}
	m.updateStatusBar(fmt.Sprintf(" %s | %d recipients | %s",
		m.active, len(m.table.Recipients), keyHints))
}

func summarizeResults(results []send.SendResult) string {
	var b strings.Builder
	s := send.Summarize(results)
	fmt.Fprintf(&b, "Send finished: %d succeeded, %d failed.", s.Sent, s.Failed)
	for _, r := range results {
		if r.Status == send.StatusError {
			fmt.Fprintf(&b, "\n  %s: %s", r.Email, r.Error)
		}
	}
	return b.String()
}
