// Package monitor is the relaymon terminal UI: harness status, relay log
// tail, prompt preview, and the latest run-journal record.
package monitor

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"relaygent/internal/config"
	"relaygent/internal/store"
)

const (
	refreshInterval  = 2 * time.Second
	logTailLines     = 500
	minContentHeight = 4
	chromeLines      = 3
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sessionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))

	statusStyles = map[string]lipgloss.Style{
		"working":  lipgloss.NewStyle().Foreground(lipgloss.Color("70")).Bold(true),
		"sleeping": lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true),
		"crashed":  lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		"off":      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true),
	}
	statusUnknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
)

type tickMsg time.Time

type statusChangedMsg struct{}

type Model struct {
	statusPath  string
	logPath     string
	promptPath  string
	journalPath string

	viewport viewport.Model
	width    int
	height   int

	status     string
	record     *store.RunRecord
	logLines   []string
	showPrompt bool
	notice     string

	watch *statusWatcher
}

func NewModel(cfg config.Config) (*Model, error) {
	statusPath, err := cfg.StatusPath()
	if err != nil {
		return nil, err
	}
	logPath, err := cfg.RelayLogPath()
	if err != nil {
		return nil, err
	}
	promptPath, err := cfg.PromptPath()
	if err != nil {
		return nil, err
	}
	journalPath, err := cfg.JournalPath()
	if err != nil {
		return nil, err
	}

	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(minContentHeight))
	vp.SetContent("Waiting for relay log...")

	return &Model{
		statusPath:  statusPath,
		logPath:     logPath,
		promptPath:  promptPath,
		journalPath: journalPath,
		viewport:    vp,
		status:      "unknown",
		width:       80,
		height:      minContentHeight + chromeLines,
	}, nil
}

func Run(cfg config.Config) error {
	model, err := NewModel(cfg)
	if err != nil {
		return err
	}
	model.watch, err = newStatusWatcher(model.statusPath)
	if err == nil {
		defer model.watch.Close()
	} else {
		model.notice = "status watch unavailable: " + err.Error()
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Init() tea.Cmd {
	m.refresh()
	cmds := []tea.Cmd{tickCmd()}
	if m.watch != nil {
		cmds = append(cmds, m.watch.waitCmd())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tickMsg:
		m.refresh()
		return m, tickCmd()
	case statusChangedMsg:
		m.readStatus()
		if m.watch != nil {
			return m, m.watch.waitCmd()
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.showPrompt = !m.showPrompt
			m.setViewportContent()
			return m, nil
		case "c":
			m.copySessionID()
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m *Model) headerView() string {
	style, ok := statusStyles[m.status]
	if !ok {
		style = statusUnknownStyle
	}
	header := titleStyle.Render("relaygent") + "  " + style.Render(m.status)
	if m.record != nil {
		header += "  " + sessionStyle.Render(shortID(m.record.SessionID))
		header += noticeStyle.Render(fmt.Sprintf("  %s  ctx %.0f%%", m.record.Outcome, m.record.ContextPct))
	}
	return header
}

func (m *Model) footerView() string {
	help := helpStyle.Render("q quit · p prompt · c copy session · r refresh · ↑/↓ scroll")
	if m.notice != "" {
		return help + "  " + noticeStyle.Render(m.notice)
	}
	return help
}

func (m *Model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width = width
	m.height = height
	content := height - chromeLines
	if content < minContentHeight {
		content = minContentHeight
	}
	m.viewport.SetWidth(width)
	m.viewport.SetHeight(content)
	m.setViewportContent()
}

func (m *Model) refresh() {
	m.readStatus()
	m.logLines = tailFile(m.logPath, logTailLines)
	if record, ok, err := store.LatestRun(m.journalPath); err == nil && ok {
		m.record = record
	}
	m.setViewportContent()
}

func (m *Model) readStatus() {
	data, err := os.ReadFile(m.statusPath)
	if err != nil {
		m.status = "off"
		return
	}
	status := strings.TrimSpace(string(data))
	if status == "" {
		status = "unknown"
	}
	m.status = status
}

func (m *Model) setViewportContent() {
	if m.showPrompt {
		m.viewport.SetContent(m.promptView())
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	lines := make([]string, 0, len(m.logLines))
	for _, line := range m.logLines {
		lines = append(lines, truncateLine(line, width))
	}
	if len(lines) == 0 {
		m.viewport.SetContent("Waiting for relay log...")
		return
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) promptView() string {
	data, err := os.ReadFile(m.promptPath)
	if err != nil {
		return "No prompt file at " + m.promptPath
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	return renderMarkdown(string(data), width)
}

func (m *Model) copySessionID() {
	if m.record == nil || m.record.SessionID == "" {
		m.notice = "no session to copy"
		return
	}
	if err := copyText(m.record.SessionID); err != nil {
		m.notice = "copy failed: " + err.Error()
		return
	}
	m.notice = "session id copied"
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
