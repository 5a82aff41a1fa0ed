// Package tui is a terminal monitor for a running daemon. It reads run
// history and logs from the daemon's SQLite file and queues operator
// commands into the same file.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"autoria_scraper/models"
)

// Store is the slice of storage.SQLiteStore the monitor needs.
type Store interface {
	RecentRuns(limit int) ([]models.ScrapeRun, error)
	RecentLogs(limit int, level *models.LogLevel) ([]models.ScrapeLog, error)
	EnqueueCommand(cmd models.CommandType) (int64, error)
}

type tab int

const (
	tabRuns tab = iota
	tabLogs
)

const (
	runLimit = 20
	logLimit = 200
)

var logLevels = append([]models.LogLevel{""}, models.LogLevels...)

type dataMsg struct {
	runs []models.ScrapeRun
	logs []models.ScrapeLog
	err  error
}

type tickMsg time.Time

type Model struct {
	store         Store
	activeTab     tab
	width, height int
	levelIndex    int

	runs []models.ScrapeRun
	logs []models.ScrapeLog
	err  error

	notification string
	notifyUntil  time.Time
	now          func() time.Time
}

func NewModel(store Store) Model {
	return Model{store: store, now: time.Now}
}

// Run blocks until the user quits.
func Run(store Store) error {
	_, err := tea.NewProgram(NewModel(store), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	store := m.store
	var level *models.LogLevel
	if l := logLevels[m.levelIndex]; l != "" {
		level = &l
	}
	return func() tea.Msg {
		runs, err := store.RecentRuns(runLimit)
		if err != nil {
			return dataMsg{err: err}
		}
		logs, err := store.RecentLogs(logLimit, level)
		return dataMsg{runs: runs, logs: logs, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % 2
		case "r":
			return m, m.refresh()
		case "s":
			m = m.enqueue(models.CmdScrapeNow, "Scrape command sent!")
		case "d":
			m = m.enqueue(models.CmdDumpNow, "Dump command sent!")
		case "p":
			m = m.enqueue(models.CmdPause, "Pause command sent!")
		case "c":
			m = m.enqueue(models.CmdResume, "Resume command sent!")
		case "left", "h":
			if m.activeTab == tabLogs && m.levelIndex > 0 {
				m.levelIndex--
				return m, m.refresh()
			}
		case "right", "l":
			if m.activeTab == tabLogs && m.levelIndex < len(logLevels)-1 {
				m.levelIndex++
				return m, m.refresh()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.refresh(), tickCmd())

	case dataMsg:
		m.err = msg.err
		if msg.err == nil {
			m.runs = msg.runs
			m.logs = msg.logs
		}
	}
	return m, nil
}

func (m Model) enqueue(cmd models.CommandType, notice string) Model {
	if _, err := m.store.EnqueueCommand(cmd); err != nil {
		notice = fmt.Sprintf("Failed to queue %s: %v", cmd, err)
	}
	m.notification = notice
	m.notifyUntil = m.now().Add(2 * time.Second)
	return m
}

func (m Model) View() string {
	var content string
	switch m.activeTab {
	case tabRuns:
		content = m.viewRuns()
	case tabLogs:
		content = m.viewLogs()
	}
	if m.err != nil {
		content = StatusError.Render("Error: "+m.err.Error()) + "\n" + content
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), content, m.renderStatusBar())
}

func (m Model) renderTabs() string {
	var rendered []string
	for i, name := range []string{"Runs", "Logs"} {
		if tab(i) == m.activeTab {
			rendered = append(rendered, TabActive.Render(name))
		} else {
			rendered = append(rendered, TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m Model) viewRuns() string {
	if len(m.runs) == 0 {
		return Title.Render("Recent runs") + "\n" + Muted.Render("No runs yet")
	}

	lines := []string{
		Title.Render("Recent runs"),
		TableHeader.Render(fmt.Sprintf("%-19s  %-10s  %8s  %6s  %7s  %6s  %s",
			"Started", "Status", "URLs", "Saved", "Skipped", "Errors", "Duration")),
	}
	for _, run := range m.runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		line := fmt.Sprintf("%-19s  %-10s  %8d  %6d  %7d  %6d  %s",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Status,
			run.URLsFound, run.ListingsSaved, run.ListingsSkipped, run.ErrorsCount, duration)
		lines = append(lines, statusStyle(run.Status).Render(line))
	}
	return strings.Join(lines, "\n")
}

func statusStyle(status models.RunStatus) lipgloss.Style {
	switch status {
	case models.RunStatusCompleted:
		return StatusSuccess
	case models.RunStatusFailed:
		return StatusError
	default:
		return StatusPending
	}
}

func (m Model) viewLogs() string {
	var filter []string
	for i, level := range logLevels {
		name := level.Label()
		if i == m.levelIndex {
			filter = append(filter, TabActive.Render("["+name+"]"))
		} else {
			filter = append(filter, TabInactive.Render(name))
		}
	}

	lines := []string{Title.Render("Logs"), "Filter: " + strings.Join(filter, " ") + "  (←/→ to change)", ""}
	if len(m.logs) == 0 {
		return strings.Join(append(lines, Muted.Render("No logs")), "\n")
	}

	visible := len(m.logs)
	if m.height > 8 && visible > m.height-8 {
		visible = m.height - 8
	}
	for _, l := range m.logs[:visible] {
		lines = append(lines, m.formatLog(l))
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatLog(l models.ScrapeLog) string {
	var levelStyle lipgloss.Style
	switch l.Level {
	case models.LogLevelInfo:
		levelStyle = StatusSuccess
	case models.LogLevelWarn:
		levelStyle = StatusPending
	case models.LogLevelError:
		levelStyle = StatusError
	default:
		levelStyle = lipgloss.NewStyle()
	}

	msg := l.Message
	if r, maxLen := []rune(msg), m.width-25; maxLen > 3 && len(r) > maxLen {
		msg = string(r[:maxLen-3]) + "..."
	}

	return fmt.Sprintf("%s %s %s",
		Muted.Render(l.Timestamp.Local().Format("15:04:05")),
		levelStyle.Render(fmt.Sprintf("%-5s", l.Level.Label())),
		msg,
	)
}

func (m Model) renderStatusBar() string {
	left := "tab Switch  r Refresh  s Scrape  d Dump  p Pause  c Resume  q Quit"
	right := ""
	if m.now().Before(m.notifyUntil) {
		right = Notification.Render(m.notification)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}

	return StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}
