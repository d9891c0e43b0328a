// Package tui provides the live terminal dashboard for dispatch.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 2 * time.Second

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 2)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	blockedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)
)

var views = []string{"queue", "workers", "prs", "events"}

// App is the dashboard application model.
type App struct {
	client       *Client
	spinner      spinner.Model
	width        int
	height       int
	view         string
	daemonOnline bool
	loaded       bool
	fetchErr     string

	health  *HealthSummary
	queue   []QueueRow
	workers []WorkerRow
	prs     []PRRow
	events  []EventRow
}

// New creates the dashboard against the given API address.
func New(apiAddr string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return &App{
		client:  NewClient(apiAddr),
		spinner: sp,
		view:    "queue",
	}
}

// Run starts the dashboard.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type refreshMsg struct {
	health  *HealthSummary
	queue   []QueueRow
	workers []WorkerRow
	prs     []PRRow
	events  []EventRow
	err     error
}

type tickMsg struct{}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.refresh())
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "tab", "right", "l":
			a.view = nextView(a.view, 1)
		case "shift+tab", "left", "h":
			a.view = nextView(a.view, -1)
		case "1", "2", "3", "4":
			a.view = views[int(msg.String()[0]-'1')]
		case "r":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case refreshMsg:
		a.loaded = true
		if msg.err != nil {
			a.daemonOnline = false
			a.fetchErr = msg.err.Error()
		} else {
			a.daemonOnline = true
			a.fetchErr = ""
			a.health = msg.health
			a.queue = msg.queue
			a.workers = msg.workers
			a.prs = msg.prs
			a.events = msg.events
		}
		return a, a.tickCmd()

	case tickMsg:
		return a, a.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func nextView(current string, step int) string {
	for i, v := range views {
		if v == current {
			return views[(i+step+len(views))%len(views)]
		}
	}
	return views[0]
}

func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		health, err := a.client.Health()
		if err != nil {
			return refreshMsg{err: err}
		}
		queue, err := a.client.Queue()
		if err != nil {
			return refreshMsg{err: err}
		}
		workers, err := a.client.Workers()
		if err != nil {
			return refreshMsg{err: err}
		}
		prs, err := a.client.PendingPRs()
		if err != nil {
			return refreshMsg{err: err}
		}
		// Events may be disabled server-side; an empty slice is fine.
		events, err := a.client.Events(25)
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{health: health, queue: queue, workers: workers, prs: prs, events: events}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}

	header := titleStyle.Render("DISPATCH Orchestrator")
	header += "  " + daemonStatus
	if a.health != nil {
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(
			fmt.Sprintf("[%d workers]", a.health.Workers.Total))
		if a.health.Blocked {
			header += "  " + blockedStyle.Render("⛔ QUEUE BLOCKED")
		}
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	b.WriteString(a.renderTabs() + "\n\n")

	contentHeight := a.height - 9
	if contentHeight < 5 {
		contentHeight = 5
	}

	switch {
	case !a.loaded:
		b.WriteString(fmt.Sprintf("\n  %s Connecting...\n", a.spinner.View()))
	case a.fetchErr != "":
		b.WriteString("\n" + rowStyle.Render(offlineStyle.Render("Error: "+a.fetchErr)) + "\n")
	default:
		switch a.view {
		case "queue":
			b.WriteString(a.renderQueue(contentHeight))
		case "workers":
			b.WriteString(a.renderWorkers(contentHeight))
		case "prs":
			b.WriteString(a.renderPRs(contentHeight))
		case "events":
			b.WriteString(a.renderEvents(contentHeight))
		}
	}

	b.WriteString("\n")

	var counts string
	if a.health != nil {
		counts = fmt.Sprintf(" pending:%d in-progress:%d done:%d prs:%d |",
			a.health.Queue.Pending, a.health.Queue.InProgress, a.health.Queue.Completed, len(a.prs))
	}
	status := fmt.Sprintf("%s Tab:switch | 1-4:views | r:refresh | q:quit", counts)
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderTabs() string {
	var tabs []string
	for _, v := range views {
		if v == a.view {
			tabs = append(tabs, activeTabStyle.Render(strings.ToUpper(v)))
		} else {
			tabs = append(tabs, tabStyle.Render(strings.ToUpper(v)))
		}
	}
	return " " + strings.Join(tabs, " ")
}

func (a *App) renderQueue(height int) string {
	if len(a.queue) == 0 {
		return rowStyle.Render("Queue is empty.") + "\n"
	}

	var lines []string
	for _, item := range a.queue {
		status := formatStatus(item.Status)
		line := fmt.Sprintf("%s  %s#%-5d %-40s", status, item.Repository, item.IssueNumber, truncate(item.Title, 40))
		if item.AssignedTo != "" {
			line += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(item.AssignedTo)
		}
		if item.RetryCount > 0 {
			line += lipgloss.NewStyle().Foreground(warningColor).Render(fmt.Sprintf("  retry:%d", item.RetryCount))
		}
		lines = append(lines, rowStyle.Render(line))
	}
	return clip(lines, height)
}

func (a *App) renderWorkers(height int) string {
	if len(a.workers) == 0 {
		return rowStyle.Render("No workers have registered.") + "\n"
	}

	var lines []string
	for _, w := range a.workers {
		marker := onlineStyle.Render("●")
		if !w.Active {
			marker = offlineStyle.Render("○")
		}
		task := "idle"
		if w.CurrentTask != 0 {
			task = fmt.Sprintf("issue #%d", w.CurrentTask)
		}
		lines = append(lines, rowStyle.Render(
			fmt.Sprintf("%s %-30s %-14s completed:%d", marker, w.WorkerID, task, w.TotalTasks)))
	}
	return clip(lines, height)
}

func (a *App) renderPRs(height int) string {
	if len(a.prs) == 0 {
		return rowStyle.Render("No pull requests awaiting review.") + "\n"
	}

	var lines []string
	for _, pr := range a.prs {
		lines = append(lines, rowStyle.Render(
			fmt.Sprintf("#%-5d %-20s %s", pr.IssueNumber, pr.WorkerID, pr.PRURL)))
	}
	return clip(lines, height)
}

func (a *App) renderEvents(height int) string {
	if len(a.events) == 0 {
		return rowStyle.Render("No recent events.") + "\n"
	}

	var lines []string
	for _, e := range a.events {
		line := fmt.Sprintf("%-22s", e.Action)
		if e.IssueNumber != 0 {
			line += fmt.Sprintf(" %s#%d", e.Repository, e.IssueNumber)
		}
		if e.WorkerID != "" {
			line += " " + e.WorkerID
		}
		if e.Details != "" {
			line += "  " + lipgloss.NewStyle().Foreground(mutedColor).Render(truncate(e.Details, 50))
		}
		lines = append(lines, rowStyle.Render(line))
	}
	return clip(lines, height)
}

func formatStatus(status string) string {
	switch status {
	case "pending":
		return lipgloss.NewStyle().Foreground(mutedColor).Render("○ PEND")
	case "in_progress":
		return lipgloss.NewStyle().Foreground(warningColor).Render("◐ WORK")
	case "completed":
		return onlineStyle.Render("● DONE")
	case "failed":
		return offlineStyle.Render("✗ FAIL")
	default:
		return status
	}
}

// truncate shortens s to at most n runes. It counts runes, not bytes,
// so a multibyte character never gets cut in half.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func clip(lines []string, height int) string {
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n") + "\n"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
