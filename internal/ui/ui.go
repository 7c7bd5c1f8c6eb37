// Package ui provides a terminal UI for watching a chain execute.
// Uses Bubbletea to render live task progress from executor events.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/executor"
)

// TaskRow is one line in the task list.
type TaskRow struct {
	ID       string
	Type     string
	Status   chain.TaskStatus
	Duration time.Duration
}

// Styles holds lipgloss styles for the execution view.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	OK      lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style
	Border  lipgloss.Style
	HelpKey lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(highlight).MarginBottom(1),
		Label:   lipgloss.NewStyle().Foreground(subtle),
		Value:   lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(subtle),
		OK:      lipgloss.NewStyle().Foreground(green).Bold(true),
		Warn:    lipgloss.NewStyle().Foreground(yellow).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(red).Bold(true),
		Running: lipgloss.NewStyle().Foreground(blue).Bold(true),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1),
		HelpKey: lipgloss.NewStyle().Foreground(highlight).Bold(true),
	}
}

// EventMsg wraps an executor event for delivery into the Bubbletea loop.
type EventMsg struct {
	Event executor.Event
}

// Model holds the execution view state.
type Model struct {
	width  int
	height int

	chainName   string
	chainStatus chain.ChainStatus
	started     time.Time
	finished    time.Time
	completed   int
	total       int
	currentTask string
	lastError   string
	tasks       []TaskRow
	done        bool
	quitting    bool

	spin     spinner.Model
	progress progress.Model
	styles   *Styles

	onCancel func()
}

// Option configures the Model.
type Option func(*Model)

// WithCancel sets the callback invoked when the user presses c to
// cancel the running chain.
func WithCancel(fn func()) Option {
	return func(m *Model) {
		m.onCancel = fn
	}
}

// New creates an execution view for the given chain.
func New(c *chain.ReplayChain, opts ...Option) *Model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	rows := make([]TaskRow, 0, len(c.Nodes))
	for _, id := range c.ExecutionOrder {
		node := c.Node(id)
		if node == nil {
			continue
		}
		rows = append(rows, TaskRow{ID: node.ID, Type: node.Type, Status: chain.TaskPending})
	}

	m := &Model{
		width:       80,
		height:      24,
		chainName:   c.Name,
		chainStatus: c.Status,
		total:       len(rows),
		tasks:       rows,
		spin:        spin,
		progress:    progress.New(progress.WithDefaultGradient()),
		styles:      newStyles(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tea.EnterAltScreen)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if !m.done && m.onCancel != nil {
				m.onCancel()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 8
		return m, nil

	case EventMsg:
		return m.applyEvent(msg.Event)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// applyEvent folds an executor event into the view state.
func (m *Model) applyEvent(ev executor.Event) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case executor.EventChainStart:
		m.chainStatus = chain.ChainExecuting
		m.started = time.Now()
		return m, nil

	case executor.EventTaskStart:
		m.currentTask = ev.TaskType
		m.setTaskStatus(ev.TaskID, chain.TaskRunning, 0)
		return m, nil

	case executor.EventTaskEnd:
		m.completed = ev.Completed
		m.setTaskStatus(ev.TaskID, ev.TaskStatus, ev.Duration)
		if ev.Error != "" {
			m.lastError = ev.Error
		}
		if m.total > 0 {
			return m, m.progress.SetPercent(float64(m.completed) / float64(m.total))
		}
		return m, nil

	case executor.EventChainEnd:
		m.chainStatus = ev.ChainStatus
		m.finished = time.Now()
		m.currentTask = ""
		m.done = true
		if ev.Error != "" {
			m.lastError = ev.Error
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) setTaskStatus(id string, status chain.TaskStatus, d time.Duration) {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Status = status
			m.tasks[i].Duration = d
			return
		}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Replay: " + m.chainName))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Status: "))
	b.WriteString(m.statusStyle().Render(string(m.chainStatus)))
	if !m.done && m.chainStatus == chain.ChainExecuting {
		b.WriteString(" " + m.spin.View())
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Tasks:  "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d/%d", m.completed, m.total)))
	b.WriteString("\n")

	if !m.started.IsZero() {
		end := m.finished
		if end.IsZero() {
			end = time.Now()
		}
		b.WriteString(m.styles.Label.Render("Time:   "))
		b.WriteString(m.styles.Value.Render(end.Sub(m.started).Round(time.Second).String()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.progress.View())
	b.WriteString("\n\n")

	b.WriteString(m.renderTasks())

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Error.Render("error: " + m.lastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return m.styles.Border.Width(m.width - 4).Render(b.String())
}

func (m *Model) statusStyle() lipgloss.Style {
	switch m.chainStatus {
	case chain.ChainCompleted:
		return m.styles.OK
	case chain.ChainFailed:
		return m.styles.Error
	case chain.ChainCancelled:
		return m.styles.Warn
	case chain.ChainExecuting:
		return m.styles.Running
	default:
		return m.styles.Muted
	}
}

func (m *Model) renderTasks() string {
	var b strings.Builder
	for _, row := range m.tasks {
		var icon string
		var style lipgloss.Style
		switch row.Status {
		case chain.TaskRunning:
			icon = m.spin.View()
			style = m.styles.Running
		case chain.TaskCompleted:
			icon = "*"
			style = m.styles.OK
		case chain.TaskFailed:
			icon = "x"
			style = m.styles.Error
		case chain.TaskCancelled, chain.TaskSkipped:
			icon = "-"
			style = m.styles.Warn
		default:
			icon = "o"
			style = m.styles.Muted
		}

		line := fmt.Sprintf(" %s %s", style.Render(icon), row.Type)
		if row.Duration > 0 {
			line += m.styles.Muted.Render(fmt.Sprintf(" (%s)", row.Duration.Round(time.Millisecond)))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderHelp() string {
	items := []struct{ key, desc string }{
		{"c", "cancel chain"},
		{"q", "quit"},
	}
	var parts []string
	for _, it := range items {
		parts = append(parts, m.styles.HelpKey.Render(it.key)+" "+m.styles.Muted.Render(it.desc))
	}
	return strings.Join(parts, "  |  ")
}

// Run starts the view and returns the program so callers can Send
// executor events into it.
func (m *Model) Run() (*tea.Program, error) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		_, _ = p.Run()
	}()
	return p, nil
}
