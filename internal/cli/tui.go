package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// StatusModel - Live status view
// =============================================================================

// statusFetcher loads a fresh status report.
type statusFetcher func(ctx context.Context) (*orchestrator.StatusReport, error)

type (
	statusMsg struct {
		report *orchestrator.StatusReport
		err    error
	}
	tickMsg time.Time
)

// StatusModel is the bubbletea model behind "status --watch". It refreshes
// the report every interval and lets the user move a cursor over the
// resources.
type StatusModel struct {
	ctx      context.Context
	fetch    statusFetcher
	interval time.Duration
	now      func() time.Time

	Report  *orchestrator.StatusReport
	Err     error
	Cursor  int
	Height  int
	Offset  int
	Updated time.Time
}

// NewStatusModel creates a watch model that polls fetch.
func NewStatusModel(ctx context.Context, fetch statusFetcher, interval time.Duration) StatusModel {
	if interval <= 0 {
		interval = time.Second
	}
	return StatusModel{
		ctx:      ctx,
		fetch:    fetch,
		interval: interval,
		now:      time.Now,
		Height:   15,
	}
}

func (m StatusModel) Init() tea.Cmd {
	return m.refresh()
}

func (m StatusModel) refresh() tea.Cmd {
	return func() tea.Msg {
		report, err := m.fetch(m.ctx)
		return statusMsg{report: report, err: err}
	}
}

func (m StatusModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Report != nil && m.Cursor < len(m.Report.Resources)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	case statusMsg:
		m.Err = msg.err
		if msg.err == nil {
			m.Report = msg.report
			m.Updated = m.now()
			if n := len(m.Report.Resources); m.Cursor >= n {
				m.Cursor = max(n-1, 0)
			}
		}
		return m, m.tick()
	case tickMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		return m, m.refresh()
	}
	return m, nil
}

func (m StatusModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("stackscan status"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  r refresh  q quit"))
	b.WriteString("\n\n")

	if m.Err != nil {
		b.WriteString(styleIconError.Render(iconError) + " " + m.Err.Error())
		b.WriteString("\n\n")
	}
	if m.Report == nil {
		b.WriteString(listDimStyle.Render("loading..."))
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Report.Resources))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		r := m.Report.Resources[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, append([]string{cursor}, resourceRow(r)...))
	}

	t := newTable([]string{"", "Resource", "Status", "Findings", "Source", "Agent"}, rows, func(row, col int) lipgloss.Style {
		idx := m.Offset + row
		if idx >= len(m.Report.Resources) {
			return lipgloss.NewStyle()
		}
		r := m.Report.Resources[idx]
		switch {
		case col == 2:
			return statusStyle(string(r.Status))
		case idx == m.Cursor:
			return listSelectedStyle
		case col == 5:
			return listDimStyle
		}
		return lipgloss.NewStyle()
	})
	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(countsLine(m.Report.Counts))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d] updated %s",
		m.Cursor+1, len(m.Report.Resources), formatRelativeTime(m.Updated, m.now()))))

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

// resourceRow renders the status columns shared by the plain and live views.
func resourceRow(r orchestrator.ResourceStatus) []string {
	status := string(r.Status)
	if status == "" {
		status = "—"
	}
	count := "—"
	if r.Findings >= 0 {
		count = fmt.Sprintf("%d", r.Findings)
	}
	source := r.Source
	if source == "" {
		source = "—"
	}
	last := r.LastAgent
	if last == "" {
		last = "—"
	}
	return []string{r.Name, status, count, source, last}
}

// countsLine renders agent counts in lifecycle order, skipping zeros.
func countsLine(counts map[agent.Status]int) string {
	order := []agent.Status{
		agent.StatusPending, agent.StatusRunning, agent.StatusCompleted,
		agent.StatusFailed, agent.StatusTimedOut, agent.StatusCancelled,
	}
	var parts []string
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, statusStyle(string(s)).Render(fmt.Sprintf("%d %s", n, s)))
		}
	}
	if len(parts) == 0 {
		return listDimStyle.Render("no agents")
	}
	return strings.Join(parts, listDimStyle.Render(" · "))
}

func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}
