// Package tui implements the live billing block monitor.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theirongolddev/ccmeter/internal/cli"
	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
)

const refreshInterval = 15 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(cli.ColorText)
	accentStyle = lipgloss.NewStyle().Foreground(cli.ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(cli.ColorTextMuted)
	errStyle    = lipgloss.NewStyle().Foreground(cli.ColorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(cli.ColorOrange)
	overStyle   = lipgloss.NewStyle().Bold(true).Foreground(cli.ColorRed)
	gaugeOn     = lipgloss.NewStyle().Foreground(cli.ColorGreen)
	gaugeOff    = lipgloss.NewStyle().Foreground(cli.ColorTextDim)
)

// QueryFunc re-runs the blocks query and returns a fresh result.
type QueryFunc func() (*pipeline.Result, error)

type resultMsg struct {
	res *pipeline.Result
	err error
}

type tickMsg time.Time

type fileChangedMsg struct{}

// Monitor is the live view's bubbletea model.
type Monitor struct {
	query  QueryFunc
	logger *zap.Logger

	spinner spinner.Model
	table   table.Model

	res       *pipeline.Result
	err       error
	loading   bool
	updatedAt time.Time

	events chan struct{}
	// watcher is closed on quit; nil when no roots could be watched.
	watcher *fsnotify.Watcher
}

// NewMonitor builds a Monitor that re-runs query on a timer and on
// changes under watchRoots.
func NewMonitor(query QueryFunc, watchRoots []string, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	cols := []table.Column{
		{Title: "Start", Width: 12},
		{Title: "End", Width: 12},
		{Title: "Status", Width: 8},
		{Title: "Tokens", Width: 10},
		{Title: "Cost", Width: 10},
		{Title: "Warning", Width: 12},
	}
	st := table.New(table.WithColumns(cols), table.WithHeight(12))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(cli.ColorAccent)
	styles.Selected = styles.Selected.Foreground(cli.ColorText).Background(cli.ColorBorder)
	st.SetStyles(styles)

	m := &Monitor{
		query:   query,
		logger:  logger,
		spinner: sp,
		table:   st,
		loading: true,
		events:  make(chan struct{}, 1),
	}
	m.startWatcher(watchRoots)
	return m
}

// startWatcher registers the data roots with fsnotify. Watch failures
// degrade to timer-only refresh.
func (m *Monitor) startWatcher(roots []string) {
	if len(roots) == 0 {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("file watching unavailable", zap.Error(err))
		return
	}
	watched := 0
	for _, root := range roots {
		projects := filepath.Join(root, "projects")
		if err := w.Add(projects); err != nil {
			m.logger.Debug("cannot watch", zap.String("dir", projects), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = w.Close()
		return
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case m.events <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Close releases the file watcher.
func (m *Monitor) Close() {
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

func (m *Monitor) refresh() tea.Cmd {
	return func() tea.Msg {
		res, err := m.query()
		return resultMsg{res: res, err: err}
	}
}

func (m *Monitor) waitForChange() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	return func() tea.Msg {
		<-m.events
		return fileChangedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), m.waitForChange(), tick())
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Close()
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.refresh()
		}

	case resultMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.res = msg.res
			m.updatedAt = time.Now()
			m.table.SetRows(blockRows(msg.res.Blocks))
		}
		return m, nil

	case tickMsg:
		m.loading = true
		return m, tea.Batch(m.refresh(), tick())

	case fileChangedMsg:
		m.loading = true
		return m, tea.Batch(m.refresh(), m.waitForChange())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Monitor) View() string {
	var b strings.Builder
	b.WriteString("\n")

	header := titleStyle.Render("  ccmeter live")
	if m.loading {
		header += "  " + m.spinner.View()
	} else if !m.updatedAt.IsZero() {
		header += mutedStyle.Render(fmt.Sprintf("  updated %s", m.updatedAt.Format("15:04:05")))
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("  %v", m.err)))
		b.WriteString("\n\n")
	}

	if m.res != nil {
		if gauge := renderGauge(m.res.Blocks); gauge != "" {
			b.WriteString(gauge)
			b.WriteString("\n\n")
		}
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(cli.RenderDiagnostics(m.res.Diagnostics))
	} else if m.err == nil {
		b.WriteString(mutedStyle.Render("  Loading usage data..."))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("  r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func blockRows(blocks []model.SessionBlock) []table.Row {
	rows := make([]table.Row, 0, len(blocks))
	for _, blk := range blocks {
		if blk.IsGap {
			rows = append(rows, table.Row{
				blk.StartTime.Format("01-02 15:04"),
				blk.EndTime.Format("01-02 15:04"),
				"gap", "", "", "",
			})
			continue
		}
		status := ""
		if blk.IsActive {
			status = "active"
		}
		rows = append(rows, table.Row{
			blk.StartTime.Format("01-02 15:04"),
			blk.EndTime.Format("01-02 15:04"),
			status,
			cli.FormatTokens(blk.Tokens.Total()),
			cli.FormatCost(blk.TotalCost),
			warnText(blk.Warning),
		})
	}
	return rows
}

func warnText(w model.WarnLevel) string {
	switch w {
	case model.WarnApproaching:
		return warnStyle.Render("approaching")
	case model.WarnOver:
		return overStyle.Render("OVER")
	}
	return ""
}

// renderGauge draws the active block's elapsed-time bar with its budget
// summary, or an empty string when no block is active.
func renderGauge(blocks []model.SessionBlock) string {
	for _, blk := range blocks {
		if !blk.IsActive {
			continue
		}
		total := blk.EndTime.Sub(blk.StartTime)
		elapsed := total
		if blk.Remaining != nil {
			elapsed = total - blk.Remaining.TimeLeft
		}
		frac := 0.0
		if total > 0 {
			frac = float64(elapsed) / float64(total)
		}
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}

		const width = 30
		filled := int(frac * width)
		bar := gaugeOn.Render(strings.Repeat("█", filled)) +
			gaugeOff.Render(strings.Repeat("░", width-filled))

		line := fmt.Sprintf("  %s %s  %s spent", bar, cli.FormatPercent(frac), cli.FormatCost(blk.TotalCost))
		if blk.Remaining != nil {
			line += mutedStyle.Render(fmt.Sprintf("  ·  %s left", cli.FormatDuration(blk.Remaining.TimeLeft)))
		}
		return line
	}
	return ""
}
