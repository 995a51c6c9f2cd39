package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
	ColorBlue      = lipgloss.Color("#4385BE")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	overStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
)

// Table is a bordered text table.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Render draws the table with rounded borders.
func (t Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < len(widths)-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}
	line := func(cells []string, style lipgloss.Style) {
		b.WriteString(dimStyle.Render("│"))
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := w - lipgloss.Width(cell)
			b.WriteString(style.Render(" " + cell + strings.Repeat(" ", pad) + " "))
			if i < len(widths)-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	line(t.Headers, headerStyle)
	rule("├", "┼", "┤")
	for _, row := range t.Rows {
		line(row, lipgloss.NewStyle().Foreground(ColorText))
	}
	rule("╰", "┴", "╯")
	return b.String()
}

// RenderDaily renders the daily view.
func RenderDaily(daily []model.DailyUsage) string {
	t := Table{
		Title:   "Daily Usage",
		Headers: []string{"Date", "Input", "Output", "Cache W", "Cache R", "Cost", "Models"},
	}
	for _, d := range daily {
		t.Rows = append(t.Rows, []string{
			d.Date.Format("2006-01-02"),
			FormatTokens(d.Tokens.InputTokens),
			FormatTokens(d.Tokens.OutputTokens),
			FormatTokens(d.Tokens.CacheCreationTokens),
			FormatTokens(d.Tokens.CacheReadTokens),
			FormatCost(d.TotalCost),
			strings.Join(shortNames(d.ModelsUsed), ", "),
		})
	}
	return t.Render()
}

// RenderDailyInstances renders the per-instance daily breakdown.
func RenderDailyInstances(instances []model.DailyInstanceUsage) string {
	t := Table{
		Title:   "Daily Usage by Instance",
		Headers: []string{"Date", "Instance", "Tokens", "Cost"},
	}
	for _, d := range instances {
		t.Rows = append(t.Rows, []string{
			d.Date.Format("2006-01-02"),
			d.InstanceID,
			FormatTokens(d.Tokens.Total()),
			FormatCost(d.TotalCost),
		})
	}
	return t.Render()
}

// RenderSessions renders the session view.
func RenderSessions(sessions []model.SessionUsage) string {
	t := Table{
		Title:   "Sessions",
		Headers: []string{"Session", "Project", "Start", "Duration", "Tokens", "Cost"},
	}
	for _, s := range sessions {
		t.Rows = append(t.Rows, []string{
			truncateID(s.SessionID),
			s.Project,
			s.StartTime.Format("2006-01-02 15:04"),
			FormatDuration(s.Duration()),
			FormatTokens(s.Tokens.Total()),
			FormatCost(s.TotalCost),
		})
	}
	return t.Render()
}

// RenderMonthly renders the monthly view.
func RenderMonthly(monthly []model.MonthlyUsage) string {
	t := Table{
		Title:   "Monthly Usage",
		Headers: []string{"Month", "Active Days", "Tokens", "Cost"},
	}
	for _, m := range monthly {
		t.Rows = append(t.Rows, []string{
			m.Month,
			fmt.Sprintf("%d", m.ActiveDays),
			FormatTokens(m.Tokens.Total()),
			FormatCost(m.TotalCost),
		})
	}
	return t.Render()
}

// RenderBlocks renders the billing blocks view.
func RenderBlocks(blocks []model.SessionBlock) string {
	t := Table{
		Title:   "Billing Blocks",
		Headers: []string{"Start", "End", "Status", "Sessions", "Tokens", "Cost", "Warning"},
	}
	for _, blk := range blocks {
		status := ""
		switch {
		case blk.IsGap:
			status = mutedStyle.Render("gap")
		case blk.IsActive:
			status = headerStyle.Render("active")
		}
		if blk.IsGap {
			t.Rows = append(t.Rows, []string{
				blk.StartTime.Format("01-02 15:04"),
				blk.EndTime.Format("01-02 15:04"),
				status, "", "", "", "",
			})
			continue
		}
		t.Rows = append(t.Rows, []string{
			blk.StartTime.Format("01-02 15:04"),
			blk.EndTime.Format("01-02 15:04"),
			status,
			fmt.Sprintf("%d", len(blk.SessionIDs)),
			FormatTokens(blk.Tokens.Total()),
			FormatCost(blk.TotalCost),
			renderWarning(blk.Warning),
		})
	}
	return t.Render()
}

// RenderActiveBlock renders a one-line budget summary for the active
// block, or an empty string when no block is active.
func RenderActiveBlock(blocks []model.SessionBlock) string {
	for _, blk := range blocks {
		if !blk.IsActive || blk.Remaining == nil {
			continue
		}
		parts := []string{
			fmt.Sprintf("active block ends in %s", FormatDuration(blk.Remaining.TimeLeft)),
			fmt.Sprintf("spent %s", FormatCost(blk.TotalCost)),
		}
		if blk.Remaining.CostLeft > 0 {
			parts = append(parts, fmt.Sprintf("%s left", FormatCost(blk.Remaining.CostLeft)))
		}
		if blk.Remaining.TokensLeft > 0 {
			parts = append(parts, fmt.Sprintf("%s tokens left", FormatTokens(blk.Remaining.TokensLeft)))
		}
		return "  " + mutedStyle.Render(strings.Join(parts, "  ·  ")) + "\n"
	}
	return ""
}

func renderWarning(w model.WarnLevel) string {
	switch w {
	case model.WarnApproaching:
		return warnStyle.Render("approaching")
	case model.WarnOver:
		return overStyle.Render("OVER")
	}
	return ""
}

// RenderTotals renders the grand total line.
func RenderTotals(totals model.Totals) string {
	return fmt.Sprintf("  %s  %s tokens  ·  %s  ·  %s entries\n",
		headerStyle.Render("Total:"),
		FormatTokens(totals.Tokens.Total()),
		FormatCost(totals.TotalCost),
		FormatNumber(int64(totals.Entries)))
}

// RenderDiagnostics renders the line accounting footer.
func RenderDiagnostics(d model.Diagnostics) string {
	parts := []string{
		fmt.Sprintf("%s lines", FormatNumber(d.LinesRead())),
		fmt.Sprintf("%s parsed", FormatNumber(d.ParsedEntries)),
		fmt.Sprintf("%s skipped", FormatNumber(d.SkippedLines)),
		fmt.Sprintf("%s deduped", FormatNumber(d.DeduplicatedEntries)),
		fmt.Sprintf("%d files", d.FilesRead),
	}
	if d.FileErrors > 0 {
		parts = append(parts, fmt.Sprintf("%d file errors", d.FileErrors))
	}
	if d.UnpricedEntries > 0 {
		parts = append(parts, fmt.Sprintf("%s unpriced", FormatNumber(d.UnpricedEntries)))
	}
	if d.CacheHits > 0 {
		parts = append(parts, fmt.Sprintf("%d cached", d.CacheHits))
	}
	parts = append(parts, fmt.Sprintf("pricing: %s", d.PricingSource))
	return "  " + dimStyle.Render(strings.Join(parts, "  ·  ")) + "\n"
}

// WriteJSON marshals v as indented JSON to w.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortNames trims model names to their family for narrow columns.
func shortNames(models []string) []string {
	out := make([]string, len(models))
	for i, m := range models {
		m = strings.TrimPrefix(m, "claude-")
		if idx := strings.LastIndex(m, "-20"); idx > 0 && len(m)-idx == 9 {
			m = m[:idx]
		}
		out[i] = m
	}
	return out
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// RelativeTime renders a timestamp as a compact age, e.g. "3m ago".
func RelativeTime(ts, now time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	return FormatDuration(d) + " ago"
}
