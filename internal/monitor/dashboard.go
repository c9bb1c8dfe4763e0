// Package monitor renders a live terminal dashboard of a refundd server's
// triage metrics.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	historySize    = 30
	scrapeTimeout  = 5 * time.Second
	barWidth       = 40
	minBarWidth    = 10
	memoryScaleMiB = 512.0
)

// Model is the bubbletea model for the dashboard.
type Model struct {
	serverURL string
	interval  time.Duration
	client    *MetricsClient

	current    Snapshot
	hasPrev    bool
	lastUpdate time.Time
	err        error
	paused     bool
	quitting   bool

	decisionRate   float64
	escalationRate float64
	ratePeak       float64

	decisionRateHistory   []float64
	escalationRateHistory []float64
	latencyHistory        []float64
	memoryHistory         []float64

	automationBar progress.Model
	memoryBar     progress.Model
}

var (
	accent = lipgloss.Color("51")
	muted  = lipgloss.Color("245")

	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(accent).Bold(true).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Width(18)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(muted)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(1, 2)
	keyStyle     = lipgloss.NewStyle().Foreground(accent).Bold(true)
	chartStyle   = lipgloss.NewStyle().Foreground(accent)
)

// NewModel creates a dashboard polling the refundd server at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL:     serverURL,
		interval:      interval,
		client:        NewMetricsClient(serverURL),
		ratePeak:      1,
		automationBar: progress.New(progress.WithGradient("#ff0000", "#00ff00"), progress.WithWidth(barWidth)),
		memoryBar:     progress.New(progress.WithGradient("#00ff00", "#ffff00"), progress.WithWidth(barWidth)),
	}
}

// Run shows the dashboard in the alternate screen until the user quits.
func Run(serverURL string, interval time.Duration) error {
	_, err := tea.NewProgram(NewModel(serverURL, interval), tea.WithAltScreen()).Run()
	return err
}

type (
	tickMsg     time.Time
	snapshotMsg Snapshot
	errMsg      error
)

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.scrape())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) scrape() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
		defer cancel()
		snap, err := client.Scrape(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.scrape()
		case "p":
			m.paused = !m.paused
		}
	case tea.WindowSizeMsg:
		// Bars take what the labels and frame leave.
		w := min(barWidth, max(minBarWidth, msg.Width-40))
		m.automationBar.Width = w
		m.memoryBar.Width = w
	case tickMsg:
		if m.paused {
			return m, m.tick()
		}
		return m, tea.Batch(m.tick(), m.scrape())
	case snapshotMsg:
		return m.applySnapshot(Snapshot(msg)), nil
	case errMsg:
		m.err = msg
	}
	return m, nil
}

// applySnapshot turns counter deltas against the previous scrape into
// per-minute rates. The first scrape is only a baseline for rates.
func (m Model) applySnapshot(snap Snapshot) Model {
	if m.hasPrev {
		elapsed := snap.ScrapedAt.Sub(m.current.ScrapedAt)
		m.decisionRate = ratePerMinute(m.current.DecisionsTotal, snap.DecisionsTotal, elapsed)
		m.escalationRate = ratePerMinute(m.current.NeedsReview, snap.NeedsReview, elapsed)
		m.ratePeak = max(m.ratePeak, m.decisionRate)
		m.decisionRateHistory = appendToHistory(m.decisionRateHistory, m.decisionRate)
		m.escalationRateHistory = appendToHistory(m.escalationRateHistory, m.escalationRate)
	}
	m.latencyHistory = appendToHistory(m.latencyHistory, snap.DecisionLatencyP95)
	m.memoryHistory = appendToHistory(m.memoryHistory, snap.MemoryMB)

	m.current, m.hasPrev = snap, true
	m.lastUpdate = snap.ScrapedAt
	m.err = nil
	return m
}

func appendToHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if over := len(h) - historySize; over > 0 {
		h = h[over:]
	}
	return h
}

func (m Model) View() string {
	switch {
	case m.quitting:
		return ""
	case m.err != nil:
		return m.viewError()
	}

	s := m.current
	updated := "Never"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("3:04:05 PM")
	}
	if m.paused {
		updated += " " + warnStyle.Render("(paused)")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("refundd Monitor") + "\n")
	fmt.Fprintf(&b, "%s   %s %s   %s\n",
		statusBadge(s), dimStyle.Render("Uptime:"), valueStyle.Render(FormatUptime(s.Uptime)), dimStyle.Render(updated))

	automation := s.AutomationRate()
	section(&b, "Decisions",
		row("Rate", FormatRate(m.decisionRate), chart(m.decisionRateHistory)),
		row("Escalations", FormatRate(m.escalationRate), chart(m.escalationRateHistory)),
		row("Latency (p95)", FormatLatency(s.DecisionLatencyP95)+" "+latencyBadge(s.DecisionLatencyP95), chart(m.latencyHistory)),
		row("Totals", counts(count{"approved", s.Approved}, count{"denied", s.Denied}, count{"review", s.NeedsReview})),
		row("Automated", m.automationBar.ViewAs(automation), dimStyle.Render(FormatPercentage(automation))),
	)

	if methods := s.Methods(); len(methods) > 0 {
		rows := make([]string, len(methods))
		for i, name := range methods {
			rows[i] = row(name, FormatCount(s.ByMethod[name]))
		}
		section(&b, "Methods", rows...)
	}

	var found float64
	if s.ExtractionsTotal > 0 {
		found = s.ExtractionsFound / s.ExtractionsTotal
	}
	section(&b, "Extraction",
		row("Booking found", FormatPercentage(found), dimStyle.Render("of "+FormatCount(s.ExtractionsTotal))),
		row("Model failures", counts(count{"extraction", s.ModelFailures}, count{"case", s.CaseFailures}, count{"panics", s.RecoveredPanics})),
	)

	section(&b, "System",
		row("Memory", m.memoryBar.ViewAs(min(s.MemoryMB/memoryScaleMiB, 1)), dimStyle.Render(FormatMemory(uint64(s.MemoryMB*1024*1024))), chart(m.memoryHistory)),
		row("Goroutines", fmt.Sprintf("%d", s.Goroutines)),
	)

	b.WriteString("\n" + keys("q", "quit", "r", "refresh", "p", "pause") + dimStyle.Render(fmt.Sprintf("  every %v", m.interval)))
	return frameStyle.Render(b.String())
}

func (m Model) viewError() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("refundd Monitor") + "\n\n")
	b.WriteString(failStyle.Render("⚠ Cannot scrape refundd metrics") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL+"/metrics") + "\n")
	b.WriteString(dimStyle.Render("Error: ") + failStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Is the daemon running? Start it with: refundd") + "\n\n")
	b.WriteString(keys("q", "quit", "r", "retry"))
	return frameStyle.Render(b.String())
}

func section(b *strings.Builder, title string, rows ...string) {
	b.WriteString("\n" + sectionStyle.Render("┃ "+title) + "\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
}

// row renders a label, a value and optional trailing cells.
func row(label, value string, extra ...string) string {
	cells := append([]string{"  " + labelStyle.Render(label), valueStyle.Render(value)}, extra...)
	return strings.Join(cells, " ")
}

type count struct {
	name string
	n    float64
}

func counts(cs ...count) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = dimStyle.Render(c.name+"=") + valueStyle.Render(FormatCount(c.n))
	}
	return strings.Join(parts, "  ")
}

func keys(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, keyStyle.Render("["+pairs[i]+"]")+dimStyle.Render(" "+pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

func chart(data []float64) string {
	const width, height = 30, 3
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", width, "no data"))
	}
	sl := sparkline.New(width, height)
	for _, v := range data {
		sl.Push(v)
	}
	sl.Draw()
	return chartStyle.Render(sl.View())
}

// latencyBadge grades p95 decision latency. Model-backed decisions take
// seconds.
func latencyBadge(seconds float64) string {
	switch {
	case seconds < 2:
		return okStyle.Render("[✓]")
	case seconds < 10:
		return warnStyle.Render("[⚠]")
	default:
		return failStyle.Render("[✗]")
	}
}

func statusBadge(s Snapshot) string {
	switch {
	case s.RecoveredPanics > 0:
		return failStyle.Render("✗ PANICS")
	case s.ModelFailures+s.CaseFailures > 0:
		return warnStyle.Render("⚠ DEGRADED")
	default:
		return okStyle.Render("✓ HEALTHY")
	}
}
