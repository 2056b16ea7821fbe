package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// WatchRenderer shows a live feed load using bubbletea.
type WatchRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *loadModel
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewWatchRenderer creates a live renderer. Returns an error if the
// output is not a terminal.
func NewWatchRenderer(cfg Config) (*WatchRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newLoadModel(cfg.Project)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &WatchRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *WatchRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	_, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// Update implements Renderer.
func (r *WatchRenderer) Update(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *WatchRenderer) Complete(summary LoadSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(doneMsg(summary))
	}
}

// Stop implements Renderer.
func (r *WatchRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Do not hang on Ctrl+C if the program never answers the quit.
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

// Message types for bubbletea.
type progressMsg ProgressEvent
type doneMsg LoadSummary
type tickMsg time.Time

// loadModel is the bubbletea model for a feed load in flight.
type loadModel struct {
	project  string
	event    ProgressEvent
	summary  LoadSummary
	finished bool
	quitting bool
	width    int
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newLoadModel(project string) *loadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	bar := progress.New(
		progress.WithSolidFill(ColorLime),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &loadModel{
		project: project,
		width:   80,
		spinner: s,
		bar:     bar,
		styles:  DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *loadModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// tickCmd keeps the view refreshing while a load is in flight.
func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *loadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 20
		if m.bar.Width < 20 {
			m.bar.Width = 20
		}

	case progressMsg:
		m.event = ProgressEvent(msg)
		return m, nil

	case doneMsg:
		m.finished = true
		m.summary = LoadSummary(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *loadModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	if m.finished {
		return m.renderDone()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	sections := []string{
		m.renderStages(),
		m.renderDivider(contentWidth),
		m.renderProgress(),
	}
	if m.event.Message != "" {
		sections = append(sections, m.styles.Dim.Render(m.event.Message))
	}

	content := strings.Join(sections, "\n")

	title := "Vitrina Feed"
	if m.project != "" {
		title = fmt.Sprintf("Vitrina Feed • %s", m.project)
	}
	panel := m.wrapInPanel(title, content, contentWidth)

	return panel + "\n" + m.styles.Dim.Render("q to quit")
}

// renderStages renders the load phase indicators.
func (m *loadModel) renderStages() string {
	current := m.event.Stage

	stages := []struct {
		stage Stage
		name  string
	}{
		{StageDownloading, "Download"},
		{StageIndexing, "Index"},
		{StageDone, "Done"},
	}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style

		switch {
		case s.stage < current:
			icon = "●"
			style = m.styles.Success
		case s.stage == current:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}

		parts = append(parts, style.Render(icon+" "+s.name))
	}

	arrow := m.styles.Dim.Render(" → ")
	return strings.Join(parts, arrow)
}

// renderProgress renders the progress bar with percentage.
func (m *loadModel) renderProgress() string {
	if m.event.Stage == StageWaiting {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Dim.Render("Waiting for status..."))
	}

	percent := float64(m.event.Percent) / 100
	bar := m.bar.ViewAs(percent)
	pct := m.styles.Active.Render(fmt.Sprintf("%3d%%", m.event.Percent))

	line := fmt.Sprintf("%s  %s", bar, pct)
	if m.event.Products > 0 {
		line += "\n" + m.styles.Label.Render(fmt.Sprintf("%d products", m.event.Products))
	}
	return line
}

// renderDivider renders a horizontal divider line.
func (m *loadModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

// wrapInPanel puts a titled rounded border around content.
func (m *loadModel) wrapInPanel(title, content string, width int) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, m.styles.Header.Render(title), box)
}

// renderDone renders the final panel for a finished or failed load.
func (m *loadModel) renderDone() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var lines []string
	border := ColorLime

	if m.summary.Err != nil {
		border = ColorRed
		lines = append(lines, m.styles.Error.Render("✗ Feed Load Failed"))
		lines = append(lines, "")
		lines = append(lines, m.summary.Err.Error())
	} else if m.summary.Updated > 0 {
		lines = append(lines, m.styles.Success.Render("✓ Stock Updated"))
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("%s  %s",
			m.styles.Label.Render("Updated:"),
			m.styles.Active.Render(fmt.Sprintf("%d products", m.summary.Updated))))
		lines = append(lines, fmt.Sprintf("%s %s",
			m.styles.Label.Render("Duration:"),
			m.styles.Active.Render(formatDuration(m.summary.Duration))))
	} else {
		lines = append(lines, m.styles.Success.Render("✓ Feed Loaded"))
		lines = append(lines, "")
		if m.summary.ShopName != "" {
			lines = append(lines, fmt.Sprintf("%s       %s",
				m.styles.Label.Render("Shop:"),
				m.styles.Active.Render(m.summary.ShopName)))
		}
		lines = append(lines, fmt.Sprintf("%s   %s",
			m.styles.Label.Render("Products:"),
			m.styles.Active.Render(fmt.Sprintf("%d", m.summary.Products))))
		lines = append(lines, fmt.Sprintf("%s %s",
			m.styles.Label.Render("Categories:"),
			m.styles.Active.Render(fmt.Sprintf("%d", m.summary.Categories))))
		lines = append(lines, fmt.Sprintf("%s   %s",
			m.styles.Label.Render("Duration:"),
			m.styles.Active.Render(formatDuration(m.summary.Duration))))
	}

	content := strings.Join(lines, "\n")

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(content) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		if d < time.Second {
			return d.Round(time.Millisecond).String()
		}
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, mins)
}

// Ensure WatchRenderer implements Renderer.
var _ Renderer = (*WatchRenderer)(nil)
