package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
)

// Job runs one engine operation, reporting progress through sink.
type Job func(ctx context.Context, sink engine.Sink) error

// Options configures the progress screen.
type Options struct {
	// Title is shown in the header, e.g. "Building manifest".
	Title string

	// Root is the tree being processed.
	Root string

	// Job is started when the program starts.
	Job Job
}

// eventMsg carries one engine event into the update loop.
type eventMsg engine.Event

// doneMsg is sent once the job has returned.
type doneMsg struct{ err error }

// tickMsg refreshes the elapsed time.
type tickMsg struct{}

const (
	eventBuffer = 256
	logLines    = 4
)

// Model is the Bubble Tea model of the progress screen.
type Model struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	events chan engine.Event
	done   chan error

	spinner spinner.Model
	bar     progress.Model

	index    int
	total    int
	current  string
	counts   map[engine.Status]int
	errors   int
	summary  string
	started  time.Time
	elapsed  time.Duration
	stopping bool
	finished bool
	err      error

	width  int
	height int
}

// NewModel returns a model that runs opts.Job when started.
func NewModel(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan engine.Event, eventBuffer),
		done:    make(chan error, 1),
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		counts:  make(map[engine.Status]int),
		started: time.Now(),
		width:   80,
		height:  24,
	}
}

// Init starts the job and the refresh loops.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.listen(), tick())
}

// start runs the job in the background. The events channel is closed when
// the job returns, after its error has been queued on done.
func (m Model) start() tea.Cmd {
	ctx, events, done, job := m.ctx, m.events, m.done, m.opts.Job
	return func() tea.Msg {
		go func() {
			sink := engine.SinkFunc(func(e engine.Event) {
				select {
				case events <- e:
				case <-ctx.Done():
				}
			})
			done <- job(ctx, sink)
			close(events)
		}()
		return nil
	}
}

// listen waits for the next event, or for the job's result once the event
// stream is closed.
func (m Model) listen() tea.Cmd {
	events, done := m.events, m.done
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return doneMsg{err: <-done}
		}
		return eventMsg(e)
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The job observes the cancellation and returns ErrAborted.
			m.stopping = true
			m.cancel()
		}
		return m, nil

	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.elapsed = time.Since(m.started)
		return m, tick()

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(engine.Event(msg))
		return m, m.listen()

	case doneMsg:
		m.finished = true
		m.err = msg.err
		m.elapsed = time.Since(m.started)
		m.cancel()
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one event into the counters.
func (m *Model) apply(e engine.Event) {
	if e.Total > 0 {
		m.total = e.Total
	}
	switch e.Kind {
	case engine.KindStart:
		m.index = 0
	case engine.KindFile:
		m.index = max(m.index, e.Index)
		m.current = e.Path
		m.counts[e.Status]++
	case engine.KindError:
		m.index = max(m.index, e.Index)
		m.current = e.Path
		m.errors++
	case engine.KindSummary:
		m.summary = e.Message
	}
}

// Err returns the job's error once the program has finished.
func (m Model) Err() error {
	return m.err
}

// percent returns the completed fraction.
func (m Model) percent() float64 {
	if m.total == 0 {
		if m.finished {
			return 1
		}
		return 0
	}
	return float64(m.index) / float64(m.total)
}

// View renders the progress screen.
func (m Model) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n")

	m.bar.Width = contentWidth - 12
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.percent()))
	b.WriteString(fmt.Sprintf(" %3.0f%%", m.percent()*100))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n")

	if entries := logging.RecentEntries(logLines); len(entries) > 0 {
		b.WriteString("\n")
		for _, e := range entries {
			line := fmt.Sprintf("  %s %-5s %s", e.Time.Format("15:04:05"), e.Level, e.Message)
			b.WriteString(mutedTextStyle.Render(truncatePath(line, contentWidth)))
			b.WriteString("\n")
		}
	}

	return outerBoxStyle.Width(max(m.width-2, 42)).Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("  treesum  " + m.opts.Title)
	hint := mutedTextStyle.Render("[q to stop]")
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	root := mutedTextStyle.Render("  " + truncatePath(m.opts.Root, width-2))
	return title + strings.Repeat(" ", spacing) + hint + "\n" + root
}

func (m Model) renderStatus(width int) string {
	switch {
	case m.finished && m.err != nil:
		return errorTextStyle.Render(fmt.Sprintf("  Stopped: %v", m.err))
	case m.finished:
		msg := "  Done"
		if m.summary != "" {
			msg += ": " + m.summary
		}
		return successTextStyle.Render(msg)
	case m.stopping:
		return warningTextStyle.Render("  Stopping...")
	default:
		return fmt.Sprintf("  %s %s", m.spinner.View(), truncatePath(m.current, width-8))
	}
}

func (m Model) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-12)/5, 10)

	files := fmt.Sprintf("%s/%s", humanize.Comma(int64(m.index)), humanize.Comma(int64(m.total)))
	ok := m.counts[engine.StatusOK] + m.counts[engine.StatusHashed]
	changed := m.counts[engine.StatusMissing] + m.counts[engine.StatusSizeMismatch] +
		m.counts[engine.StatusHashMismatch] + m.counts[engine.StatusMismatch]

	boxes := []string{
		renderStatBox("Files", files, boxWidth),
		renderStatBox("OK", humanize.Comma(int64(ok)), boxWidth),
		renderStatBox("Changed", humanize.Comma(int64(changed)), boxWidth),
		renderStatBox("Errors", humanize.Comma(int64(m.errors)), boxWidth),
		renderStatBox("Time", formatDuration(m.elapsed), boxWidth),
	}
	parts := []string{"  "}
	for i, box := range boxes {
		if i > 0 {
			parts = append(parts, " ")
		}
		parts = append(parts, box)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// Run shows the progress screen until the job returns and returns the
// job's error.
func Run(opts Options) error {
	final, err := tea.NewProgram(NewModel(opts)).Run()
	if err != nil {
		return fmt.Errorf("failed to run progress UI: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
