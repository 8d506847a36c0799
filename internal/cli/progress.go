package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/sheetcast/internal/client"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/service"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// phaseLabels describes what the server is doing in each status.
var phaseLabels = map[models.JobStatus]string{
	models.StatusPending:      "Queued",
	models.StatusDownloading:  "Downloading audio",
	models.StatusProcessing:   "Preparing audio",
	models.StatusTranscribing: "Detecting notes",
	models.StatusConverting:   "Writing sheet music",
	models.StatusCompleted:    "Done",
	models.StatusFailed:       "Failed",
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// statusMsg carries the polled status
type statusMsg struct {
	view *service.StatusView
	err  error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	client   *client.Client
	jobID    string
	view     *service.StatusView
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, job *models.Job) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		jobID:    job.ID,
		view:     &service.StatusView{JobID: job.ID, Status: job.Status, Progress: job.Progress},
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchStatus()

	case statusMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.view = msg.view
		switch m.view.Status {
		case models.StatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.StatusFailed:
			m.done = true
			m.err = failure(m.view.Error)
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func failure(detail string) error {
	if detail == "" {
		return fmt.Errorf("job failed with unknown error")
	}
	return fmt.Errorf("%s", detail)
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.view == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.view.Status))
	bar := m.progress.ViewAs(float64(m.view.Progress) / 100)
	label := fmt.Sprintf("%3d%% %s", m.view.Progress, phaseLabels[m.view.Status])
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, label, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'sheetcast status %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}
	if m.view != nil && m.view.Result != nil {
		return m.theme.completedStyle().Render("✓ Completed") + "\n\n" + formatResult(m.view.Result)
	}
	return m.theme.completedStyle().Render("✓ Completed\n")
}

// formatResult renders the attributes and download handles of a job.
func formatResult(job *models.Job) string {
	var b strings.Builder
	if job.Title != nil {
		fmt.Fprintf(&b, "  Title:       %s\n", *job.Title)
	}
	if job.Duration != nil {
		fmt.Fprintf(&b, "  Duration:    %.0fs\n", *job.Duration)
	}
	if q := job.Quality; q != nil {
		fmt.Fprintf(&b, "  Notes:       %d\n", q.NoteCount)
		fmt.Fprintf(&b, "  Confidence:  %.2f\n", q.ConfidenceScore)
		fmt.Fprintf(&b, "  Polyphony:   %.2f\n", q.PolyphonyAvg)
	}
	for _, h := range []struct {
		label string
		url   *string
	}{
		{"MIDI", job.MIDIURL},
		{"MusicXML", job.MusicXMLURL},
		{"PDF", job.PDFURL},
	} {
		if h.url != nil {
			fmt.Fprintf(&b, "  %-12s %s\n", h.label+":", *h.url)
		}
	}
	return b.String()
}

// fetchStatus polls the server off the update loop.
func (m progressModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		v, err := m.client.Status(ctx, m.jobID)
		return statusMsg{view: v, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress runs the interactive progress UI for a job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunJobProgress(c *client.Client, job *models.Job) error {
	p := tea.NewProgram(newProgressModel(c, job))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok && !m.quitting {
		return m.err
	}
	return nil
}
