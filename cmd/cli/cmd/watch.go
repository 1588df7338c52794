package cmd

import (
	"fmt"
	"strings"
	"time"

	"spinframe/pkg/api"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

var watchInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Follow a job until it finishes",
	Long: `Poll a job and show a live progress bar with the sequence and frame being rendered.
Quitting the view does not cancel the job. Use --plain for log-friendly output.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		plain, _ := cmd.Flags().GetBool("plain")
		client := newClient()

		var err error
		if plain {
			err = watchPlain(cmd, client, args[0])
		} else {
			err = watchJob(cmd, client, args[0])
		}
		if err != nil {
			printAPIError(cmd.Printf, "Watch", err)
		}
	},
}

type jobMsg struct {
	job *api.JobResponse
	err error
}

type tickMsg time.Time

type watchModel struct {
	client   *SeqClient
	jobID    string
	interval time.Duration

	job      *api.JobResponse
	err      error
	detached bool
	bar      progress.Model
}

func newWatchModel(client *SeqClient, jobID string, interval time.Duration) watchModel {
	return watchModel{
		client:   client,
		jobID:    jobID,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m watchModel) fetch() tea.Msg {
	job, err := m.client.GetJob(m.jobID)
	return jobMsg{job: job, err: err}
}

func (m watchModel) Init() tea.Cmd {
	return m.fetch
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), 60)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.detached = true
			return m, tea.Quit
		}
		return m, nil
	case jobMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.job = msg.job
		if api.IsTerminal(m.job.Status) {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	case tickMsg:
		return m, m.fetch
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("Job "+m.jobID) + "\n\n")

	if m.job == nil {
		b.WriteString(mutedStyle.Render("waiting for status...") + "\n")
		return b.String()
	}
	job := m.job

	b.WriteString(m.bar.ViewAs(job.Progress/100) + "\n")
	b.WriteString(fmt.Sprintf("%s  %d/%d frames\n", job.Status, job.CompletedUnits, job.TotalUnits))
	if job.CurrentModel != "" {
		line := "rendering " + job.CurrentModel + "-" + job.CurrentMaterial
		if job.CurrentFrame != nil {
			line += fmt.Sprintf(" frame %d", *job.CurrentFrame)
		}
		b.WriteString(line + "\n")
	}
	if n := len(job.SkippedPairs); n > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%d sequences already existed and were skipped", n)) + "\n")
	}
	if job.EstimatedCompletion != nil && !api.IsTerminal(job.Status) {
		b.WriteString(mutedStyle.Render("eta "+job.EstimatedCompletion.Local().Format("15:04:05")) + "\n")
	}
	if job.Error != "" {
		b.WriteString(watchErrorStyle.Render(job.Error) + "\n")
	}
	if !api.IsTerminal(job.Status) {
		b.WriteString("\n" + mutedStyle.Render("q to stop watching (the job keeps running)") + "\n")
	}
	return b.String()
}

// watchJob runs the interactive progress view until the job is terminal or the
// user detaches.
func watchJob(cmd *cobra.Command, client *SeqClient, jobID string) error {
	p := tea.NewProgram(newWatchModel(client, jobID, watchInterval),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithInput(cmd.InOrStdin()),
	)
	final, err := p.Run()
	if err != nil {
		return err
	}

	m, ok := final.(watchModel)
	if !ok {
		return nil
	}
	if m.err != nil {
		return m.err
	}
	if m.job != nil {
		printSummary(cmd, *m.job, m.detached)
	}
	return nil
}

// watchPlain polls without a TUI and prints a line whenever the job moves.
func watchPlain(cmd *cobra.Command, client *SeqClient, jobID string) error {
	last := ""
	for {
		job, err := client.GetJob(jobID)
		if err != nil {
			return err
		}

		line := fmt.Sprintf("%s %.1f%% (%d/%d)", job.Status, job.Progress, job.CompletedUnits, job.TotalUnits)
		if job.CurrentModel != "" {
			line += " " + job.CurrentModel + "-" + job.CurrentMaterial
		}
		if line != last {
			cmd.Println(line)
			last = line
		}

		if api.IsTerminal(job.Status) {
			printSummary(cmd, *job, false)
			return nil
		}
		time.Sleep(watchInterval)
	}
}

func printSummary(cmd *cobra.Command, job api.JobResponse, detached bool) {
	switch {
	case detached:
		cmd.Printf("Stopped watching job %s (%s, %.1f%%)\n", job.ID, job.Status, job.Progress)
	case job.Status == api.StatusCompleted:
		cmd.Println(watchOKStyle.Render(fmt.Sprintf("✓ Job %s completed: %d frames rendered, %d sequences skipped",
			job.ID, job.CompletedUnits, len(job.SkippedPairs))))
	default:
		msg := fmt.Sprintf("Job %s %s at %.1f%%", job.ID, job.Status, job.Progress)
		if job.Error != "" {
			msg += ": " + job.Error
		}
		cmd.Println(watchErrorStyle.Render(msg))
	}
}

func init() {
	watchCmd.Flags().Bool("plain", false, "Print progress lines instead of the interactive view")
	rootCmd.AddCommand(watchCmd)
}
