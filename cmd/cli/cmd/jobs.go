package cmd

import (
	"fmt"
	"strings"

	"spinframe/pkg/api"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List generation jobs",
	Long:  `List every job the controller still retains, in submission order, followed by the scheduler counters.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().ListJobs()
		if err != nil {
			printAPIError(cmd.Printf, "List jobs", err)
			return
		}

		if len(result.Jobs) == 0 {
			cmd.Println("No jobs.")
		} else {
			cmd.Println(jobsTable(result.Jobs))
		}
		cmd.Println(mutedStyle.Render(formatMetrics(result.Metrics)))
	},
}

func jobsTable(jobs []api.JobResponse) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		current := "-"
		if j.CurrentModel != "" {
			current = j.CurrentModel + "-" + j.CurrentMaterial
		}
		rows = append(rows, []string{
			j.ID,
			j.Status,
			fmt.Sprintf("%.1f%%", j.Progress),
			strings.Join(j.ModelIDs, ","),
			fmt.Sprintf("%d", len(j.Materials)),
			current,
			fmt.Sprintf("%d", len(j.SkippedPairs)),
			j.SubmittedAt.Local().Format("15:04:05"),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATUS", "PROGRESS", "MODELS", "MATERIALS", "CURRENT", "SKIPPED", "SUBMITTED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func formatMetrics(m api.MetricsResponse) string {
	return fmt.Sprintf("total %d · active %d · queued %d · completed %d · failed %d · stopped %d · skipped pairs %d · frames %d (retried %d)",
		m.TotalJobs, m.ActiveJobs, m.QueueSize, m.CompletedJobs, m.FailedJobs, m.StoppedJobs,
		m.SkippedPairs, m.UnitsRendered, m.UnitsRetried)
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a generation job",
	Long: `Stop a pending or processing job. A processing job stops after the frame it is
rendering; frames already written stay on disk and the interrupted sequence is
redone by the next submission.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().CancelJob(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Cancel", err)
			return
		}
		cmd.Printf("%s Job %s %s\n", statusIcon(result.Status), result.ID, result.Status)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(cancelCmd)
}
