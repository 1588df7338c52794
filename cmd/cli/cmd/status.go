package cmd

import (
	"fmt"
	"strings"
	"time"

	"spinframe/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a generation job",
	Long:  `Retrieve detailed status information for a job, including its state (pending, processing, completed, error, stopped), progress, the frame being rendered and the sequences that were skipped.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		job, err := newClient().GetJob(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Status", err)
			return
		}
		printStatus(cmd, *job)
	},
}

func printStatus(cmd *cobra.Command, job api.JobResponse) {
	// Header with status icon
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sProgress:%s    %.1f%% (%d/%d frames)\n", colorDim, colorReset, job.Progress, job.CompletedUnits, job.TotalUnits)
	cmd.Printf("%sModels:%s      %s\n", colorDim, colorReset, strings.Join(job.ModelIDs, ", "))
	cmd.Printf("%sMaterials:%s   %s\n", colorDim, colorReset, strings.Join(job.Materials, ", "))
	if s := job.Settings; s.ImageSize != nil && s.ImageCount != nil {
		cmd.Printf("%sSettings:%s    %d frames, %dx%d, %s\n", colorDim, colorReset,
			*s.ImageCount, s.ImageSize.Width, s.ImageSize.Height, strings.Join(s.Formats, "/"))
	}

	// Current position while processing
	if job.CurrentModel != "" {
		position := job.CurrentModel + "-" + job.CurrentMaterial
		if job.CurrentFrame != nil {
			position = fmt.Sprintf("%s frame %d", position, *job.CurrentFrame)
		}
		cmd.Printf("%sCurrent:%s     %s\n", colorDim, colorReset, position)
	}

	if len(job.SkippedPairs) > 0 {
		skipped := make([]string, 0, len(job.SkippedPairs))
		for _, p := range job.SkippedPairs {
			skipped = append(skipped, p.Model+"-"+p.Material)
		}
		cmd.Printf("%sSkipped:%s     %s\n", colorDim, colorReset, strings.Join(skipped, ", "))
	}

	// Error (if present)
	if job.Error != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, job.Error, colorReset)
	}

	// Timestamps with relative time
	cmd.Printf("%sSubmitted:%s   %s\n", colorDim, colorReset, formatTimeWithRelative(&job.SubmittedAt))
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartedAt))

	// Duration if both times available
	if job.StartedAt != nil && job.FinishedAt != nil {
		duration := job.FinishedAt.Sub(*job.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.FinishedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.FinishedAt))
	}
	if job.EstimatedCompletion != nil && !api.IsTerminal(job.Status) {
		cmd.Printf("%sETA:%s         %s\n", colorDim, colorReset, job.EstimatedCompletion.Local().Format("15:04:05"))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case api.StatusCompleted:
		return colorGreen + "✓" + colorReset
	case api.StatusError:
		return colorRed + "✗" + colorReset
	case api.StatusStopped:
		return colorYellow + "■" + colorReset
	case api.StatusProcessing:
		return colorYellow + "⏳" + colorReset
	case api.StatusPending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case api.StatusCompleted:
		return icon + " " + colorGreen + status + colorReset
	case api.StatusError:
		return icon + " " + colorRed + status + colorReset
	case api.StatusProcessing, api.StatusStopped:
		return icon + " " + colorYellow + status + colorReset
	case api.StatusPending:
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
