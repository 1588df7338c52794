package cmd

import (
	"fmt"

	"spinframe/pkg/api"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and remove catalog models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models with their sequence availability",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().ListModels()
		if err != nil {
			printAPIError(cmd.Printf, "List models", err)
			return
		}
		if len(result.Models) == 0 {
			cmd.Println("No models in catalog.")
			return
		}
		cmd.Println(modelsTable(result.Models))
	},
}

func modelsTable(models []api.ModelResponse) string {
	rows := make([][]string, 0, len(models))
	for _, m := range models {
		for i, s := range m.Sequences {
			id, file := "", ""
			if i == 0 {
				id, file = m.ID, m.File
			}
			state := "missing"
			switch {
			case s.Complete:
				state = "complete"
			case s.FrameCount > 0:
				state = "partial"
			}
			rows = append(rows, []string{id, file, s.Material, state, fmt.Sprintf("%d", s.FrameCount)})
		}
		if len(m.Sequences) == 0 {
			rows = append(rows, []string{m.ID, m.File, "-", "-", "0"})
		}
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("MODEL", "FILE", "MATERIAL", "SEQUENCE", "FRAMES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete [model_id]",
	Short: "Delete a model and all of its sequences",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().DeleteModel(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Delete", err)
			return
		}
		cmd.Printf("✓ Model %s deleted (%d sequences removed)\n", result.ID, len(result.DeletedSequences))
		for _, dir := range result.DeletedSequences {
			cmd.Printf("  - %s\n", dir)
		}
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show host memory and disk pressure",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		res, err := newClient().GetResources()
		if err != nil {
			printAPIError(cmd.Printf, "Resources", err)
			return
		}
		cmd.Printf("%sMemory:%s  %s of %s (%.1f%%) %s\n", colorDim, colorReset,
			formatBytes(res.MemoryUsed), formatBytes(res.MemoryTotal), res.MemoryPercent, colorizePressure(res.MemoryPressure))
		cmd.Printf("%sDisk:%s    %s free of %s on %s %s\n", colorDim, colorReset,
			formatBytes(res.DiskFree), formatBytes(res.DiskTotal), res.DiskPath, colorizePressure(res.DiskPressure))
	},
}

func colorizePressure(level string) string {
	switch level {
	case "critical":
		return colorRed + level + colorReset
	case "elevated":
		return colorYellow + level + colorReset
	default:
		return colorGreen + level + colorReset
	}
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(resourcesCmd)
}
