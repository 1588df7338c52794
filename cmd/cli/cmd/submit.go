package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"spinframe/pkg/api"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a sequence generation job",
	Long: `Submit a job that renders every given model in every given material.

Materials default to the controller's standard set. Settings that are not given
use the controller defaults (36 frames, 800x800, webp/avif/jpg).

Example:
  seqctl submit --model ring-01
  seqctl submit -m ring-01 -m ring-02 --material platinum --frames 72 --format webp --quality webp=80
  seqctl submit -m ring-01 --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		models, _ := flags.GetStringSlice("model")
		materials, _ := flags.GetStringSlice("material")
		frames, _ := flags.GetInt("frames")
		width, _ := flags.GetInt("width")
		height, _ := flags.GetInt("height")
		formats, _ := flags.GetStringSlice("format")
		qualityPairs, _ := flags.GetStringSlice("quality")
		watch, _ := flags.GetBool("watch")

		if len(models) == 0 {
			cmd.Println("Error: --model is required")
			return
		}

		quality, err := parseQuality(qualityPairs)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		req := api.SubmitJobRequest{
			ModelIDs:  models,
			Materials: materials,
		}
		framesSet := flags.Changed("frames")
		if framesSet || width != 0 || height != 0 || len(formats) > 0 || len(quality) > 0 {
			req.Settings = &api.GenerationSettings{
				Formats: formats,
				Quality: quality,
			}
			if framesSet {
				req.Settings.ImageCount = &frames
			}
			if width != 0 || height != 0 {
				req.Settings.ImageSize = &api.ImageSize{Width: width, Height: height}
			}
		}

		client := newClient()
		result, err := client.SubmitJob(req)
		if err != nil {
			printAPIError(cmd.Printf, "Submit", err)
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\n", result.JobID)
		if watch {
			if err := watchJob(cmd, client, result.JobID); err != nil {
				cmd.Printf("Watch failed: %v\n", err)
			}
		}
	},
}

// parseQuality turns "webp=80" pairs into a per-format quality map.
func parseQuality(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		format, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(format) == "" {
			return nil, fmt.Errorf("invalid quality %q, expected format=value", pair)
		}
		q, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || q < 1 || q > 100 {
			return nil, fmt.Errorf("invalid quality %q, value must be 1-100", pair)
		}
		out[strings.ToLower(strings.TrimSpace(format))] = q
	}
	return out, nil
}

func init() {
	flags := submitCmd.Flags()
	flags.StringSliceP("model", "m", []string{}, "Model id, repeatable (required)")
	flags.StringSlice("material", []string{}, "Material id, repeatable (default: controller's standard set)")
	flags.Int("frames", 0, "Frames per sequence (optional)")
	flags.Int("width", 0, "Image width in pixels (optional)")
	flags.Int("height", 0, "Image height in pixels (optional)")
	flags.StringSliceP("format", "f", []string{}, "Output format, repeatable (optional)")
	flags.StringSliceP("quality", "q", []string{}, "Per-format quality as format=value, repeatable (optional)")
	flags.BoolP("watch", "w", false, "Follow the job until it finishes")

	rootCmd.AddCommand(submitCmd)
}
