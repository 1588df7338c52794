package render

import (
	"strconv"
	"strings"
)

// expandArgs splits a command template into arguments and substitutes {placeholders}
// in each argument. Splitting happens before substitution so values containing
// spaces stay a single argument.
func expandArgs(template string, values map[string]string) []string {
	fields := strings.Fields(template)
	args := make([]string, 0, len(fields))
	for _, field := range fields {
		for key, val := range values {
			field = strings.ReplaceAll(field, "{"+key+"}", val)
		}
		args = append(args, field)
	}
	return args
}

func renderValues(req RenderRequest, modelPath, output string) map[string]string {
	return map[string]string{
		"model":       req.Model,
		"model_file":  req.ModelFile,
		"model_path":  modelPath,
		"material":    req.Material,
		"frame":       strconv.Itoa(req.Frame),
		"frame_count": strconv.Itoa(req.FrameCount),
		"angle":       strconv.FormatFloat(req.Angle(), 'f', 2, 64),
		"width":       strconv.Itoa(req.Size.Width),
		"height":      strconv.Itoa(req.Size.Height),
		"output":      output,
	}
}

// tail returns at most the last n bytes of output, for error messages.
func tail(output []byte, n int) string {
	s := strings.TrimSpace(string(output))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
