package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// ExecRenderer implements Renderer by running an external command per frame,
// for example a headless browser script or a Blender invocation.
// The command must write a PNG to {output}.
type ExecRenderer struct {
	Command   string
	ModelsDir string
	WorkDir   string
	Timeout   time.Duration
}

// NewExecRenderer creates a command-based renderer.
// An empty workDir defaults to a directory under the OS temp dir.
func NewExecRenderer(command, modelsDir, workDir string, timeout time.Duration) *ExecRenderer {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "spinframe", "render")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ExecRenderer{
		Command:   command,
		ModelsDir: modelsDir,
		WorkDir:   workDir,
		Timeout:   timeout,
	}
}

// Render implements Renderer.Render using os/exec.
func (e *ExecRenderer) Render(ctx context.Context, req RenderRequest) (image.Image, error) {
	if e.Command == "" {
		return nil, errors.New("render command is required")
	}
	if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create render workdir: %w", err)
	}

	scratch, err := os.MkdirTemp(e.WorkDir, "frame-*")
	if err != nil {
		return nil, fmt.Errorf("create frame scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	output := filepath.Join(scratch, "frame.png")
	modelPath := filepath.Join(e.ModelsDir, req.ModelFile)
	args := expandArgs(e.Command, renderValues(req, modelPath, output))

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = scratch
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("render command %s: %w", args[0], err)
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, Transientf("render timed out after %v", e.Timeout)
		}
		return nil, Transientf("render %s/%s frame %d: %v: %s", req.Model, req.Material, req.Frame, err, tail(combined.Bytes(), 256))
	}

	return decodePNGFile(output)
}

func decodePNGFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Transientf("renderer produced no output: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, Transientf("decode rendered frame: %v", err)
	}
	return img, nil
}
