package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// PNGEncoder encodes lossless PNG. Quality selects the compression effort.
type PNGEncoder struct{}

func (PNGEncoder) Encode(_ context.Context, img image.Image, quality int) ([]byte, error) {
	level := png.DefaultCompression
	if quality >= 90 {
		level = png.BestSpeed
	}
	enc := png.Encoder{CompressionLevel: level}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGEncoder encodes baseline JPEG at the requested quality.
type JPEGEncoder struct{}

func (JPEGEncoder) Encode(_ context.Context, img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ExecEncoder pipes a PNG through an external codec command such as cwebp or avifenc.
// The command template receives {input}, {output} and {quality}.
type ExecEncoder struct {
	Format  string
	Command string
	WorkDir string
	Timeout time.Duration
}

// NewExecEncoder creates a command-based encoder for format.
func NewExecEncoder(format, command, workDir string) *ExecEncoder {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "spinframe", "encode")
	}
	return &ExecEncoder{
		Format:  format,
		Command: command,
		WorkDir: workDir,
		Timeout: time.Minute,
	}
}

func (e *ExecEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create encode workdir: %w", err)
	}
	scratch, err := os.MkdirTemp(e.WorkDir, e.Format+"-*")
	if err != nil {
		return nil, fmt.Errorf("create encode scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	input := filepath.Join(scratch, "input.png")
	raw, err := PNGEncoder{}.Encode(ctx, img, 100)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(input, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write encoder input: %w", err)
	}

	output := filepath.Join(scratch, "output."+e.Format)
	args := expandArgs(e.Command, map[string]string{
		"input":   input,
		"output":  output,
		"quality": strconv.Itoa(quality),
	})

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	combined, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s encoder %s: %w", e.Format, args[0], err)
		}
		return nil, Transientf("%s encode: %v: %s", e.Format, err, tail(combined, 256))
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, Transientf("%s encoder produced no output: %v", e.Format, err)
	}
	return data, nil
}

// NewEncoders builds the registry: builtin png/jpg/jpeg plus one ExecEncoder per
// configured command. A configured command overrides a builtin of the same format.
func NewEncoders(commands map[string]string, workDir string) Encoders {
	encoders := Encoders{
		"png":  PNGEncoder{},
		"jpg":  JPEGEncoder{},
		"jpeg": JPEGEncoder{},
	}
	for format, command := range commands {
		if command == "" {
			continue
		}
		encoders[format] = NewExecEncoder(format, command, workDir)
	}
	return encoders
}
