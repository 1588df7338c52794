// Package render defines the pluggable frame primitives used by the scheduler:
// a Renderer producing one raster per (model, material, frame) and per-format Encoders.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
)

// Size is a raster size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RenderRequest identifies a single frame of a sequence.
type RenderRequest struct {
	Model      string
	ModelFile  string // path of the model asset, relative to the models directory
	Material   string
	Frame      int
	FrameCount int
	Size       Size
}

// Angle is the turntable rotation of the frame in degrees.
func (r RenderRequest) Angle() float64 {
	if r.FrameCount <= 0 {
		return 0
	}
	return float64(r.Frame) * 360 / float64(r.FrameCount)
}

// Renderer produces one rendered raster image.
// Implementations include an external command, a Docker container and a synthetic turntable.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (image.Image, error)
}

// Encoder turns a raster into the bytes of one output format.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, quality int) ([]byte, error)
}

// Encoders is the registry of encoders keyed by format (the file extension).
type Encoders map[string]Encoder

// Lookup returns the encoder for format.
func (e Encoders) Lookup(format string) (Encoder, bool) {
	enc, ok := e[strings.ToLower(format)]
	return enc, ok
}

// Formats returns the registered formats in sorted order.
func (e Encoders) Formats() []string {
	formats := make([]string, 0, len(e))
	for f := range e {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// transientError marks a primitive failure that may succeed when tried again.
type transientError struct {
	err error
}

func (t *transientError) Error() string { return "transient: " + t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf formats a retryable error.
func Transientf(format string, args ...any) error {
	return Transient(fmt.Errorf(format, args...))
}

// IsTransient reports whether err (or anything it wraps) was marked retryable.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
