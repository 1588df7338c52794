package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 0x80, A: 0xFF})
		}
	}
	return img
}

func TestTransient(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}

	base := errors.New("browser crashed")
	err := Transient(base)
	if !IsTransient(err) {
		t.Error("expected wrapped error to be transient")
	}
	if !errors.Is(err, base) {
		t.Error("expected transient error to unwrap to the cause")
	}
	if IsTransient(base) {
		t.Error("plain error must not be transient")
	}
	if !IsTransient(errors.Join(errors.New("ctx"), Transientf("retry %d", 1))) {
		t.Error("expected joined transient error to be detected")
	}
}

func TestRenderRequest_Angle(t *testing.T) {
	tests := []struct {
		frame, count int
		want         float64
	}{
		{0, 36, 0},
		{1, 36, 10},
		{35, 36, 350},
		{3, 4, 270},
		{1, 0, 0},
	}
	for _, tt := range tests {
		req := RenderRequest{Frame: tt.frame, FrameCount: tt.count}
		if got := req.Angle(); got != tt.want {
			t.Errorf("Angle(frame=%d, count=%d) = %v, want %v", tt.frame, tt.count, got, tt.want)
		}
	}
}

func TestExpandArgs(t *testing.T) {
	args := expandArgs("render --in {model_path} --angle {angle} --out {output}", map[string]string{
		"model_path": "/models/ring 01.glb",
		"angle":      "10.00",
		"output":     "/tmp/frame.png",
	})
	want := []string{"render", "--in", "/models/ring 01.glb", "--angle", "10.00", "--out", "/tmp/frame.png"}
	if strings.Join(args, "|") != strings.Join(want, "|") {
		t.Errorf("expandArgs() = %q, want %q", args, want)
	}
}

func TestEncoders_Registry(t *testing.T) {
	encoders := NewEncoders(map[string]string{"webp": "cwebp -q {quality} {input} -o {output}", "avif": ""}, t.TempDir())

	for _, format := range []string{"png", "jpg", "jpeg", "webp", "WEBP"} {
		if _, ok := encoders.Lookup(format); !ok {
			t.Errorf("expected encoder for %s", format)
		}
	}
	if _, ok := encoders.Lookup("avif"); ok {
		t.Error("empty command must not register an encoder")
	}
	if got := strings.Join(encoders.Formats(), ","); got != "jpeg,jpg,png,webp" {
		t.Errorf("Formats() = %s", got)
	}
}

func TestPNGEncoder_RoundTrip(t *testing.T) {
	data, err := PNGEncoder{}.Encode(context.Background(), testImage(), 80)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not PNG: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("expected width 8, got %d", img.Bounds().Dx())
	}
}

func TestJPEGEncoder_QualityAffectsSize(t *testing.T) {
	img, _ := SyntheticRenderer{}.Render(context.Background(), RenderRequest{Material: "platinum", Frame: 3, FrameCount: 36, Size: Size{Width: 128, Height: 128}})

	low, err := JPEGEncoder{}.Encode(context.Background(), img, 10)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	high, err := JPEGEncoder{}.Encode(context.Background(), img, 95)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("expected quality 10 (%d bytes) to be smaller than quality 95 (%d bytes)", len(low), len(high))
	}
	if _, err := jpeg.Decode(bytes.NewReader(high)); err != nil {
		t.Errorf("output is not JPEG: %v", err)
	}
}

func TestSyntheticRenderer(t *testing.T) {
	r := SyntheticRenderer{}
	req := RenderRequest{Model: "ring-01", Material: "rose-gold", FrameCount: 36, Size: Size{Width: 64, Height: 48}}

	first, err := r.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if first.Bounds().Dx() != 64 || first.Bounds().Dy() != 48 {
		t.Errorf("unexpected bounds %v", first.Bounds())
	}

	req.Frame = 18
	second, _ := r.Render(context.Background(), req)
	a, _ := PNGEncoder{}.Encode(context.Background(), first, 100)
	b, _ := PNGEncoder{}.Encode(context.Background(), second, 100)
	if bytes.Equal(a, b) {
		t.Error("expected frames at different angles to differ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, req); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestExecRenderer_Success(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	data, _ := PNGEncoder{}.Encode(context.Background(), testImage(), 100)
	if err := os.WriteFile(src, data, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewExecRenderer("cp "+src+" {output}", dir, filepath.Join(dir, "work"), 0)
	img, err := r.Render(context.Background(), RenderRequest{Model: "ring-01", Material: "platinum", FrameCount: 36})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("expected decoded 8px image, got %v", img.Bounds())
	}
}

func TestExecRenderer_FailureIsTransient(t *testing.T) {
	r := NewExecRenderer("false", t.TempDir(), t.TempDir(), 0)
	_, err := r.Render(context.Background(), RenderRequest{Model: "ring-01", Material: "platinum", FrameCount: 36})
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestExecRenderer_MissingOutputIsTransient(t *testing.T) {
	r := NewExecRenderer("true", t.TempDir(), t.TempDir(), 0)
	_, err := r.Render(context.Background(), RenderRequest{Model: "ring-01", Material: "platinum", FrameCount: 36})
	if !IsTransient(err) {
		t.Errorf("expected transient error for missing output, got %v", err)
	}
}

func TestExecRenderer_CommandNotFound(t *testing.T) {
	r := NewExecRenderer("nonexistent-binary-xyz {output}", t.TempDir(), t.TempDir(), 0)
	_, err := r.Render(context.Background(), RenderRequest{Model: "ring-01", Material: "platinum", FrameCount: 36})
	if err == nil {
		t.Fatal("expected error for non-existent command")
	}
	if IsTransient(err) {
		t.Error("a missing binary must not be retried")
	}
}

func TestExecEncoder(t *testing.T) {
	enc := NewExecEncoder("webp", "cp {input} {output}", t.TempDir())
	data, err := enc.Encode(context.Background(), testImage(), 80)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("expected copied PNG bytes: %v", err)
	}

	failing := NewExecEncoder("webp", "false", t.TempDir())
	if _, err := failing.Encode(context.Background(), testImage(), 80); !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}
