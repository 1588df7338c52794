package render

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"math"
)

// materialTints are the swatches used for well-known materials.
var materialTints = map[string]color.RGBA{
	"platinum":    {R: 0xE5, G: 0xE4, B: 0xE2, A: 0xFF},
	"white-gold":  {R: 0xF5, G: 0xF3, B: 0xEE, A: 0xFF},
	"yellow-gold": {R: 0xE6, G: 0xC2, B: 0x4C, A: 0xFF},
	"rose-gold":   {R: 0xB7, G: 0x6E, B: 0x79, A: 0xFF},
	"silver":      {R: 0xC0, G: 0xC0, B: 0xC0, A: 0xFF},
}

// SyntheticRenderer draws a placeholder turntable frame: a material tinted disc
// with a marker at the frame angle. Used for local development and smoke tests.
type SyntheticRenderer struct{}

func (SyntheticRenderer) Render(ctx context.Context, req RenderRequest) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := req.Size.Width, req.Size.Height
	if w <= 0 || h <= 0 {
		w, h = 256, 256
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := color.RGBA{R: 0xFA, G: 0xFA, B: 0xFA, A: 0xFF}
	tint := tintFor(req.Material)

	cx, cy := float64(w)/2, float64(h)/2
	radius := math.Min(cx, cy) * 0.7
	theta := req.Angle() * math.Pi / 180
	mx, my := cx+math.Cos(theta)*radius*0.75, cy+math.Sin(theta)*radius*0.75
	marker := radius * 0.12

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			switch {
			case math.Hypot(px-mx, py-my) <= marker:
				img.SetRGBA(x, y, color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF})
			case math.Hypot(px-cx, py-cy) <= radius:
				img.SetRGBA(x, y, tint)
			default:
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img, nil
}

func tintFor(material string) color.RGBA {
	if c, ok := materialTints[material]; ok {
		return c
	}
	h := fnv.New32a()
	h.Write([]byte(material))
	sum := h.Sum32()
	return color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xFF}
}
