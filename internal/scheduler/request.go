package scheduler

import (
	"strings"

	"spinframe/internal/render"
	"spinframe/internal/sequence"
)

// Limits bound the size of a single request.
type Limits struct {
	MaxModels     int
	MaxMaterials  int
	MaxFrameCount int
	MinDimension  int
	MaxDimension  int
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxModels:     50,
		MaxMaterials:  20,
		MaxFrameCount: 360,
		MinDimension:  64,
		MaxDimension:  4096,
	}
}

// DefaultSettings returns 36 frames of 800x800 in webp, avif and jpg.
func DefaultSettings() Settings {
	return Settings{
		FrameCount: 36,
		Size:       render.Size{Width: 800, Height: 800},
		Formats:    []string{"webp", "avif", "jpg"},
		Quality:    map[string]int{"webp": 85, "avif": 75, "jpg": 90},
	}
}

// normalize fills defaults, collapses duplicates and validates req.
func (s *Scheduler) normalize(req Request) (plan, *AdmissionError) {
	out := plan{
		ModelIDs:  dedupe(req.ModelIDs),
		Materials: dedupe(req.Materials),
		Settings: Settings{
			FrameCount: intOr(req.Settings.FrameCount, s.cfg.Defaults.FrameCount),
			Size:       req.Settings.Size,
			Formats:    req.Settings.Formats,
			Quality:    req.Settings.Quality,
		},
	}
	limits := s.cfg.Limits
	defaults := s.cfg.Defaults

	if len(out.ModelIDs) == 0 {
		return out, invalidRequest("at least one model id is required")
	}
	if len(out.ModelIDs) > limits.MaxModels {
		return out, invalidRequest("too many models: %d (max %d)", len(out.ModelIDs), limits.MaxModels)
	}
	for _, id := range out.ModelIDs {
		if !sequence.ValidID(id) {
			return out, invalidRequest("invalid model id %q", id)
		}
	}

	if len(out.Materials) == 0 {
		out.Materials = append([]string(nil), s.cfg.DefaultMaterials...)
	}
	if len(out.Materials) > limits.MaxMaterials {
		return out, invalidRequest("too many materials: %d (max %d)", len(out.Materials), limits.MaxMaterials)
	}
	for _, id := range out.Materials {
		if !sequence.ValidID(id) {
			return out, invalidRequest("invalid material id %q", id)
		}
	}

	settings := &out.Settings
	if settings.FrameCount < 1 || settings.FrameCount > limits.MaxFrameCount {
		return out, invalidRequest("frame count must be between 1 and %d, got %d", limits.MaxFrameCount, settings.FrameCount)
	}

	if settings.Size.Width == 0 {
		settings.Size.Width = defaults.Size.Width
	}
	if settings.Size.Height == 0 {
		settings.Size.Height = defaults.Size.Height
	}
	for _, d := range []int{settings.Size.Width, settings.Size.Height} {
		if d < limits.MinDimension || d > limits.MaxDimension {
			return out, invalidRequest("image size must be between %d and %d pixels, got %dx%d",
				limits.MinDimension, limits.MaxDimension, settings.Size.Width, settings.Size.Height)
		}
	}

	formats := make([]string, 0, len(settings.Formats))
	for _, f := range settings.Formats {
		formats = append(formats, strings.ToLower(strings.TrimSpace(f)))
	}
	settings.Formats = dedupe(formats)
	if len(settings.Formats) == 0 {
		settings.Formats = append([]string(nil), defaults.Formats...)
	}
	for _, f := range settings.Formats {
		if _, ok := s.encoders.Lookup(f); !ok {
			return out, invalidRequest("unsupported format %q (available: %s)", f, strings.Join(s.encoders.Formats(), ", "))
		}
	}

	quality := make(map[string]int, len(settings.Formats))
	for _, f := range settings.Formats {
		q, ok := settings.Quality[f]
		if !ok {
			q = defaults.Quality[f]
			if q == 0 {
				q = 90
			}
		}
		if q < 1 || q > 100 {
			return out, invalidRequest("quality for %s must be between 1 and 100, got %d", f, q)
		}
		quality[f] = q
	}
	settings.Quality = quality

	return out, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// dedupe drops empty and repeated ids, keeping first occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
