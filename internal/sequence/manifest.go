package sequence

import "time"

// ManifestFile is the name of the manifest written into every sequence directory.
const ManifestFile = "manifest.json"

// Manifest records how a sequence was produced. The storefront viewer reads it
// to know how many frames exist and in which formats.
type Manifest struct {
	ModelID           string         `json:"modelId"`
	MaterialID        string         `json:"materialId"`
	FrameCount        int            `json:"frameCount"`
	RotationIncrement float64        `json:"rotationIncrement"`
	Formats           []string       `json:"formats"`
	ImageSize         ImageSize      `json:"imageSize"`
	Quality           map[string]int `json:"quality,omitempty"`
	GeneratedAt       time.Time      `json:"generatedAt"`
	Generator         Generator      `json:"generator"`
	JobID             string         `json:"jobId,omitempty"`
}

// ImageSize is the raster size of every frame.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Generator identifies the software that wrote the sequence.
type Generator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RotationIncrement is the angle in degrees between consecutive frames.
func RotationIncrement(frameCount int) float64 {
	if frameCount <= 0 {
		return 0
	}
	return 360 / float64(frameCount)
}
