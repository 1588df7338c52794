// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// Job statuses as reported by the API.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusStopped    = "stopped"
)

// IsTerminal reports whether a job status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError || status == StatusStopped
}

// ImageSize is a raster size in pixels.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GenerationSettings are optional overrides of the generation defaults. An omitted
// imageCount takes the default; an explicit value must be positive.
type GenerationSettings struct {
	ImageCount *int           `json:"imageCount,omitempty"`
	ImageSize  *ImageSize     `json:"imageSize,omitempty"`
	Formats    []string       `json:"formats,omitempty"`
	Quality    map[string]int `json:"quality,omitempty"`
}

// SubmitJobRequest is the request body for POST /jobs.
type SubmitJobRequest struct {
	ModelIDs  []string            `json:"modelIds"`
	Materials []string            `json:"materials,omitempty"`
	Settings  *GenerationSettings `json:"settings,omitempty"`
}

// SubmitJobResponse is the response body after a job was admitted.
type SubmitJobResponse struct {
	JobID string `json:"jobId"`
}

// Pair is a (model, material) sequence.
type Pair struct {
	Model    string `json:"model"`
	Material string `json:"material"`
}

// JobResponse is the snapshot of a generation job.
type JobResponse struct {
	ID                  string             `json:"id"`
	Status              string             `json:"status"`
	Progress            float64            `json:"progress"`
	CurrentModel        string             `json:"currentModel,omitempty"`
	CurrentMaterial     string             `json:"currentMaterial,omitempty"`
	CurrentFrame        *int               `json:"currentFrame,omitempty"`
	Error               string             `json:"error,omitempty"`
	ModelIDs            []string           `json:"modelIds"`
	Materials           []string           `json:"materials"`
	Settings            GenerationSettings `json:"settings"`
	SubmittedAt         time.Time          `json:"submittedAt"`
	StartedAt           *time.Time         `json:"startedAt,omitempty"`
	FinishedAt          *time.Time         `json:"finishedAt,omitempty"`
	EstimatedCompletion *time.Time         `json:"estimatedCompletion,omitempty"`
	SkippedPairs        []Pair             `json:"skippedPairs,omitempty"`
	TotalUnits          int                `json:"totalUnits"`
	CompletedUnits      int                `json:"completedUnits"`
}

// MetricsResponse holds the scheduler counters.
type MetricsResponse struct {
	TotalJobs     int   `json:"totalJobs"`
	ActiveJobs    int   `json:"activeJobs"`
	QueueSize     int   `json:"queueSize"`
	CompletedJobs int   `json:"completedJobs"`
	FailedJobs    int   `json:"failedJobs"`
	StoppedJobs   int   `json:"stoppedJobs"`
	SkippedPairs  int64 `json:"skippedPairs"`
	UnitsRendered int64 `json:"unitsRendered"`
	UnitsRetried  int64 `json:"unitsRetried"`
}

// JobListResponse is the response body for GET /jobs.
type JobListResponse struct {
	Jobs    []JobResponse   `json:"jobs"`
	Metrics MetricsResponse `json:"metrics"`
}

// CancelJobResponse confirms a cancellation.
type CancelJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SequenceAvailability describes the sequence of a model in one material.
type SequenceAvailability struct {
	Material    string     `json:"material"`
	Complete    bool       `json:"complete"`
	FrameCount  int        `json:"frameCount"`
	Formats     []string   `json:"formats,omitempty"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

// ModelResponse is a catalog model with its sequences.
type ModelResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	File      string                 `json:"file"`
	Materials []string               `json:"materials,omitempty"`
	Sequences []SequenceAvailability `json:"sequences"`
}

// ModelListResponse is the response body for GET /models.
type ModelListResponse struct {
	Models []ModelResponse `json:"models"`
}

// DeleteModelResponse reports the sequences removed with a model.
type DeleteModelResponse struct {
	ID               string   `json:"id"`
	DeletedSequences []string `json:"deletedSequences"`
}

// ResourcesResponse is the current host resource snapshot.
type ResourcesResponse struct {
	MemoryTotal    uint64    `json:"memoryTotal"`
	MemoryUsed     uint64    `json:"memoryUsed"`
	MemoryPercent  float64   `json:"memoryPercent"`
	MemoryPressure string    `json:"memoryPressure"`
	DiskPath       string    `json:"diskPath"`
	DiskTotal      uint64    `json:"diskTotal"`
	DiskFree       uint64    `json:"diskFree"`
	DiskPressure   string    `json:"diskPressure"`
	TakenAt        time.Time `json:"takenAt"`
}

// ErrorResponse is the standard error response format. Admission errors caused by
// resource pressure also carry both pressure classifications.
type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	Details        string `json:"details,omitempty"`
	MemoryPressure string `json:"memoryPressure,omitempty"`
	DiskPressure   string `json:"diskPressure,omitempty"`
}
