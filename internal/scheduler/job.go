package scheduler

import (
	"context"
	"time"

	"spinframe/internal/render"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// Settings control how every sequence of a job is produced.
type Settings struct {
	FrameCount int
	Size       render.Size
	Formats    []string
	Quality    map[string]int
}

// Overrides are the per-request changes to the configured defaults. A nil FrameCount,
// a zero Size dimension, empty Formats and formats missing from Quality take the
// default; an explicit FrameCount or Quality value must be valid.
type Overrides struct {
	FrameCount *int
	Size       render.Size
	Formats    []string
	Quality    map[string]int
}

// Request asks for sequences of every model in every material.
type Request struct {
	ModelIDs  []string
	Materials []string
	Settings  Overrides
}

// plan is an admitted request with every default resolved.
type plan struct {
	ModelIDs  []string
	Materials []string
	Settings  Settings
}

// Pair is one (model, material) sequence.
type Pair struct {
	Model    string
	Material string
}

// Job is a point-in-time snapshot of a generation job.
type Job struct {
	ID       string
	Status   Status
	Progress float64

	ModelIDs  []string
	Materials []string
	Settings  Settings

	CurrentModel    string
	CurrentMaterial string
	CurrentFrame    *int

	SubmittedAt         time.Time
	StartedAt           *time.Time
	FinishedAt          *time.Time
	EstimatedCompletion *time.Time

	Error          string
	SkippedPairs   []Pair
	TotalUnits     int
	CompletedUnits int
}

// Metrics are scheduler-wide counters. ActiveJobs + QueueSize + CompletedJobs +
// FailedJobs never exceeds TotalJobs.
type Metrics struct {
	TotalJobs     int
	ActiveJobs    int
	QueueSize     int
	CompletedJobs int
	FailedJobs    int
	StoppedJobs   int

	SkippedPairs  int64
	UnitsRendered int64
	UnitsRetried  int64
}

// job is the mutable registry entry. All fields are guarded by Scheduler.mu.
type job struct {
	id       string
	plan     plan
	files    map[string]string
	status   Status
	progress float64

	currentModel    string
	currentMaterial string
	currentFrame    int
	hasCurrent      bool

	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time

	err            string
	skipped        []Pair
	totalUnits     int
	completedUnits int
	unitTime       time.Duration

	cancel          context.CancelFunc
	cancelRequested bool
}

func (j *job) pairs() []Pair {
	out := make([]Pair, 0, len(j.plan.ModelIDs)*len(j.plan.Materials))
	for _, m := range j.plan.ModelIDs {
		for _, mat := range j.plan.Materials {
			out = append(out, Pair{Model: m, Material: mat})
		}
	}
	return out
}

func (j *job) references(model string) bool {
	for _, m := range j.plan.ModelIDs {
		if m == model {
			return true
		}
	}
	return false
}

func (j *job) updateProgress() {
	if j.totalUnits <= 0 {
		return
	}
	j.progress = float64(j.completedUnits) / float64(j.totalUnits) * 100
}

func (j *job) snapshot(now time.Time) Job {
	out := Job{
		ID:              j.id,
		Status:          j.status,
		Progress:        j.progress,
		ModelIDs:        append([]string(nil), j.plan.ModelIDs...),
		Materials:       append([]string(nil), j.plan.Materials...),
		Settings:        copySettings(j.plan.Settings),
		CurrentModel:    j.currentModel,
		CurrentMaterial: j.currentMaterial,
		SubmittedAt:     j.submittedAt,
		Error:           j.err,
		SkippedPairs:    append([]Pair(nil), j.skipped...),
		TotalUnits:      j.totalUnits,
		CompletedUnits:  j.completedUnits,
	}
	if j.hasCurrent {
		frame := j.currentFrame
		out.CurrentFrame = &frame
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		out.StartedAt = &t
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		out.FinishedAt = &t
	}
	if j.status == StatusProcessing && j.completedUnits > 0 && j.totalUnits > j.completedUnits {
		avg := j.unitTime / time.Duration(j.completedUnits)
		eta := now.Add(avg * time.Duration(j.totalUnits-j.completedUnits))
		out.EstimatedCompletion = &eta
	}
	return out
}

func copySettings(s Settings) Settings {
	out := s
	out.Formats = append([]string(nil), s.Formats...)
	out.Quality = make(map[string]int, len(s.Quality))
	for k, v := range s.Quality {
		out.Quality[k] = v
	}
	return out
}
