// Package events publishes job lifecycle events to external subscribers such as
// storefront cache invalidators or operator dashboards.
package events

import (
	"context"
	"time"
)

// Type identifies a job lifecycle event.
type Type string

const (
	JobSubmitted Type = "job.submitted"
	JobStarted   Type = "job.started"
	JobProgress  Type = "job.progress"
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
	JobStopped   Type = "job.stopped"
)

// Event is a point-in-time view of a job. Progress events carry the pair that just finished.
type Event struct {
	Type           Type      `json:"type" msgpack:"type"`
	JobID          string    `json:"jobId" msgpack:"jobId"`
	Status         string    `json:"status" msgpack:"status"`
	Progress       float64   `json:"progress" msgpack:"progress"`
	Model          string    `json:"model,omitempty" msgpack:"model,omitempty"`
	Material       string    `json:"material,omitempty" msgpack:"material,omitempty"`
	CompletedUnits int       `json:"completedUnits" msgpack:"completedUnits"`
	TotalUnits     int       `json:"totalUnits" msgpack:"totalUnits"`
	Error          string    `json:"error,omitempty" msgpack:"error,omitempty"`
	At             time.Time `json:"at" msgpack:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
