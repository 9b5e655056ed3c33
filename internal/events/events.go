// Package events distributes assessment lifecycle events to in-process
// subscribers (the SSE endpoint) and, when configured, to Kafka for external
// observers.
package events

import (
	"time"
)

// Stage names one step of the assessment lifecycle.
type Stage string

const (
	StagePending      Stage = "pending"
	StageGathering    Stage = "gathering"
	StageSynthesizing Stage = "synthesizing"
	StageRecording    Stage = "recording"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Final reports whether this stage ends the request's lifecycle.
func (s Stage) Final() bool {
	return s == StageCompleted || s == StageFailed
}

// Event is one lifecycle notification. Progress events may be dropped under
// subscriber backpressure; an event for a final stage never is.
type Event struct {
	RequestID string            `json:"request_id"`
	SubjectID string            `json:"subject_id"`
	Stage     Stage             `json:"stage"`
	At        time.Time         `json:"at"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Final reports whether this is the last event the request will emit.
func (e Event) Final() bool {
	return e.Stage.Final()
}
