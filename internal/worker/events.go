package worker

import (
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
)

// EventHeader carries the identity shared by all conversion events.
type EventHeader struct {
	WorkflowID string    `json:"workflow_id"`
	JobID      string    `json:"job_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversionRequestedEvent asks the worker to convert one uploaded book.
type ConversionRequestedEvent struct {
	Header EventHeader `json:"header"`

	// SourceKey locates the uploaded book in the source object store.
	SourceKey string `json:"source_key"`

	// FileName is the original upload name; its extension participates in
	// format detection.
	FileName string `json:"file_name"`

	// Voice is the requested voice ID; empty selects the default.
	Voice string `json:"voice,omitempty"`

	// WordLimit truncates each chapter when positive.
	WordLimit int `json:"word_limit,omitempty"`
}

// ConversionProgressEvent reports job progress to the progress subject.
type ConversionProgressEvent struct {
	Header  EventHeader    `json:"header"`
	Status  core.JobStatus `json:"status"`
	Percent int            `json:"progress_percent"`
	Phase   string         `json:"phase_description"`
}

// ConversionCompletedEvent is the terminal reply for one job.
type ConversionCompletedEvent struct {
	Header EventHeader `json:"header"`

	Success bool `json:"success"`

	// AudioKeys are the object store keys of the per-chapter audio files,
	// in chapter order.
	AudioKeys []string `json:"audio_keys,omitempty"`

	Manifest *core.Manifest `json:"manifest,omitempty"`

	Error string `json:"error,omitempty"`
}
