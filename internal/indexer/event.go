// Package indexer keeps the graph and chunk stores in sync with a working
// tree: a bounded coalescing queue of file events, batched extraction on a
// worker pool, the name linker, full builds and a file watcher.
package indexer

import "time"

// EventType is the kind of file change.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// Event is a change to one file. Path is relative to the project root.
type Event struct {
	ProjectID string    `json:"projectId"`
	Path      string    `json:"path"`
	Type      EventType `json:"type"`
}

// FileState is the per-file state within a batch.
type FileState string

const (
	StateQueued     FileState = "queued"
	StateExtracting FileState = "extracting"
	StateApplying   FileState = "applying"
	StateDone       FileState = "done"
	StateFailed     FileState = "failed"
)

// ProgressEvent reports a file's state change.
type ProgressEvent struct {
	ProjectID string        `json:"projectId"`
	Path      string        `json:"path"`
	State     FileState     `json:"state"`
	Attempt   int           `json:"attempt,omitempty"`
	Message   string        `json:"message,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
}

// BatchReport summarizes one processed batch or build.
type BatchReport struct {
	Files      int           `json:"files"`
	Indexed    int           `json:"indexed"`
	Unchanged  int           `json:"unchanged"`
	Deleted    int           `json:"deleted"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Dependents int           `json:"dependents"`
	Edges      int           `json:"edges"`
	Duration   time.Duration `json:"duration"`
}

func (r *BatchReport) add(o BatchReport) {
	r.Files += o.Files
	r.Indexed += o.Indexed
	r.Unchanged += o.Unchanged
	r.Deleted += o.Deleted
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Dependents += o.Dependents
	r.Edges += o.Edges
}
