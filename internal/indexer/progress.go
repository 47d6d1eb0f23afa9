package indexer

import "fmt"

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of
// size buffer (64 when buffer <= 0).
func NewProgressReporter(buffer int) *ProgressReporter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ProgressReporter{ch: make(chan ProgressEvent, buffer)}
}

// Emit sends a progress event in a non-blocking fashion. If the channel is
// full, the event is dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.State {
	case StateQueued:
		return fmt.Sprintf("  ○ %s (queued)", event.Path)
	case StateExtracting:
		return fmt.Sprintf("  ● %s extracting...", event.Path)
	case StateApplying:
		return fmt.Sprintf("  ● %s applying...", event.Path)
	case StateDone:
		if event.Message != "" {
			return fmt.Sprintf("  ✓ %s (%s)", event.Path, event.Message)
		}
		return fmt.Sprintf("  ✓ %s", event.Path)
	case StateFailed:
		return fmt.Sprintf("  ✗ %s failed (attempt %d): %s", event.Path, event.Attempt, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown state)", event.Path)
	}
}
