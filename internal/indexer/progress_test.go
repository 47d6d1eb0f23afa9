package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReporter_DropsWhenFull(t *testing.T) {
	pr := NewProgressReporter(2)
	pr.Emit(ProgressEvent{Path: "a.go", State: StateQueued})
	pr.Emit(ProgressEvent{Path: "b.go", State: StateQueued})
	pr.Emit(ProgressEvent{Path: "c.go", State: StateQueued})
	pr.Close()

	var paths []string
	for ev := range pr.Subscribe() {
		paths = append(paths, ev.Path)
	}
	assert.Equal(t, []string{"a.go", "b.go"}, paths)
}

func TestNewProgressReporter_DefaultBuffer(t *testing.T) {
	pr := NewProgressReporter(0)
	require.Equal(t, 64, cap(pr.ch))
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		event ProgressEvent
		want  string
	}{
		{ProgressEvent{Path: "a.go", State: StateQueued}, "  ○ a.go (queued)"},
		{ProgressEvent{Path: "a.go", State: StateExtracting}, "  ● a.go extracting..."},
		{ProgressEvent{Path: "a.go", State: StateApplying}, "  ● a.go applying..."},
		{ProgressEvent{Path: "a.go", State: StateDone}, "  ✓ a.go"},
		{ProgressEvent{Path: "a.go", State: StateDone, Message: "indexed"}, "  ✓ a.go (indexed)"},
		{ProgressEvent{Path: "a.go", State: StateFailed, Attempt: 3, Message: "boom"}, "  ✗ a.go failed (attempt 3): boom"},
		{ProgressEvent{Path: "a.go", State: FileState("odd")}, "  ? a.go (unknown state)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.event.State)+tt.event.Message, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProgress(tt.event))
		})
	}
}
