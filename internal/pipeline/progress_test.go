package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressFeed_Delivers(t *testing.T) {
	f := newProgressFeed(4)
	defer f.close()

	want := ProgressEvent{Index: 0, Total: 3, Municipality: "Aarau", Status: ProgressWorking}
	require.True(t, f.emit(want))
	assert.Equal(t, want, <-f.events)
	assert.Zero(t, f.droppedCount())
}

func TestProgressFeed_FullBufferDropsAndCounts(t *testing.T) {
	f := newProgressFeed(2)
	defer f.close()

	for i := 0; i < 5; i++ {
		f.emit(ProgressEvent{Index: i, Total: 5, Municipality: "Baden", Status: ProgressPending})
	}
	assert.Equal(t, 3, f.droppedCount())
	assert.Equal(t, 0, (<-f.events).Index, "oldest events are kept")
	assert.Equal(t, 1, (<-f.events).Index)
}

func TestProgressFeed_CloseIsIdempotent(t *testing.T) {
	f := newProgressFeed(0)
	f.close()
	f.close()

	assert.False(t, f.emit(ProgressEvent{Municipality: "Brugg", Status: ProgressComplete}))
	_, open := <-f.events
	assert.False(t, open)
	assert.Zero(t, f.droppedCount(), "emit after close is not a drop")
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{"pending", ProgressEvent{Index: 0, Total: 2, Municipality: "Aarau", Status: ProgressPending}, "  ○ [1/2] Aarau (pending)"},
		{"working", ProgressEvent{Index: 1, Total: 2, Municipality: "Baden", Status: ProgressWorking}, "  ● [2/2] Baden..."},
		{"complete", ProgressEvent{Index: 0, Total: 2, Municipality: "Aarau", Status: ProgressComplete, Candidates: 3}, "  ✓ [1/2] Aarau: 3 candidate(s)"},
		{"failed", ProgressEvent{Index: 1, Total: 2, Municipality: "Baden", Status: ProgressFailed, Message: "NetworkError: request timed out"}, "  ✗ [2/2] Baden failed: NetworkError: request timed out"},
		{"unknown", ProgressEvent{Index: 0, Total: 1, Municipality: "Wohlen", Status: "weird"}, "  ? [1/1] Wohlen (unknown status)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProgress(tt.event))
		})
	}
}
