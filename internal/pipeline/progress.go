package pipeline

import (
	"fmt"
	"sync"
)

const defaultProgressBuffer = 64

// progressFeed delivers progress events to a single consumer. Emit never
// blocks a search; events that do not fit the buffer are counted and
// discarded. Emit after Close is a no-op.
type progressFeed struct {
	mu      sync.Mutex
	events  chan ProgressEvent
	closed  bool
	dropped int
}

func newProgressFeed(buffer int) *progressFeed {
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	return &progressFeed{events: make(chan ProgressEvent, buffer)}
}

// emit reports whether the event was queued.
func (f *progressFeed) emit(ev ProgressEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.events <- ev:
		return true
	default:
		f.dropped++
		return false
	}
}

func (f *progressFeed) droppedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func (f *progressFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

// FormatProgress renders an event as one status line, e.g.
// "  ✓ [1/16] Aarau: 2 candidate(s)".
func FormatProgress(event ProgressEvent) string {
	pos := fmt.Sprintf("[%d/%d]", event.Index+1, event.Total)
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s %s (pending)", pos, event.Municipality)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s %s...", pos, event.Municipality)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s %s: %d candidate(s)", pos, event.Municipality, event.Candidates)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s %s failed: %s", pos, event.Municipality, event.Message)
	default:
		return fmt.Sprintf("  ? %s %s (unknown status)", pos, event.Municipality)
	}
}
