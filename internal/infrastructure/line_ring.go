package infrastructure

import (
	"strings"
	"sync"
)

const maxRingLineBytes = 512

// LineRing keeps the last N lines of process output for diagnostics
type LineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewLineRing creates a ring holding up to size lines
func NewLineRing(size int) *LineRing {
	if size < 1 {
		size = 1
	}
	return &LineRing{lines: make([]string, size)}
}

// Add appends a line, evicting the oldest when full. Long lines are truncated.
func (r *LineRing) Add(line string) {
	if len(line) > maxRingLineBytes {
		line = line[:maxRingLineBytes]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the retained lines, oldest first
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// String joins the retained lines with newlines
func (r *LineRing) String() string {
	return strings.Join(r.Lines(), "\n")
}
