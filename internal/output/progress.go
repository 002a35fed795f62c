package output

import (
	"io"
	"sync"
)

// Marker is a single-character progress signal.
type Marker byte

const (
	// MarkIgnored is printed when a subject matches an ignore rule.
	MarkIgnored Marker = 'X'
	// MarkAlreadyTested is printed when the session already tested the subject.
	MarkAlreadyTested Marker = 'A'
	// MarkInactive is printed when a known inactive subject is not retested.
	MarkInactive Marker = 'I'
	// MarkMined is printed when a subject discovered while testing is queued.
	MarkMined Marker = 'M'
	// MarkDropped is printed when a malformed message is discarded.
	MarkDropped Marker = 'D'
)

// Progress writes markers to a terminal and counts them.
// A nil *Progress is valid and does nothing.
type Progress struct {
	mu     sync.Mutex
	w      io.Writer
	counts map[Marker]int
}

// NewProgress creates a Progress writing to w. A nil w only counts.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, counts: make(map[Marker]int)}
}

// Mark records and prints one marker.
func (p *Progress) Mark(m Marker) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[m]++
	if p.w != nil {
		_, _ = p.w.Write([]byte{byte(m)})
	}
}

// Count returns how many times m was marked.
func (p *Progress) Count(m Marker) int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[m]
}
