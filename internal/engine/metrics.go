package engine

import (
	"time"
)

// emaWeight is the new-sample weight of the per-source Shannon moving
// average; the retained weight is its complement.
const emaWeight = 0.05

// SourceQuality is the per-source quality ledger entry. Entries are created
// lazily on a source's first sample and never evicted.
type SourceQuality struct {
	RawShannon    float64 `json:"raw_shannon"`
	MinEntropy    float64 `json:"min_entropy"`
	Samples       uint64  `json:"samples"`
	AvgRawEntropy float64 `json:"avg_entropy"`
	TotalBits     float64 `json:"total_bits"`
}

// sourceTracker keys SourceQuality by source tag. Not synchronized; the
// engine lock guards it.
type sourceTracker struct {
	entries map[string]*SourceQuality
}

func newSourceTracker() *sourceTracker {
	return &sourceTracker{entries: make(map[string]*SourceQuality)}
}

// observe updates the entry for source with one raw sample's estimates. The
// first sample seeds the moving average; afterwards the average retains 95%
// of its previous value.
func (t *sourceTracker) observe(source string, shannon, minEnt, contribution float64) {
	q, ok := t.entries[source]
	if !ok {
		q = &SourceQuality{}
		t.entries[source] = q
	}
	q.Samples++
	q.RawShannon = shannon
	q.MinEntropy = minEnt
	q.TotalBits += contribution
	if q.Samples == 1 {
		q.AvgRawEntropy = shannon
	} else {
		q.AvgRawEntropy = q.AvgRawEntropy*(1-emaWeight) + shannon*emaWeight
	}
}

// snapshot returns a deep copy of all entries.
func (t *sourceTracker) snapshot() map[string]SourceQuality {
	out := make(map[string]SourceQuality, len(t.entries))
	for tag, q := range t.entries {
		out[tag] = *q
	}
	return out
}

// auditLog is the bounded in-memory log tail surfaced on the control
// surface. Oldest entries are evicted at capacity.
type auditLog struct {
	lines []string
	cap   int
}

func newAuditLog(capacity int) *auditLog {
	return &auditLog{lines: make([]string, 0, capacity), cap: capacity}
}

func (l *auditLog) add(msg string) {
	line := "[" + time.Now().Format("15:04:05") + "] " + msg
	if len(l.lines) >= l.cap {
		copy(l.lines, l.lines[1:])
		l.lines = l.lines[:len(l.lines)-1]
	}
	l.lines = append(l.lines, line)
}

func (l *auditLog) tail() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
