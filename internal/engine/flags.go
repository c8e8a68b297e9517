package engine

import "sync"

// Flags holds the per-source harvester enable toggles. Producers read their
// flag once per capture iteration; the control surface mutates it. A toggle
// flip may race with an in-flight sample, which is acceptable: the flag is
// best-effort gating of capture, not of processing.
type Flags struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

// NewFlags creates a flag set with the given source tags, all disabled.
func NewFlags(tags ...string) *Flags {
	m := make(map[string]bool, len(tags))
	for _, tag := range tags {
		m[tag] = false
	}
	return &Flags{enabled: m}
}

// Set enables or disables a source, registering unknown tags on first use.
func (f *Flags) Set(tag string, v bool) {
	f.mu.Lock()
	f.enabled[tag] = v
	f.mu.Unlock()
}

// Enabled reports whether the source is enabled. Unknown tags are disabled.
func (f *Flags) Enabled(tag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.enabled[tag]
}

// All returns a copy of the current flag map.
func (f *Flags) All() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.enabled))
	for tag, v := range f.enabled {
		out[tag] = v
	}
	return out
}
