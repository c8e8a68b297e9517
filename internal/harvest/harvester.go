// Package harvest runs the noise producers. Every producer is the same
// polling worker parameterized by a capture function; per-source enable
// flags are polled once per iteration rather than branching per source. A
// producer whose backing resource is unavailable simply never emits.
package harvest

import (
	"context"
	"log"
	"time"

	"github.com/JupitersGhost/ChaosMagnet/internal/engine"
)

// CaptureFunc produces one raw sample buffer. Returning an error or an
// empty buffer skips the iteration; neither is fatal to the worker.
type CaptureFunc func() ([]byte, error)

// Harvester is one noise source: a stable tag, a polling interval, and a
// capture function.
type Harvester struct {
	Tag      string
	Interval time.Duration
	Capture  CaptureFunc
}

// Run polls until ctx is cancelled. Each iteration reads the source's
// enable flag; disabled sources idle at the polling interval. Captured
// buffers are submitted best-effort: health-check failures and channel
// backpressure both drop the sample without surfacing an error.
func (h *Harvester) Run(ctx context.Context, flags *engine.Flags, submit func(tag string, data []byte) bool) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !flags.Enabled(h.Tag) {
			continue
		}

		data, err := h.Capture()
		if err != nil {
			failures++
			if failures == 1 {
				// Log once per failure streak; a dead device would
				// otherwise flood the log at the polling interval.
				log.Printf("[harvest] %s capture: %v", h.Tag, err)
			}
			continue
		}
		failures = 0
		if len(data) == 0 {
			continue
		}
		submit(h.Tag, data)
	}
}

// StartAll launches one goroutine per harvester.
func StartAll(ctx context.Context, harvesters []*Harvester, flags *engine.Flags, submit func(tag string, data []byte) bool) {
	for _, h := range harvesters {
		go h.Run(ctx, flags, submit)
	}
}
