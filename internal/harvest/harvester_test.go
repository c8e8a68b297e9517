package harvest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JupitersGhost/ChaosMagnet/internal/engine"
)

type collector struct {
	mu      sync.Mutex
	samples map[string]int
}

func newCollector() *collector {
	return &collector{samples: make(map[string]int)}
}

func (c *collector) submit(tag string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[tag]++
	return true
}

func (c *collector) count(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples[tag]
}

func TestHarvester_DisabledSourceEmitsNothing(t *testing.T) {
	flags := engine.NewFlags("X")
	col := newCollector()
	h := &Harvester{
		Tag:      "X",
		Interval: 5 * time.Millisecond,
		Capture:  func() ([]byte, error) { return []byte{1, 2, 3}, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx, flags, col.submit)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if got := col.count("X"); got != 0 {
		t.Fatalf("disabled harvester emitted %d samples", got)
	}
}

func TestHarvester_EnabledSourceEmits(t *testing.T) {
	flags := engine.NewFlags("X")
	flags.Set("X", true)
	col := newCollector()
	h := &Harvester{
		Tag:      "X",
		Interval: 5 * time.Millisecond,
		Capture:  func() ([]byte, error) { return []byte{1, 2, 3}, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, flags, col.submit)

	deadline := time.After(2 * time.Second)
	for col.count("X") == 0 {
		select {
		case <-deadline:
			t.Fatal("enabled harvester never emitted")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHarvester_ToggleMidRun(t *testing.T) {
	flags := engine.NewFlags("X")
	col := newCollector()
	h := &Harvester{
		Tag:      "X",
		Interval: 5 * time.Millisecond,
		Capture:  func() ([]byte, error) { return []byte{9}, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, flags, col.submit)

	time.Sleep(30 * time.Millisecond)
	if col.count("X") != 0 {
		t.Fatal("should be silent before enable")
	}
	flags.Set("X", true)

	deadline := time.After(2 * time.Second)
	for col.count("X") == 0 {
		select {
		case <-deadline:
			t.Fatal("never emitted after enable")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHarvester_CaptureErrorSkipsIteration(t *testing.T) {
	flags := engine.NewFlags("X")
	flags.Set("X", true)
	col := newCollector()

	calls := 0
	var mu sync.Mutex
	h := &Harvester{
		Tag:      "X",
		Interval: 5 * time.Millisecond,
		Capture: func() ([]byte, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls%2 == 1 {
				return nil, context.DeadlineExceeded
			}
			return []byte{1}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx, flags, col.submit)

	deadline := time.After(2 * time.Second)
	for col.count("X") < 2 {
		select {
		case <-deadline:
			t.Fatal("worker did not survive capture errors")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCaptureTRNG_ProducesFullBlock(t *testing.T) {
	buf, err := captureTRNG()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(buf) != 1024 {
		t.Fatalf("len = %d, want 1024", len(buf))
	}
}

func TestCaptureClockJitter_NonEmpty(t *testing.T) {
	buf, err := captureClockJitter()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(buf) < 64 {
		t.Fatalf("len = %d, want >= 64", len(buf))
	}
}
