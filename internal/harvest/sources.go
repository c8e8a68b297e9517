package harvest

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Source tags. Stable labels: they key the per-source quality ledger and
// are mixed into the pool chain.
const (
	TagTRNG  = "TRNG"
	TagSys   = "SYS"
	TagClock = "CLOCK"
)

// DefaultHarvesters returns the built-in noise sources.
func DefaultHarvesters() []*Harvester {
	return []*Harvester{
		{Tag: TagTRNG, Interval: time.Second, Capture: captureTRNG},
		{Tag: TagSys, Interval: 500 * time.Millisecond, Capture: captureSystem},
		{Tag: TagClock, Interval: 250 * time.Millisecond, Capture: captureClockJitter},
	}
}

// captureTRNG reads a block from the operating system's hardware-backed
// random source.
func captureTRNG() ([]byte, error) {
	buf := make([]byte, 1024)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// captureSystem samples CPU utilization and memory counters plus a
// nanosecond timestamp. The telemetry itself is low-entropy; the jitter in
// its low-order bits and the timing is what contributes.
func captureSystem() ([]byte, error) {
	percents, err := cpu.Percent(0, true)
	if err != nil {
		return nil, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	if len(percents) == 0 {
		return nil, errors.New("no cpu telemetry")
	}

	buf := make([]byte, 0, len(percents)*8+32)
	var scratch [8]byte
	for _, p := range percents {
		binary.LittleEndian.PutUint64(scratch[:], uint64(p*1e6))
		buf = append(buf, scratch[:]...)
	}
	binary.LittleEndian.PutUint64(scratch[:], vm.Used)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], vm.Available)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], uint64(time.Now().UnixNano()))
	buf = append(buf, scratch[:]...)
	return buf, nil
}

// captureClockJitter measures scheduler and clock jitter: deltas between
// consecutive tight-loop clock reads. Stands in for the HID/audio/camera
// hooks of richer deployments, which live outside this process boundary.
func captureClockJitter() ([]byte, error) {
	const rounds = 64
	buf := make([]byte, 0, rounds+8)
	prev := time.Now().UnixNano()
	for i := 0; i < rounds; i++ {
		time.Sleep(time.Microsecond)
		now := time.Now().UnixNano()
		buf = append(buf, byte(now-prev))
		prev = now
	}
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], uint64(prev))
	buf = append(buf, scratch[:]...)
	return buf, nil
}
