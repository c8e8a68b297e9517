// Package pool holds the conditioning state of the pipeline: the extraction
// (whitening) accumulator, the hash-chained mixing pool, and the bounded
// display histories. None of these types synchronize internally; the engine
// owns them behind its single coordinator lock.
package pool

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// ExtractionThreshold is the raw byte count that triggers an extraction.
const ExtractionThreshold = 200

// ExtractedSize is the fixed whitened output size (SHA-256 digest).
const ExtractedSize = sha256.Size

// Extractor accumulates raw bytes of uncertain quality and condenses each
// full buffer into a fixed-size whitened output. The extraction counter is
// hashed in as a nonce so identical buffered bytes can never reproduce an
// output; it is monotonic for the life of the process.
type Extractor struct {
	buf            []byte
	count          uint64
	lastExtraction time.Time
	rawConsumed    uint64
	extracted      uint64
}

// NewExtractor returns an empty Extractor.
func NewExtractor() *Extractor {
	return &Extractor{buf: make([]byte, 0, ExtractionThreshold)}
}

// AddRaw appends raw bytes regardless of source. When the accumulated buffer
// reaches the threshold it extracts and returns the 32-byte whitened output;
// otherwise it returns nil (still buffering).
func (e *Extractor) AddRaw(data []byte) []byte {
	e.buf = append(e.buf, data...)
	if len(e.buf) < ExtractionThreshold {
		return nil
	}
	return e.extract()
}

// extract digests buffer||counter, clears the buffer, bumps the counter and
// stamps the wall clock. The buffer clear and counter increment are one
// atomic step from the caller's point of view.
func (e *Extractor) extract() []byte {
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], e.count)

	h := sha256.New()
	h.Write(e.buf)
	h.Write(nonce[:])
	out := h.Sum(nil)

	e.rawConsumed += uint64(len(e.buf))
	e.extracted += ExtractedSize
	e.buf = e.buf[:0]
	e.count++
	e.lastExtraction = time.Now()
	return out
}

// Count returns the number of extractions performed since process start.
func (e *Extractor) Count() uint64 { return e.count }

// Accumulated returns the number of raw bytes currently buffered.
func (e *Extractor) Accumulated() int { return len(e.buf) }

// FillPercent reports how full the accumulation buffer is, 0..100.
func (e *Extractor) FillPercent() float64 {
	return float64(len(e.buf)) / float64(ExtractionThreshold) * 100.0
}

// RawConsumed returns the cumulative raw bytes consumed by extractions.
func (e *Extractor) RawConsumed() uint64 { return e.rawConsumed }

// ExtractedBytes returns the cumulative whitened bytes produced.
func (e *Extractor) ExtractedBytes() uint64 { return e.extracted }

// LastExtraction returns the wall-clock time of the most recent extraction,
// zero if none has occurred.
func (e *Extractor) LastExtraction() time.Time { return e.lastExtraction }
