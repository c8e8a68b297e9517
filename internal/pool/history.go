package pool

// DisplayCapacity bounds the whitened-byte display ring.
const DisplayCapacity = 1024

// HistoryCapacity bounds each entropy-score history ring.
const HistoryCapacity = 300

// ByteRing is a bounded FIFO of bytes. Oldest bytes are evicted on
// overflow. Observability only; it carries no cryptographic weight.
type ByteRing struct {
	buf []byte
	cap int
}

// NewByteRing returns a ByteRing holding at most capacity bytes.
func NewByteRing(capacity int) *ByteRing {
	return &ByteRing{buf: make([]byte, 0, capacity), cap: capacity}
}

// Append adds bytes, evicting the oldest once capacity is exceeded.
func (r *ByteRing) Append(data []byte) {
	r.buf = append(r.buf, data...)
	if over := len(r.buf) - r.cap; over > 0 {
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
}

// Len returns the number of bytes currently held.
func (r *ByteRing) Len() int { return len(r.buf) }

// Bytes returns a copy of the ring contents, oldest first.
func (r *ByteRing) Bytes() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// ScoreRing is a bounded FIFO of entropy scores with oldest-first eviction.
type ScoreRing struct {
	scores []float64
	cap    int
}

// NewScoreRing returns a ScoreRing holding at most capacity scores.
func NewScoreRing(capacity int) *ScoreRing {
	return &ScoreRing{scores: make([]float64, 0, capacity), cap: capacity}
}

// Push appends one score, evicting the oldest at capacity.
func (r *ScoreRing) Push(v float64) {
	if len(r.scores) >= r.cap {
		copy(r.scores, r.scores[1:])
		r.scores = r.scores[:len(r.scores)-1]
	}
	r.scores = append(r.scores, v)
}

// Latest returns the most recent score, 0.0 when empty.
func (r *ScoreRing) Latest() float64 {
	if len(r.scores) == 0 {
		return 0.0
	}
	return r.scores[len(r.scores)-1]
}

// Values returns a copy of the held scores, oldest first.
func (r *ScoreRing) Values() []float64 {
	out := make([]float64, len(r.scores))
	copy(out, r.scores)
	return out
}
