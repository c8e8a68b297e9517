package pool

import "golang.org/x/crypto/sha3"

// MixSize is the fixed mixing pool state size.
const MixSize = 32

// Mixer is the global hash-chained entropy accumulator. It is updated
// exactly once per extraction event, never per raw sample:
//
//	pool = SHA3-256(pool || source_tag || extracted)
//
// The state is a pure, order-dependent function of the entire sequence of
// (source, extracted) events since process start. The chain is one-way:
// partial history is insufficient to predict the next state without the
// missing inputs.
type Mixer struct {
	state [MixSize]byte
}

// NewMixer returns a Mixer with an all-zero initial state.
func NewMixer() *Mixer { return &Mixer{} }

// Mix folds one extraction event into the pool.
func (m *Mixer) Mix(sourceTag string, extracted []byte) {
	h := sha3.New256()
	h.Write(m.state[:])
	h.Write([]byte(sourceTag))
	h.Write(extracted)
	copy(m.state[:], h.Sum(nil))
}

// State returns a copy of the current pool state. Callers must treat the
// value as display-grade only; raw pool bytes should not leave the process
// boundary in production deployments.
func (m *Mixer) State() [MixSize]byte { return m.state }
