// Package health implements the NIST SP 800-90B style statistical health
// checks applied to every raw noise sample before it enters the pipeline.
// Both tests are stateless and operate on a single buffer; a failing sample
// is simply dropped by the caller, never surfaced as an error, because
// stalled or degenerate producers are an expected condition.
package health

const (
	// RCTCutoff is the default repetition count cutoff: a run of this many
	// identical bytes fails the sample.
	RCTCutoff = 10

	// APTCutoff is the default adaptive proportion cutoff: the most frequent
	// byte value claiming this share of the sample fails it.
	APTCutoff = 0.40

	// aptMinLen is the minimum sample size the adaptive proportion test will
	// evaluate. Shorter buffers fail closed.
	aptMinLen = 10
)

// RepetitionCount returns false iff some byte value occurs in an unbroken
// run of length >= cutoff. An empty buffer trivially passes.
func RepetitionCount(data []byte, cutoff int) bool {
	if len(data) == 0 {
		return true
	}
	maxRun := 0
	run := 1
	last := data[0]
	for _, b := range data[1:] {
		if b == last {
			run++
			continue
		}
		if run > maxRun {
			maxRun = run
		}
		run = 1
		last = b
	}
	if run > maxRun {
		maxRun = run
	}
	return maxRun < cutoff
}

// AdaptiveProportion returns false when the most frequent byte value's share
// of the sample is >= cutoff. Buffers shorter than 10 bytes fail closed:
// they carry too little evidence to evaluate.
func AdaptiveProportion(data []byte, cutoff float64) bool {
	if len(data) < aptMinLen {
		return false
	}
	var counts [256]int
	maxCount := 0
	for _, b := range data {
		counts[b]++
		if counts[b] > maxCount {
			maxCount = counts[b]
		}
	}
	return float64(maxCount)/float64(len(data)) < cutoff
}

// Passes runs both health checks with the default cutoffs, combined with
// logical AND.
func Passes(data []byte) bool {
	return RepetitionCount(data, RCTCutoff) && AdaptiveProportion(data, APTCutoff)
}
