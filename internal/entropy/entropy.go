// Package entropy provides the per-sample entropy estimators. Shannon
// entropy is descriptive and only feeds observability; min-entropy is the
// conservative estimate used for every quality gate and for entropy
// accounting, since it assumes an adversary always guesses the most
// probable symbol.
package entropy

import "math"

// Shannon computes -sum(p * log2 p) over the byte-value histogram of data,
// in bits per byte. An empty buffer scores 0.0.
func Shannon(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	ent := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		ent -= p * math.Log2(p)
	}
	return ent
}

// Min computes the min-entropy -log2(max probability) in bits per byte.
// Empty buffers and buffers occupied by a single value score 0.0.
func Min(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	var counts [256]int
	maxCount := 0
	for _, b := range data {
		counts[b]++
		if counts[b] > maxCount {
			maxCount = counts[b]
		}
	}
	maxProb := float64(maxCount) / float64(len(data))
	if maxProb >= 1.0 {
		return 0.0
	}
	return -math.Log2(maxProb)
}

// Contribution returns the conservative true-entropy credit for a sample:
// min-entropy per byte times the sample length, capped at 8 bits per byte.
func Contribution(data []byte) float64 {
	bits := Min(data) * float64(len(data))
	cap8 := float64(len(data)) * 8.0
	return math.Min(bits, cap8)
}
