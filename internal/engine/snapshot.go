package engine

import (
	"encoding/hex"
	"strings"
)

// Snapshot is the read-only metrics view served on the control surface.
// PoolHex is display-grade state: production deployments should expose only
// derived material, never raw pool bytes, outside a trusted boundary.
type Snapshot struct {
	PoolHex                string                   `json:"pool_hex"`
	TotalBytes             uint64                   `json:"total_bytes"`
	CurrentRawEntropy      float64                  `json:"current_raw_entropy"`
	CurrentWhitenedEntropy float64                  `json:"current_whitened_entropy"`
	EstimatedTrueBits      float64                  `json:"estimated_true_bits"`
	ExtractionPoolFill     float64                  `json:"extraction_pool_fill"`
	ExtractionAccumulated  int                      `json:"extraction_pool_accumulated"`
	ExtractionsCount       uint64                   `json:"extractions_count"`
	TotalRawConsumed       uint64                   `json:"total_raw_consumed"`
	TotalExtractedBytes    uint64                   `json:"total_extracted_bytes"`
	DroppedSamples         uint64                   `json:"dropped_samples"`
	SourceQuality          map[string]SourceQuality `json:"source_quality"`
	HistoryRaw             []float64                `json:"history_raw"`
	HistoryWhitened        []float64                `json:"history_whitened"`
	DisplayHex             string                   `json:"display_hex"`
	Logs                   []string                 `json:"logs"`
	Harvesters             map[string]bool          `json:"harvesters"`
	MintingEnabled         bool                     `json:"minting_enabled"`
}

// Snapshot captures the engine state under the coordinator lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	poolState := e.mixer.State()
	snap := Snapshot{
		PoolHex:                strings.ToUpper(hex.EncodeToString(poolState[:])),
		TotalBytes:             e.whitened,
		CurrentRawEntropy:      e.rawHist.Latest(),
		CurrentWhitenedEntropy: e.whiteHist.Latest(),
		EstimatedTrueBits:      e.ledger,
		ExtractionPoolFill:     e.extractor.FillPercent(),
		ExtractionAccumulated:  e.extractor.Accumulated(),
		ExtractionsCount:       e.extractor.Count(),
		TotalRawConsumed:       e.extractor.RawConsumed(),
		TotalExtractedBytes:    e.extractor.ExtractedBytes(),
		DroppedSamples:         e.dropped,
		SourceQuality:          e.sources.snapshot(),
		HistoryRaw:             e.rawHist.Values(),
		HistoryWhitened:        e.whiteHist.Values(),
		DisplayHex:             hex.EncodeToString(e.display.Bytes()),
		Logs:                   e.logs.tail(),
		Harvesters:             e.Flags.All(),
	}
	if e.minter != nil {
		snap.MintingEnabled = e.minter.Enabled()
	}
	return snap
}
