package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/JupitersGhost/ChaosMagnet/internal/pool"
	"github.com/JupitersGhost/ChaosMagnet/internal/vault"
)

// uniformSample returns n bytes cycling through all 256 values: passes both
// health checks with high min-entropy.
func uniformSample(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

// lowQualitySample cycles 20 values: healthy (no runs, max share 5%) but
// min-entropy well below the mint threshold.
func lowQualitySample(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 20)
	}
	return buf
}

func newTestMinter(t *testing.T, policy vault.Policy) (*vault.Minter, string) {
	t.Helper()
	id, err := vault.NewIdentity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	dir := t.TempDir()
	return vault.NewMinter(id, dir, policy, nil), dir
}

type captureForwarder struct {
	events []Event
}

func (c *captureForwarder) Forward(ev Event) { c.events = append(c.events, ev) }

func TestSubmit_UnhealthySampleDropped(t *testing.T) {
	e := New(Config{})
	before := e.Snapshot()

	// Scenario A: 200 zero bytes fail RCT; nothing downstream moves.
	if e.Submit("TRNG", make([]byte, 200)) {
		t.Fatal("all-zero sample must be rejected")
	}

	after := e.Snapshot()
	if after.EstimatedTrueBits != before.EstimatedTrueBits {
		t.Fatal("ledger must not change for a dropped sample")
	}
	if after.PoolHex != before.PoolHex {
		t.Fatal("mixing pool must not change for a dropped sample")
	}
	if after.ExtractionsCount != 0 {
		t.Fatal("no extraction may occur for a dropped sample")
	}
	if after.DroppedSamples != before.DroppedSamples+1 {
		t.Fatal("dropped counter should increment")
	}
}

func TestSubmit_BackpressureDropsWhenFull(t *testing.T) {
	e := New(Config{ChannelCapacity: 2})
	data := uniformSample(64)
	if !e.Submit("TRNG", data) || !e.Submit("TRNG", data) {
		t.Fatal("first two submissions should be accepted")
	}
	// No consumer running: the third must be dropped, not block.
	if e.Submit("TRNG", data) {
		t.Fatal("full channel must drop the sample")
	}
}

func TestProcess_ExtractionFiresAtThreshold(t *testing.T) {
	fwd := &captureForwarder{}
	e := New(Config{Forwarder: fwd})

	before := e.Snapshot()

	// Scenario B: one healthy threshold-sized sample yields one extraction.
	e.process(sample{source: "TRNG", data: uniformSample(pool.ExtractionThreshold)})

	snap := e.Snapshot()
	if snap.ExtractionsCount != 1 {
		t.Fatalf("extractions = %d, want 1", snap.ExtractionsCount)
	}
	if snap.PoolHex == before.PoolHex {
		t.Fatal("mixing pool must update on extraction")
	}
	if snap.TotalBytes != pool.ExtractedSize {
		t.Fatalf("whitened total = %d, want %d", snap.TotalBytes, pool.ExtractedSize)
	}
	if len(fwd.events) != 1 {
		t.Fatalf("forwarder should receive 1 event, got %d", len(fwd.events))
	}
	ev := fwd.events[0]
	if ev.Seq != 1 || ev.Source != "TRNG" || len(ev.Payload) != pool.ExtractedSize {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.RawDigest == "" {
		t.Fatal("event must carry the raw sample digest")
	}
}

func TestProcess_MixingIsDeterministicAcrossEngines(t *testing.T) {
	a := New(Config{})
	b := New(Config{})
	feed := func(e *Engine) string {
		e.process(sample{source: "TRNG", data: uniformSample(pool.ExtractionThreshold)})
		e.process(sample{source: "SYS", data: lowQualitySample(pool.ExtractionThreshold)})
		return e.Snapshot().PoolHex
	}
	if feed(a) != feed(b) {
		t.Fatal("identical event sequences must reproduce the pool state")
	}
}

func TestProcess_DisplayRingEvicts(t *testing.T) {
	e := New(Config{})
	// 40 extractions produce 1280 whitened bytes; the ring holds 1024.
	for i := 0; i < 40; i++ {
		e.process(sample{source: "TRNG", data: uniformSample(pool.ExtractionThreshold)})
	}
	snap := e.Snapshot()
	if got := len(snap.DisplayHex) / 2; got != pool.DisplayCapacity {
		t.Fatalf("display ring holds %d bytes, want %d", got, pool.DisplayCapacity)
	}
}

func TestProcess_AutoMintOnCadenceAndQuality(t *testing.T) {
	// Scenario C: cadence 2, high-quality samples → bundles at extraction 2, 4.
	minter, dir := newTestMinter(t, vault.Policy{Cadence: 2, Threshold: 6.5})
	e := New(Config{Minter: minter})

	for i := 0; i < 4; i++ {
		e.process(sample{source: "TRNG", data: uniformSample(pool.ExtractionThreshold)})
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read keystore: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(entries))
	}
}

func TestProcess_NoMintBelowThreshold(t *testing.T) {
	minter, dir := newTestMinter(t, vault.Policy{Cadence: 1, Threshold: 6.5})
	e := New(Config{Minter: minter})

	// Healthy but low min-entropy: cadence satisfied, quality gate fails.
	e.process(sample{source: "SYS", data: lowQualitySample(pool.ExtractionThreshold)})

	if e.Snapshot().ExtractionsCount != 1 {
		t.Fatal("extraction should still fire")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no bundle may be minted below threshold, got %d", len(entries))
	}
}

func TestProcess_LedgerAccumulates(t *testing.T) {
	e := New(Config{})
	e.process(sample{source: "TRNG", data: uniformSample(100)})
	first := e.Snapshot().EstimatedTrueBits
	if first <= 0 {
		t.Fatal("ledger should grow on a healthy sample")
	}
	e.process(sample{source: "TRNG", data: uniformSample(100)})
	if got := e.Snapshot().EstimatedTrueBits; got <= first {
		t.Fatal("ledger is monotonically increasing")
	}
}

func TestSourceTracker_EMASeedsWithFirstSample(t *testing.T) {
	e := New(Config{})
	e.process(sample{source: "TRNG", data: uniformSample(256)})

	q, ok := e.Snapshot().SourceQuality["TRNG"]
	if !ok {
		t.Fatal("source entry should be created lazily")
	}
	if q.Samples != 1 {
		t.Fatalf("samples = %d, want 1", q.Samples)
	}
	if q.AvgRawEntropy != q.RawShannon {
		t.Fatal("first sample must seed the moving average exactly")
	}

	e.process(sample{source: "TRNG", data: lowQualitySample(256)})
	q2 := e.Snapshot().SourceQuality["TRNG"]
	want := q.AvgRawEntropy*0.95 + q2.RawShannon*0.05
	if diff := q2.AvgRawEntropy - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("EMA = %v, want %v", q2.AvgRawEntropy, want)
	}
}

func TestMintManual_OfflineError(t *testing.T) {
	minter, _ := newTestMinter(t, vault.DefaultPolicy)
	minter.SetEnabled(false)
	e := New(Config{Minter: minter})

	if _, err := e.MintManual("GUI_USER"); err != vault.ErrOffline {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

func TestMintManual_ProducesVerifiableBundle(t *testing.T) {
	minter, _ := newTestMinter(t, vault.DefaultPolicy)
	e := New(Config{Minter: minter})

	filename, err := e.MintManual("GUI_USER")
	if err != nil {
		t.Fatalf("manual mint: %v", err)
	}
	if _, err := os.Stat(filename); err != nil {
		t.Fatalf("bundle file missing: %v", err)
	}
}

func TestRun_ConsumesSubmittedSamples(t *testing.T) {
	e := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if !e.Submit("TRNG", uniformSample(pool.ExtractionThreshold)) {
		t.Fatal("healthy sample should be accepted")
	}

	deadline := time.After(2 * time.Second)
	for {
		if e.Snapshot().ExtractionsCount == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("coordinator did not process the sample in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
