// Package engine implements the single-consumer coordinator at the center
// of the pipeline. Many producers enqueue raw samples onto a bounded
// channel; one goroutine drains it and holds the only lock that guards the
// conditioning state (extraction pool, mixing pool, histories, metrics,
// ledger, audit log). File and network side effects of an event are
// dispatched only after the lock is released.
package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/JupitersGhost/ChaosMagnet/internal/entropy"
	"github.com/JupitersGhost/ChaosMagnet/internal/health"
	"github.com/JupitersGhost/ChaosMagnet/internal/pool"
	"github.com/JupitersGhost/ChaosMagnet/internal/storage"
	"github.com/JupitersGhost/ChaosMagnet/internal/vault"
)

// DefaultChannelCapacity bounds the producer/consumer sample channel.
const DefaultChannelCapacity = 1000

const auditLogCapacity = 20

// sample is one unit of producer output. Consumed exactly once, never
// retained after processing.
type sample struct {
	source string
	data   []byte
}

// Event describes one extraction, handed to forwarders (uplink, peer
// fan-out) after the engine lock is released.
type Event struct {
	Seq        uint64
	Source     string
	Payload    []byte // whitened output
	RawShannon float64
	RawMin     float64
	RawDigest  string // SHA3-256 hex of the originating raw sample
	Timestamp  int64
	TsEpoch    float64
}

// Forwarder receives extraction events asynchronously. Implementations must
// never block: the coordinator calls Forward inline between samples.
type Forwarder interface {
	Forward(ev Event)
}

// Config wires the engine's collaborators. Minter is required; Store and
// Forwarder may be nil.
type Config struct {
	ChannelCapacity int
	Minter          *vault.Minter
	Store           *storage.DB
	Forwarder       Forwarder
}

// Engine owns all mutable pipeline state. Producers only ever call Submit;
// Run is the sole mutator.
type Engine struct {
	mu        sync.Mutex
	extractor *pool.Extractor
	mixer     *pool.Mixer
	display   *pool.ByteRing
	rawHist   *pool.ScoreRing
	whiteHist *pool.ScoreRing
	sources   *sourceTracker
	ledger    float64 // estimated true entropy bits, never decremented
	logs      *auditLog
	seq       uint64
	whitened  uint64 // cumulative whitened bytes produced
	dropped   uint64 // samples rejected by health checks or backpressure

	Flags *Flags

	samples   chan sample
	minter    *vault.Minter
	store     *storage.DB
	forwarder Forwarder
}

// New creates an Engine from cfg.
func New(cfg Config) *Engine {
	capacity := cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	e := &Engine{
		extractor: pool.NewExtractor(),
		mixer:     pool.NewMixer(),
		display:   pool.NewByteRing(pool.DisplayCapacity),
		rawHist:   pool.NewScoreRing(pool.HistoryCapacity),
		whiteHist: pool.NewScoreRing(pool.HistoryCapacity),
		sources:   newSourceTracker(),
		logs:      newAuditLog(auditLogCapacity),
		Flags:     NewFlags(),
		samples:   make(chan sample, capacity),
		minter:    cfg.Minter,
		store:     cfg.Store,
		forwarder: cfg.Forwarder,
	}
	e.logs.add(fmt.Sprintf("ENGINE: %d→%d byte extraction, pool online", pool.ExtractionThreshold, pool.ExtractedSize))
	return e
}

// Submit offers one raw sample to the pipeline. The sample is health-checked
// first; failing samples are dropped silently because degenerate producers
// are expected and must not poison the pool. Enqueueing is non-blocking: a
// full channel drops the sample in favor of keeping capture loops live.
// Returns whether the sample was accepted.
func (e *Engine) Submit(source string, data []byte) bool {
	if !health.Passes(data) {
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		return false
	}
	select {
	case e.samples <- sample{source: source, data: data}:
		return true
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		return false
	}
}

// Run drains the sample channel until ctx is cancelled. It is the only
// goroutine that mutates shared state. Shutdown is cooperative: in-flight
// forwarder deliveries may or may not complete, but minting is atomic per
// event so no partial bundle can be persisted.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("[engine] coordinator running")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[engine] coordinator stopped")
			return
		case s := <-e.samples:
			e.process(s)
		}
	}
}

// process sequences one sample through the pipeline. Estimators run outside
// the lock (pure functions); state mutation happens under it; mint, ledger
// and forwarder I/O happen after it is released.
func (e *Engine) process(s sample) {
	rawShannon := entropy.Shannon(s.data)
	rawMin := entropy.Min(s.data)
	contribution := entropy.Contribution(s.data)

	var (
		extracted    []byte
		whiteShannon float64
		ev           Event
		poolState    [pool.MixSize]byte
		accumBits    float64
		shouldMint   bool
	)

	e.mu.Lock()
	e.sources.observe(s.source, rawShannon, rawMin, contribution)
	e.ledger += contribution
	e.rawHist.Push(rawMin)

	extracted = e.extractor.AddRaw(s.data)
	if extracted != nil {
		whiteShannon = entropy.Shannon(extracted)
		e.whiteHist.Push(whiteShannon)
		e.mixer.Mix(s.source, extracted)
		e.display.Append(extracted)
		e.seq++
		e.whitened += uint64(len(extracted))
		e.logs.add(fmt.Sprintf("EXTRACT #%d | %d→%d bytes | quality %.2f | source %s",
			e.extractor.Count(), pool.ExtractionThreshold, len(extracted), whiteShannon, s.source))

		poolState = e.mixer.State()
		accumBits = e.ledger
		shouldMint = e.minter != nil && e.minter.ShouldMint(e.extractor.Count(), rawMin)
		if shouldMint {
			e.logs.add(fmt.Sprintf("AUTO-MINT: quality %.2f, minting keypair", rawMin))
		}

		now := time.Now()
		digest := sha3.Sum256(s.data)
		ev = Event{
			Seq:        e.seq,
			Source:     s.source,
			Payload:    extracted,
			RawShannon: rawShannon,
			RawMin:     rawMin,
			RawDigest:  hex.EncodeToString(digest[:]),
			Timestamp:  now.Unix(),
			TsEpoch:    float64(now.UnixNano()) / 1e9,
		}
	}
	e.mu.Unlock()

	if extracted == nil {
		return
	}

	// Lock released: durable ledger, minting, and outbound delivery.
	if e.store != nil {
		rec := storage.ExtractionEvent{
			Seq:        ev.Seq,
			Source:     ev.Source,
			Quality:    whiteShannon,
			OccurredAt: ev.Timestamp,
		}
		if err := e.store.RecordExtraction(rec); err != nil {
			log.Printf("[engine] record extraction #%d: %v", ev.Seq, err)
		}
	}

	if shouldMint {
		if _, err := e.minter.Mint("AUTO", poolState, rawMin, accumBits); err != nil {
			// Abandoned, never retried; the next eligible trigger mints
			// independently.
			log.Printf("[engine] auto-mint: %v", err)
			e.mu.Lock()
			e.logs.add(fmt.Sprintf("AUTO-MINT failed: %v", err))
			e.mu.Unlock()
		}
	}

	if e.forwarder != nil {
		e.forwarder.Forward(ev)
	}
}

// MintManual exercises the identical bundle-construction path on demand,
// independent of the periodic trigger. Returns vault.ErrOffline when the
// subsystem is disabled.
func (e *Engine) MintManual(requester string) (string, error) {
	if e.minter == nil {
		return "", vault.ErrOffline
	}
	e.mu.Lock()
	poolState := e.mixer.State()
	rawMin := e.rawHist.Latest()
	accumBits := e.ledger
	e.mu.Unlock()

	filename, err := e.minter.Mint(requester, poolState, rawMin, accumBits)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.logs.add("VAULT: saved " + filename)
	e.mu.Unlock()
	return filename, nil
}

// SetMintingEnabled toggles the minting subsystem.
func (e *Engine) SetMintingEnabled(v bool) {
	if e.minter != nil {
		e.minter.SetEnabled(v)
	}
	e.mu.Lock()
	state := "DISABLED"
	if v {
		state = "ENABLED"
	}
	e.logs.add("VAULT: minting " + state)
	e.mu.Unlock()
}

// Note records a line on the audit log tail. Used by the control surface
// for toggle events so the log mirrors operator actions.
func (e *Engine) Note(msg string) {
	e.mu.Lock()
	e.logs.add(msg)
	e.mu.Unlock()
}
