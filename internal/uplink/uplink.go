// Package uplink delivers extraction events off-node: a rate-limited JSON
// POST to the configured collector and a fan-out of whitened payloads to
// configured peers. Delivery is decoupled from the coordinator by an
// explicit bounded outbox with a drop-oldest policy, so overload shows up
// as a counted drop instead of unbounded goroutine growth.
package uplink

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/JupitersGhost/ChaosMagnet/internal/engine"
	"github.com/JupitersGhost/ChaosMagnet/internal/ratelimit"
)

// OutboxCapacity bounds pending deliveries.
const OutboxCapacity = 64

// clientTimeout caps each outbound request; a slow collector must not back
// up the delivery loop.
const clientTimeout = 500 * time.Millisecond

// Message is the uplink POST body.
type Message struct {
	Node       string      `json:"node"`
	Seq        uint64      `json:"seq"`
	Timestamp  int64       `json:"timestamp"`
	TsEpoch    float64     `json:"ts_epoch"`
	RawShannon float64     `json:"entropy_estimate_raw_shannon"`
	RawMin     float64     `json:"entropy_estimate_raw_min"`
	Health     string      `json:"health"`
	Source     string      `json:"source"`
	Metrics    MessageSize `json:"metrics"`
	PayloadHex string      `json:"payload_hex"`
	Digest     string      `json:"digest"`
}

// MessageSize carries payload sizing inside the uplink body.
type MessageSize struct {
	Size int `json:"size"`
}

// PeerMessage is the body fanned out to each peer's /ingest endpoint.
type PeerMessage struct {
	Node       string `json:"node"`
	Seq        uint64 `json:"seq"`
	Timestamp  int64  `json:"timestamp"`
	PayloadHex string `json:"payload_hex"`
}

// Status is the forwarder's state for the metrics snapshot.
type Status struct {
	UplinkEnabled  bool     `json:"uplink_enabled"`
	UplinkURL      string   `json:"uplink_url"`
	PeeringEnabled bool     `json:"peering_enabled"`
	Peers          []string `json:"peers"`
	Delivered      uint64   `json:"delivered"`
	Dropped        uint64   `json:"dropped"`
}

// Forwarder implements engine.Forwarder. Forward never blocks; Run is the
// single delivery goroutine.
type Forwarder struct {
	mu             sync.Mutex
	uplinkEnabled  bool
	uplinkURL      string
	peeringEnabled bool
	peers          []string
	delivered      uint64
	dropped        uint64

	nodeID  string
	outbox  chan engine.Event
	client  *http.Client
	limiter *ratelimit.Limiter
}

// New creates a Forwarder identifying itself as nodeID. uplinkURL may be
// empty; the uplink stays disabled until configured.
func New(nodeID, uplinkURL string) *Forwarder {
	return &Forwarder{
		nodeID:        nodeID,
		uplinkEnabled: uplinkURL != "",
		uplinkURL:     uplinkURL,
		outbox:        make(chan engine.Event, OutboxCapacity),
		client:        &http.Client{Timeout: clientTimeout},
		limiter:       ratelimit.New(1, time.Second),
	}
}

// Forward enqueues an event for delivery. When the outbox is full the
// oldest pending event is discarded in favor of the new one: live capture
// freshness beats completeness.
func (f *Forwarder) Forward(ev engine.Event) {
	select {
	case f.outbox <- ev:
		return
	default:
	}
	select {
	case <-f.outbox:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
	default:
	}
	select {
	case f.outbox <- ev:
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
	}
}

// Run delivers queued events until ctx is cancelled. Failures are logged
// and abandoned; no retry, no re-queue.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.outbox:
			f.deliver(ev)
		}
	}
}

// deliver performs the uplink POST (rate-limited to one per second) and the
// peer fan-out for one event.
func (f *Forwarder) deliver(ev engine.Event) {
	f.mu.Lock()
	uplinkOn := f.uplinkEnabled && f.uplinkURL != ""
	url := f.uplinkURL
	peersOn := f.peeringEnabled && len(f.peers) > 0
	peers := append([]string(nil), f.peers...)
	f.mu.Unlock()

	if uplinkOn && f.limiter.Allow() {
		msg := Message{
			Node:       f.nodeID,
			Seq:        ev.Seq,
			Timestamp:  ev.Timestamp,
			TsEpoch:    ev.TsEpoch,
			RawShannon: ev.RawShannon,
			RawMin:     ev.RawMin,
			Health:     "OK",
			Source:     ev.Source,
			Metrics:    MessageSize{Size: len(ev.Payload)},
			PayloadHex: hex.EncodeToString(ev.Payload),
			Digest:     ev.RawDigest,
		}
		if err := f.post(url, &msg); err != nil {
			log.Printf("[uplink] send seq %d: %v", ev.Seq, err)
		} else {
			f.mu.Lock()
			f.delivered++
			f.mu.Unlock()
		}
	}

	if peersOn {
		msg := PeerMessage{
			Node:       f.nodeID + "_p2p",
			Seq:        ev.Seq,
			Timestamp:  ev.Timestamp,
			PayloadHex: hex.EncodeToString(ev.Payload),
		}
		for _, peer := range peers {
			if err := f.post(fmt.Sprintf("http://%s/ingest", peer), &msg); err != nil {
				log.Printf("[uplink] peer %s seq %d: %v", peer, ev.Seq, err)
			}
		}
	}
}

func (f *Forwarder) post(url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	resp, err := f.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

// SetUplink reconfigures the uplink target. An empty url keeps the previous
// target.
func (f *Forwarder) SetUplink(enabled bool, url string) {
	f.mu.Lock()
	f.uplinkEnabled = enabled
	if url != "" {
		f.uplinkURL = url
	}
	f.mu.Unlock()
}

// SetPeering toggles the peer fan-out.
func (f *Forwarder) SetPeering(enabled bool) {
	f.mu.Lock()
	f.peeringEnabled = enabled
	f.mu.Unlock()
}

// AddPeer registers a peer address ("host:port"). Duplicates are ignored;
// returns whether the peer was added.
func (f *Forwarder) AddPeer(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.peers {
		if p == addr {
			return false
		}
	}
	f.peers = append(f.peers, addr)
	return true
}

// Status returns the current forwarder state.
func (f *Forwarder) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		UplinkEnabled:  f.uplinkEnabled,
		UplinkURL:      f.uplinkURL,
		PeeringEnabled: f.peeringEnabled,
		Peers:          append([]string(nil), f.peers...),
		Delivered:      f.delivered,
		Dropped:        f.dropped,
	}
}
