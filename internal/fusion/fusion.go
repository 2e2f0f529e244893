// Package fusion merges a scan's sightings with an optional, asynchronously
// delivered set of ranging results. Ranging is best-effort: a scan always
// finalizes into a complete batch, enriched where results matched and
// unenriched everywhere else.
package fusion

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/aisle.report/internal/wifi"
)

// DefaultMaxRangingPeers bounds how many access points are offered for a
// single ranging attempt. Probe firmware gets flaky above a handful of
// concurrent FTM exchanges, so this is a policy knob rather than an
// architectural limit.
const DefaultMaxRangingPeers = 3

type delivery struct {
	results []wifi.RangingResult
	err     error
}

// Engine tracks scans that are awaiting a ranging delivery. It performs no
// persistence; callers hand the finalized batch to the store.
type Engine struct {
	// MaxRangingPeers caps the candidate set returned by RangingCandidates.
	// Zero means DefaultMaxRangingPeers.
	MaxRangingPeers int

	mu      sync.Mutex
	pending map[uuid.UUID]*PendingScan
}

// NewEngine returns an Engine with the default ranging peer bound.
func NewEngine() *Engine {
	return &Engine{
		MaxRangingPeers: DefaultMaxRangingPeers,
		pending:         make(map[uuid.UUID]*PendingScan),
	}
}

// PendingScan is one scan batch between capture and finalization. The
// acceptance window for ranging results closes when Finalize returns; a
// delivery after that is discarded, never retroactively applied.
type PendingScan struct {
	ID uuid.UUID

	engine     *Engine
	sightings  []wifi.Sighting
	deliveryCh chan delivery
	awaiting   bool
}

// BeginScan registers a new scan batch and returns its pending handle. The
// input order of sightings is preserved through finalization.
func (e *Engine) BeginScan(sightings []wifi.Sighting) *PendingScan {
	p := &PendingScan{
		ID:         uuid.New(),
		engine:     e,
		sightings:  append([]wifi.Sighting(nil), sightings...),
		deliveryCh: make(chan delivery, 1),
	}

	e.mu.Lock()
	e.pending[p.ID] = p
	e.mu.Unlock()
	return p
}

// DeliverRanging hands a ranging outcome to the scan identified by batchID.
// Delivery is at-most-once and never blocks: results for an unknown or
// already-finalized batch are dropped and reported as false.
func (e *Engine) DeliverRanging(batchID uuid.UUID, results []wifi.RangingResult, err error) bool {
	e.mu.Lock()
	p, ok := e.pending[batchID]
	if ok {
		// Remove immediately so a second delivery for the same batch is a no-op.
		delete(e.pending, batchID)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}

	p.deliveryCh <- delivery{results: results, err: err}
	return true
}

// RangingCandidates returns the subset of the batch to offer for ranging:
// strongest signal first, bounded by MaxRangingPeers.
func (p *PendingScan) RangingCandidates() []wifi.Sighting {
	limit := p.engine.MaxRangingPeers
	if limit <= 0 {
		limit = DefaultMaxRangingPeers
	}

	candidates := append([]wifi.Sighting(nil), p.sightings...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RSSI > candidates[j].RSSI
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// AwaitRanging marks that exactly one ranging attempt is in flight for this
// batch, so Finalize will wait for its delivery. It returns false if an
// attempt was already registered.
func (p *PendingScan) AwaitRanging() bool {
	if p.awaiting {
		return false
	}
	p.awaiting = true
	return true
}

// Finalize closes the acceptance window and returns the enriched batch. If a
// ranging attempt is in flight it waits for the delivery or for ctx to be
// done, whichever comes first; an error or absent delivery degrades to the
// unenriched sightings. The returned batch always has exactly one entry per
// input sighting, in input order.
func (p *PendingScan) Finalize(ctx context.Context) []wifi.Sighting {
	var d delivery
	if p.awaiting {
		select {
		case d = <-p.deliveryCh:
		case <-ctx.Done():
		}
	}

	// Deregister so late deliveries are discarded. DeliverRanging may have
	// already removed the entry; that is fine.
	p.engine.mu.Lock()
	delete(p.engine.pending, p.ID)
	p.engine.mu.Unlock()

	if d.err != nil {
		return Fuse(p.sightings, nil)
	}
	return Fuse(p.sightings, d.results)
}

// Fuse applies ranging results to a sighting batch. For each sighting the
// matching successful result (by exact BSSID equality) populates the
// distance fields; everything else is copied through untouched. Fusion never
// drops or duplicates sightings.
func Fuse(sightings []wifi.Sighting, results []wifi.RangingResult) []wifi.Sighting {
	byBSSID := make(map[string]wifi.RangingResult, len(results))
	for _, r := range results {
		if r.Status == wifi.RangingSuccess {
			byBSSID[r.BSSID] = r
		}
	}

	fused := make([]wifi.Sighting, len(sightings))
	for i, s := range sightings {
		if r, ok := byBSSID[s.BSSID]; ok {
			distance := r.DistanceMm
			stddev := r.DistanceStdDevMm
			s.DistanceMm = &distance
			s.DistanceStdDevMm = &stddev
		}
		fused[i] = s
	}
	return fused
}
