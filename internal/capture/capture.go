// Package capture drives one scan capture end to end: trigger the probe,
// collect the scan report, fuse in ranging results when they arrive in time,
// and persist the batch under an item label.
package capture

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/aisle.report/internal/fusion"
	"github.com/banshee-data/aisle.report/internal/scanmux"
	"github.com/banshee-data/aisle.report/internal/wifi"
)

// ScanSource is the subset of the scan mux the capture service needs.
type ScanSource interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
}

// Ranger starts one ranging attempt for the given candidates and reports the
// outcome through the fusion engine. Implementations must not block the
// caller; the attempt may complete at any later point or never.
type Ranger interface {
	RequestRanging(batchID uuid.UUID, candidates []wifi.Sighting)
}

// Recorder is the subset of the store the capture service needs.
type Recorder interface {
	RecordScanForItem(ctx context.Context, label string, sightings []wifi.Sighting) (int, error)
}

// Service wires the scan source, the fusion engine, an optional ranger, and
// the store together. A nil source means no scan capability: captures
// persist empty batches rather than failing. A nil ranger means ranging is
// unavailable: batches persist unenriched.
type Service struct {
	Source ScanSource
	Engine *fusion.Engine
	Store  Recorder
	Ranger Ranger

	// ScanTimeout bounds the wait for the probe's scan report.
	ScanTimeout time.Duration

	// RangingTimeout bounds the wait for ranging results after the scan
	// report arrived. This is the acceptance window; results landing after
	// it are discarded by the engine.
	RangingTimeout time.Duration
}

const (
	defaultScanTimeout    = 10 * time.Second
	defaultRangingTimeout = 3 * time.Second
)

// Observe runs one scan and returns the fused batch without persisting it.
func (s *Service) Observe(ctx context.Context) ([]wifi.Sighting, error) {
	if s.Source == nil {
		return nil, nil
	}

	report, err := s.awaitScanReport(ctx)
	if err != nil {
		return nil, err
	}

	pending := s.Engine.BeginScan(report.APs)
	if s.Ranger != nil {
		if candidates := pending.RangingCandidates(); len(candidates) > 0 {
			pending.AwaitRanging()
			s.Ranger.RequestRanging(pending.ID, candidates)
		}
	}

	rangingTimeout := s.RangingTimeout
	if rangingTimeout <= 0 {
		rangingTimeout = defaultRangingTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, rangingTimeout)
	defer cancel()

	return pending.Finalize(waitCtx), nil
}

// Capture runs one scan and persists the fused batch under label, returning
// the number of recorded entries. A scan source failure surfaces before
// anything is written; ranging failures never do.
func (s *Service) Capture(ctx context.Context, label string) (int, error) {
	sightings, err := s.Observe(ctx)
	if err != nil {
		return 0, err
	}
	return s.Store.RecordScanForItem(ctx, label, sightings)
}

// awaitScanReport triggers a scan and waits for the probe's next scan report
// line, skipping unrelated traffic on the wire.
func (s *Service) awaitScanReport(ctx context.Context) (*wifi.ScanReport, error) {
	scanTimeout := s.ScanTimeout
	if scanTimeout <= 0 {
		scanTimeout = defaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	id, lines := s.Source.Subscribe()
	defer s.Source.Unsubscribe(id)

	if err := s.Source.SendCommand(scanmux.CommandScan); err != nil {
		return nil, fmt.Errorf("failed to trigger scan: %w", err)
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil, fmt.Errorf("scan source closed before reporting")
			}
			if wifi.ClassifyPayload(line) != wifi.PayloadScanReport {
				continue
			}
			report, err := wifi.ParseScanReport(line)
			if err != nil {
				log.Printf("discarding malformed scan report: %v", err)
				continue
			}
			return report, nil

		case <-ctx.Done():
			return nil, fmt.Errorf("scan source did not report: %w", ctx.Err())
		}
	}
}

// ProbeRanger performs ranging through the same probe as the scans: it sends
// a RANGE command listing the candidate BSSIDs and waits (on its own
// goroutine) for the ranging report line, delivering whatever arrives to the
// fusion engine. The engine enforces the acceptance window; this type only
// decides when to give up waiting.
type ProbeRanger struct {
	Source ScanSource
	Engine *fusion.Engine

	// Timeout bounds the background wait for the probe's ranging report.
	Timeout time.Duration
}

func (r *ProbeRanger) RequestRanging(batchID uuid.UUID, candidates []wifi.Sighting) {
	bssids := make([]string, len(candidates))
	for i, c := range candidates {
		bssids[i] = c.BSSID
	}

	id, lines := r.Source.Subscribe()

	if err := r.Source.SendCommand(scanmux.CommandRange + " " + strings.Join(bssids, " ")); err != nil {
		r.Source.Unsubscribe(id)
		r.Engine.DeliverRanging(batchID, nil, fmt.Errorf("failed to trigger ranging: %w", err))
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRangingTimeout
	}

	go func() {
		defer r.Source.Unsubscribe(id)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		for {
			select {
			case line, ok := <-lines:
				if !ok {
					r.Engine.DeliverRanging(batchID, nil, fmt.Errorf("probe closed during ranging"))
					return
				}
				if wifi.ClassifyPayload(line) != wifi.PayloadRangingReport {
					continue
				}
				results, err := wifi.ParseRangingReport(line)
				r.Engine.DeliverRanging(batchID, results, err)
				return

			case <-timer.C:
				r.Engine.DeliverRanging(batchID, nil, fmt.Errorf("ranging timed out"))
				return
			}
		}
	}()
}
