// Package wifi holds the observation model for access point sightings and
// the line protocol spoken by the scanner probe.
package wifi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sighting is a single access point observation from one scan. The distance
// fields stay nil until a successful ranging result is fused in; absence is
// always nil, never a sentinel value.
type Sighting struct {
	SSID             string `json:"ssid"`
	BSSID            string `json:"bssid"`
	RSSI             int    `json:"rssi"`
	FrequencyMHz     int    `json:"freq"`
	Capabilities     string `json:"caps"`
	DistanceMm       *int   `json:"distance_mm,omitempty"`
	DistanceStdDevMm *int   `json:"distance_stddev_mm,omitempty"`
}

// RangingStatus reports whether a ranging exchange with an access point
// produced a usable distance.
type RangingStatus int

const (
	RangingFailure RangingStatus = iota
	RangingSuccess
)

// RangingResult is one access point's answer to a ranging request. Results
// are matched to sightings by exact BSSID equality.
type RangingResult struct {
	BSSID            string        `json:"bssid"`
	DistanceMm       int           `json:"distance_mm"`
	DistanceStdDevMm int           `json:"stddev_mm"`
	Status           RangingStatus `json:"-"`
}

// ScanReport is one emission from the scanner probe: the full set of access
// points visible at the moment the scan ran.
type ScanReport struct {
	APs []Sighting `json:"aps"`
}

// Payload type tokens returned by ClassifyPayload.
const (
	PayloadScanReport    = "scan_report"
	PayloadRangingReport = "ranging_report"
	PayloadStatus        = "status"
	PayloadUnknown       = "unknown"
)

// ClassifyPayload inspects a raw probe line and returns a payload type
// token. The classification is intentionally conservative: anything we
// cannot identify is left for the caller to log and drop.
func ClassifyPayload(payload string) string {
	if strings.Contains(payload, `"aps"`) {
		return PayloadScanReport
	}
	if strings.Contains(payload, `"results"`) || strings.Contains(payload, `"ranging"`) {
		return PayloadRangingReport
	}
	if strings.HasPrefix(payload, "{") {
		return PayloadStatus
	}
	return PayloadUnknown
}

// ParseScanReport parses one scan report line emitted by the probe.
func ParseScanReport(line string) (*ScanReport, error) {
	var report ScanReport
	if err := json.Unmarshal([]byte(line), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan report: %w", err)
	}
	return &report, nil
}

// rangingReportWire is the on-the-wire shape of a ranging report line.
type rangingReportWire struct {
	Results []struct {
		BSSID      string `json:"bssid"`
		DistanceMm int    `json:"distance_mm"`
		StdDevMm   int    `json:"stddev_mm"`
		Status     string `json:"status"`
	} `json:"results"`
}

// ParseRangingReport parses one ranging report line emitted by the probe.
// Any status other than "ok" is recorded as a failure so the fusion layer
// never applies it.
func ParseRangingReport(line string) ([]RangingResult, error) {
	var wire rangingReportWire
	if err := json.Unmarshal([]byte(line), &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranging report: %w", err)
	}

	results := make([]RangingResult, 0, len(wire.Results))
	for _, r := range wire.Results {
		status := RangingFailure
		if r.Status == "ok" {
			status = RangingSuccess
		}
		results = append(results, RangingResult{
			BSSID:            r.BSSID,
			DistanceMm:       r.DistanceMm,
			DistanceStdDevMm: r.StdDevMm,
			Status:           status,
		})
	}
	return results, nil
}
