// Package match scores a live scan against an item's stored fingerprint
// history, to help decide whether the user is standing near where the item
// was recorded.
package match

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/aisle.report/internal/store"
	"github.com/banshee-data/aisle.report/internal/wifi"
)

// minStdDev floors the per-BSSID signal spread so a BSSID seen only once
// (stddev zero) does not demand an exact RSSI match.
const minStdDev = 4.0

// Profile is the aggregate fingerprint of one item: per-BSSID RSSI mean and
// spread across its recorded history.
type Profile struct {
	bssids map[string]bssidStats
}

type bssidStats struct {
	mean   float64
	stddev float64
}

// BuildProfile aggregates an item's entry history. Entries without a BSSID
// or RSSI contribute nothing.
func BuildProfile(entries []store.Entry) Profile {
	samples := make(map[string][]float64)
	for _, e := range entries {
		if e.BSSID == nil || e.RSSI == nil {
			continue
		}
		samples[*e.BSSID] = append(samples[*e.BSSID], float64(*e.RSSI))
	}

	profile := Profile{bssids: make(map[string]bssidStats, len(samples))}
	for bssid, rssi := range samples {
		mean, stddev := stat.MeanStdDev(rssi, nil)
		if len(rssi) < 2 || math.IsNaN(stddev) || stddev < minStdDev {
			stddev = minStdDev
		}
		profile.bssids[bssid] = bssidStats{mean: mean, stddev: stddev}
	}
	return profile
}

// Size returns the number of distinct BSSIDs in the profile.
func (p Profile) Size() int {
	return len(p.bssids)
}

// Score rates how well a live scan agrees with the profile, in [0, 1].
// The score is the Jaccard overlap of the BSSID sets weighted by how close
// each overlapping BSSID's live RSSI sits to its historical distribution.
// An empty profile or empty scan scores zero.
func (p Profile) Score(scan []wifi.Sighting) float64 {
	if len(p.bssids) == 0 || len(scan) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(scan))
	var agreement float64
	var overlap int
	for _, s := range scan {
		if s.BSSID == "" || seen[s.BSSID] {
			continue
		}
		seen[s.BSSID] = true
		stats, ok := p.bssids[s.BSSID]
		if !ok {
			continue
		}
		overlap++
		z := (float64(s.RSSI) - stats.mean) / stats.stddev
		agreement += math.Exp(-0.5 * z * z)
	}
	if overlap == 0 {
		return 0
	}

	union := len(p.bssids) + len(seen) - overlap
	jaccard := float64(overlap) / float64(union)
	return jaccard * (agreement / float64(overlap))
}
