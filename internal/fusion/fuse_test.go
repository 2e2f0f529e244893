package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/aisle.report/internal/wifi"
)

func TestFusePreservesOrderAndLength(t *testing.T) {
	sightings := []wifi.Sighting{
		{BSSID: "aa:01", RSSI: -40},
		{BSSID: "aa:02", RSSI: -55},
		{BSSID: "aa:03", RSSI: -70},
	}
	results := []wifi.RangingResult{
		{BSSID: "aa:03", DistanceMm: 4200, DistanceStdDevMm: 310, Status: wifi.RangingSuccess},
		{BSSID: "aa:01", DistanceMm: 900, DistanceStdDevMm: 80, Status: wifi.RangingSuccess},
	}

	fused := Fuse(sightings, results)
	require.Len(t, fused, 3)
	assert.Equal(t, "aa:01", fused[0].BSSID)
	assert.Equal(t, "aa:02", fused[1].BSSID)
	assert.Equal(t, "aa:03", fused[2].BSSID)

	require.NotNil(t, fused[0].DistanceMm)
	assert.Equal(t, 900, *fused[0].DistanceMm)
	assert.Equal(t, 80, *fused[0].DistanceStdDevMm)
	assert.Nil(t, fused[1].DistanceMm)
	require.NotNil(t, fused[2].DistanceMm)
	assert.Equal(t, 4200, *fused[2].DistanceMm)
}

func TestFuseSkipsFailedResults(t *testing.T) {
	sightings := []wifi.Sighting{{BSSID: "aa:01", RSSI: -40}}
	results := []wifi.RangingResult{
		{BSSID: "aa:01", DistanceMm: 999, Status: wifi.RangingFailure},
	}

	fused := Fuse(sightings, results)
	require.Len(t, fused, 1)
	assert.Nil(t, fused[0].DistanceMm, "failed result must not enrich")
}

func TestFuseLeavesInputUntouched(t *testing.T) {
	sightings := []wifi.Sighting{{BSSID: "aa:01", RSSI: -40}}
	Fuse(sightings, []wifi.RangingResult{
		{BSSID: "aa:01", DistanceMm: 100, Status: wifi.RangingSuccess},
	})
	assert.Nil(t, sightings[0].DistanceMm, "fusion must not mutate the input batch")
}

func TestFuseIgnoresUnmatchedResults(t *testing.T) {
	sightings := []wifi.Sighting{{BSSID: "aa:01", RSSI: -40}}
	fused := Fuse(sightings, []wifi.RangingResult{
		{BSSID: "ff:ff", DistanceMm: 100, Status: wifi.RangingSuccess},
	})
	require.Len(t, fused, 1)
	assert.Nil(t, fused[0].DistanceMm)
}
