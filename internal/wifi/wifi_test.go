package wifi

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseScanReport(t *testing.T) {
	line := `{"type":"scan_report","aps":[` +
		`{"ssid":"ShopFloor","bssid":"aa:bb:cc:dd:ee:01","rssi":-48,"freq":5180,"caps":"[WPA2-PSK-CCMP][ESS]"},` +
		`{"ssid":"","bssid":"aa:bb:cc:dd:ee:02","rssi":-71,"freq":2437,"caps":"[ESS]"}]}`

	report, err := ParseScanReport(line)
	if err != nil {
		t.Fatalf("ParseScanReport failed: %v", err)
	}

	want := []Sighting{
		{SSID: "ShopFloor", BSSID: "aa:bb:cc:dd:ee:01", RSSI: -48, FrequencyMHz: 5180, Capabilities: "[WPA2-PSK-CCMP][ESS]"},
		{SSID: "", BSSID: "aa:bb:cc:dd:ee:02", RSSI: -71, FrequencyMHz: 2437, Capabilities: "[ESS]"},
	}
	if diff := cmp.Diff(want, report.APs); diff != "" {
		t.Errorf("scan report mismatch (-want +got):\n%s", diff)
	}

	// Distance fields must be absent, not zero-valued sentinels.
	for i, ap := range report.APs {
		if ap.DistanceMm != nil || ap.DistanceStdDevMm != nil {
			t.Errorf("ap %d: expected nil distance fields, got %v/%v", i, ap.DistanceMm, ap.DistanceStdDevMm)
		}
	}
}

func TestParseScanReportMalformed(t *testing.T) {
	if _, err := ParseScanReport(`{"aps":[`); err == nil {
		t.Error("expected error for truncated JSON, got nil")
	}
	if _, err := ParseScanReport(`not json at all`); err == nil {
		t.Error("expected error for non-JSON line, got nil")
	}
}

func TestParseRangingReport(t *testing.T) {
	line := `{"type":"ranging_report","results":[` +
		`{"bssid":"aa:bb:cc:dd:ee:01","distance_mm":3210,"stddev_mm":140,"status":"ok"},` +
		`{"bssid":"aa:bb:cc:dd:ee:02","distance_mm":0,"stddev_mm":0,"status":"fail"}]}`

	results, err := ParseRangingReport(line)
	if err != nil {
		t.Fatalf("ParseRangingReport failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != RangingSuccess {
		t.Errorf("expected first result to be a success, got %v", results[0].Status)
	}
	if results[0].DistanceMm != 3210 || results[0].DistanceStdDevMm != 140 {
		t.Errorf("unexpected distances: %+v", results[0])
	}
	if results[1].Status != RangingFailure {
		t.Errorf("expected second result to be a failure, got %v", results[1].Status)
	}
}

func TestParseRangingReportUnknownStatus(t *testing.T) {
	line := `{"results":[{"bssid":"aa:bb:cc:dd:ee:01","distance_mm":100,"stddev_mm":5,"status":"timeout"}]}`
	results, err := ParseRangingReport(line)
	if err != nil {
		t.Fatalf("ParseRangingReport failed: %v", err)
	}
	if results[0].Status != RangingFailure {
		t.Errorf("unknown status must map to failure, got %v", results[0].Status)
	}
}

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"aps":[]}`, PayloadScanReport},
		{`{"results":[]}`, PayloadRangingReport},
		{`{"uptime":12}`, PayloadStatus},
		{`READY`, PayloadUnknown},
		{``, PayloadUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
