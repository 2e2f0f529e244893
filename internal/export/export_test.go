package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/aisle.report/internal/store"
)

func strPtr(s string) *string {
	return &s
}

func intPtr(v int) *int {
	return &v
}

func sampleEntry() store.Entry {
	return store.Entry{
		SSID:             strPtr("ShopFloor"),
		BSSID:            strPtr("aa:bb:cc:dd:ee:01"),
		RSSI:             intPtr(-48),
		FrequencyMHz:     intPtr(5180),
		Capabilities:     strPtr("[WPA2-PSK-CCMP][ESS]"),
		DistanceMm:       intPtr(3210),
		DistanceStdDevMm: intPtr(140),
		CreatedAtMs:      1700000000000,
	}
}

func TestWriteEntries(t *testing.T) {
	var buf bytes.Buffer
	entries := []store.Entry{
		sampleEntry(),
		{BSSID: strPtr("aa:bb:cc:dd:ee:02"), RSSI: intPtr(-71), FrequencyMHz: intPtr(2437), CreatedAtMs: 1700000000000},
	}
	if err := WriteEntries(&buf, entries); err != nil {
		t.Fatalf("WriteEntries failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}

	wantHeader := "captured_at,ssid,bssid,rssi,frequency,capabilities,distance_mm,distance_stddev_mm"
	if got := strings.Join(records[0], ","); got != wantHeader {
		t.Errorf("header mismatch:\n got %s\nwant %s", got, wantHeader)
	}

	wantTime := time.UnixMilli(1700000000000).Local().Format(TimeFormat)
	if records[1][0] != wantTime {
		t.Errorf("captured_at = %q, want %q", records[1][0], wantTime)
	}
	if records[1][3] != "-48" || records[1][6] != "3210" || records[1][7] != "140" {
		t.Errorf("numeric fields mismatch: %v", records[1])
	}

	// Absent optional fields render as the empty string, not a sentinel.
	if records[2][1] != "" || records[2][5] != "" || records[2][6] != "" || records[2][7] != "" {
		t.Errorf("absent fields must be empty: %v", records[2])
	}
}

func TestWriteAllEntriesLabelColumn(t *testing.T) {
	var buf bytes.Buffer
	entries := []store.LabeledEntry{
		{ItemName: "Shelf A", Entry: sampleEntry()},
	}
	if err := WriteAllEntries(&buf, entries); err != nil {
		t.Fatalf("WriteAllEntries failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if records[0][0] != "item" {
		t.Errorf("global export must lead with the item column, got %q", records[0][0])
	}
	if records[1][0] != "Shelf A" {
		t.Errorf("label column = %q, want %q", records[1][0], "Shelf A")
	}
	if len(records[0]) != 9 {
		t.Errorf("expected 9 columns in global flavour, got %d", len(records[0]))
	}
}

func TestEscapingRoundTrip(t *testing.T) {
	awkward := `Aisle "7", back corner`
	entry := sampleEntry()
	entry.SSID = strPtr(awkward)

	var buf bytes.Buffer
	if err := WriteAllEntries(&buf, []store.LabeledEntry{{ItemName: `Bin "B"`, Entry: entry}}); err != nil {
		t.Fatalf("WriteAllEntries failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"Aisle ""7"", back corner"`) {
		t.Errorf("expected doubled quotes in output, got:\n%s", out)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("round-trip parse failed: %v", err)
	}
	if records[1][0] != `Bin "B"` {
		t.Errorf("label round-trip = %q, want %q", records[1][0], `Bin "B"`)
	}
	if records[1][2] != awkward {
		t.Errorf("ssid round-trip = %q, want %q", records[1][2], awkward)
	}
}

func TestRowOrderPreserved(t *testing.T) {
	// The formatter must not re-sort: feed rows in deliberately unsorted
	// order and expect them back verbatim.
	entries := []store.LabeledEntry{
		{ItemName: "zebra", Entry: store.Entry{CreatedAtMs: 1}},
		{ItemName: "apple", Entry: store.Entry{CreatedAtMs: 2}},
	}
	var buf bytes.Buffer
	if err := WriteAllEntries(&buf, entries); err != nil {
		t.Fatalf("WriteAllEntries failed: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if records[1][0] != "zebra" || records[2][0] != "apple" {
		t.Errorf("formatter re-sorted rows: %v", records[1:])
	}
}
