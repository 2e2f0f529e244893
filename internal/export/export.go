// Package export renders query results as delimited text. Row order is
// exactly the order of the input slice; the formatter never re-sorts.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/aisle.report/internal/store"
)

// TimeFormat is the fixed local-time layout used for the captured_at column.
const TimeFormat = "2006-01-02 15:04:05"

var entryHeader = []string{
	"captured_at", "ssid", "bssid", "rssi", "frequency",
	"capabilities", "distance_mm", "distance_stddev_mm",
}

// WriteEntries writes the per-item export flavour (no label column).
func WriteEntries(w io.Writer, entries []store.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(entryHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(entryRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAllEntries writes the global export flavour, with the owning item's
// label as the leading column.
func WriteAllEntries(w io.Writer, entries []store.LabeledEntry) error {
	cw := csv.NewWriter(w)
	header := append([]string{"item"}, entryHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := append([]string{e.ItemName}, entryRow(e.Entry)...)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func entryRow(e store.Entry) []string {
	return []string{
		time.UnixMilli(e.CreatedAtMs).Local().Format(TimeFormat),
		optString(e.SSID),
		optString(e.BSSID),
		optInt(e.RSSI),
		optInt(e.FrequencyMHz),
		optString(e.Capabilities),
		optInt(e.DistanceMm),
		optInt(e.DistanceStdDevMm),
	}
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
