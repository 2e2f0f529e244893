// Package main renders an item's fingerprint history as an HTML chart of
// per-BSSID signal strength over time, for eyeballing how stable a recorded
// location's radio environment is.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/aisle.report/internal/store"
)

var (
	dbPath  = flag.String("db", "aisle.db", "Path to the SQLite database")
	itemID  = flag.Int64("item", 0, "Item ID to chart (required)")
	outPath = flag.String("out", "history.html", "Output HTML file")
)

func main() {
	flag.Parse()

	if *itemID < 1 {
		fmt.Fprintln(os.Stderr, "Error: -item is required")
		flag.Usage()
		os.Exit(1)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	entries, err := db.EntriesForItem(ctx, *itemID)
	if err != nil {
		log.Fatalf("failed to load entries: %v", err)
	}
	if len(entries) == 0 {
		log.Fatalf("item %d has no recorded entries", *itemID)
	}

	line, err := buildChart(*itemID, entries)
	if err != nil {
		log.Fatalf("failed to build chart: %v", err)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	fmt.Printf("Wrote %s (%d entries, item %d)\n", *outPath, len(entries), *itemID)
}

// buildChart plots one line per BSSID across the item's capture timestamps.
func buildChart(itemID int64, entries []store.Entry) (*charts.Line, error) {
	// Entries arrive newest first; chart oldest to newest.
	var timestamps []int64
	seenTs := make(map[int64]bool)
	for i := len(entries) - 1; i >= 0; i-- {
		if !seenTs[entries[i].CreatedAtMs] {
			seenTs[entries[i].CreatedAtMs] = true
			timestamps = append(timestamps, entries[i].CreatedAtMs)
		}
	}
	tsIndex := make(map[int64]int, len(timestamps))
	xAxis := make([]string, len(timestamps))
	for i, ts := range timestamps {
		tsIndex[ts] = i
		xAxis[i] = time.UnixMilli(ts).Local().Format("01-02 15:04:05")
	}

	// One series per BSSID, gaps where the BSSID was not seen in a capture.
	series := make(map[string][]opts.LineData)
	for _, e := range entries {
		if e.BSSID == nil || e.RSSI == nil {
			continue
		}
		if _, ok := series[*e.BSSID]; !ok {
			points := make([]opts.LineData, len(timestamps))
			for i := range points {
				points[i] = opts.LineData{Value: nil}
			}
			series[*e.BSSID] = points
		}
		series[*e.BSSID][tsIndex[e.CreatedAtMs]] = opts.LineData{Value: *e.RSSI}
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no entries carry both a BSSID and an RSSI")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Signal history for item %d", itemID),
			Subtitle: "RSSI (dBm) per access point across captures",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RSSI (dBm)"}),
	)

	bssids := make([]string, 0, len(series))
	for bssid := range series {
		bssids = append(bssids, bssid)
	}
	sort.Strings(bssids)

	line.SetXAxis(xAxis)
	for _, bssid := range bssids {
		line.AddSeries(bssid, series[bssid])
	}
	return line, nil
}
