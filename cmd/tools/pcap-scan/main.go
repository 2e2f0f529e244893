// Package main extracts Wi-Fi access point sightings from a packet capture
// of 802.11 beacon frames and optionally records them as a fingerprint batch,
// as an offline alternative to scanning with the serial probe.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/aisle.report/internal/store"
	"github.com/banshee-data/aisle.report/internal/wifi"
)

var (
	pcapFile = flag.String("pcap", "", "Path to PCAP file of 802.11 beacon frames (required)")
	dbPath   = flag.String("db", "", "SQLite database to record the batch into (omit for a dry run)")
	label    = flag.String("label", "", "Item label to record the batch under (required with -db)")
	verbose  = flag.Bool("v", false, "Log every beacon frame as it is parsed")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		fmt.Fprintln(os.Stderr, "Error: PCAP file is required")
		flag.Usage()
		os.Exit(1)
	}
	if *dbPath != "" && *label == "" {
		fmt.Fprintln(os.Stderr, "Error: -label is required when recording with -db")
		os.Exit(1)
	}

	sightings, frames, err := extractSightings(*pcapFile)
	if err != nil {
		log.Fatalf("failed to read PCAP: %v", err)
	}

	fmt.Printf("Parsed %d beacon frames, %d distinct access points\n", frames, len(sightings))
	for _, s := range sightings {
		ssid := s.SSID
		if ssid == "" {
			ssid = "<hidden>"
		}
		fmt.Printf("  %-17s  %4d dBm  %5d MHz  %s\n", s.BSSID, s.RSSI, s.FrequencyMHz, ssid)
	}

	if *dbPath == "" {
		return
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	count, err := db.RecordScanForItem(context.Background(), *label, sightings)
	if err != nil {
		log.Fatalf("failed to record batch: %v", err)
	}
	fmt.Printf("Recorded %d entries under %q\n", count, *label)
}

// extractSightings reads beacon frames from the capture and keeps the
// strongest sighting per BSSID.
func extractSightings(path string) ([]wifi.Sighting, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("not a readable PCAP file: %w", err)
	}

	byBSSID := make(map[string]wifi.Sighting)
	frames := 0

	for {
		data, _, err := reader.ReadPacketData()
		if err != nil {
			break // EOF or truncated capture; report what we have
		}

		packet := gopacket.NewPacket(data, reader.LinkType(), gopacket.Default)
		s, ok := sightingFromPacket(packet)
		if !ok {
			continue
		}
		frames++

		if *verbose {
			log.Printf("beacon: bssid=%s ssid=%q rssi=%d freq=%d", s.BSSID, s.SSID, s.RSSI, s.FrequencyMHz)
		}

		if prev, seen := byBSSID[s.BSSID]; !seen || s.RSSI > prev.RSSI {
			byBSSID[s.BSSID] = s
		}
	}

	sightings := make([]wifi.Sighting, 0, len(byBSSID))
	for _, s := range byBSSID {
		sightings = append(sightings, s)
	}
	sort.Slice(sightings, func(i, j int) bool {
		return sightings[i].RSSI > sightings[j].RSSI
	})
	return sightings, frames, nil
}

// sightingFromPacket turns one RadioTap-wrapped beacon frame into a sighting.
func sightingFromPacket(packet gopacket.Packet) (wifi.Sighting, bool) {
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return wifi.Sighting{}, false
	}
	dot11 := dot11Layer.(*layers.Dot11)
	if dot11.Type != layers.Dot11TypeMgmtBeacon {
		return wifi.Sighting{}, false
	}

	s := wifi.Sighting{
		// For beacon frames Address3 carries the BSSID.
		BSSID: dot11.Address3.String(),
	}

	if rtLayer := packet.Layer(layers.LayerTypeRadioTap); rtLayer != nil {
		rt := rtLayer.(*layers.RadioTap)
		if rt.Present.DBMAntennaSignal() {
			s.RSSI = int(rt.DBMAntennaSignal)
		}
		if rt.Present.Channel() {
			s.FrequencyMHz = int(rt.ChannelFrequency)
		}
	}

	for _, layer := range packet.Layers() {
		ie, ok := layer.(*layers.Dot11InformationElement)
		if !ok || ie.ID != layers.Dot11InformationElementIDSSID {
			continue
		}
		s.SSID = string(ie.Info)
		break
	}

	if beacon := packet.Layer(layers.LayerTypeDot11MgmtBeacon); beacon != nil {
		// The capability field is all we can say about security offline.
		if fields, ok := beacon.(*layers.Dot11MgmtBeacon); ok && fields.Flags&0x0010 != 0 {
			s.Capabilities = "[PRIVACY][ESS]"
		} else {
			s.Capabilities = "[ESS]"
		}
	}

	return s, true
}
