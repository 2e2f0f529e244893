package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/aisle.report/internal/wifi"
)

// ItemStats is one row of the item list: the label plus aggregate history
// stats. LastSeenMs is nil for an item with no recorded entries.
type ItemStats struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	EntryCount int    `json:"entry_count"`
	LastSeenMs *int64 `json:"last_seen_ms"`
}

// Entry is one persisted access point sighting. Columns are nullable in the
// schema (rows predating the distance migration carry no distance fields),
// so optional values are pointers.
type Entry struct {
	ID               int64   `json:"id"`
	ItemID           int64   `json:"item_id"`
	SSID             *string `json:"ssid"`
	BSSID            *string `json:"bssid"`
	RSSI             *int    `json:"rssi"`
	FrequencyMHz     *int    `json:"frequency"`
	Capabilities     *string `json:"capabilities"`
	DistanceMm       *int    `json:"distance_mm"`
	DistanceStdDevMm *int    `json:"distance_stddev_mm"`
	CreatedAtMs      int64   `json:"created_at_ms"`
}

// LabeledEntry is an Entry annotated with its owning item's label, as
// returned by AllEntries.
type LabeledEntry struct {
	ItemName string `json:"item"`
	Entry
}

const entryColumns = "id, item_id, ssid, bssid, rssi, frequency, capabilities, distance_mm, distance_stddev_mm, created_at_ms"

// RecordScanForItem persists one scan batch under the given label. The item
// row is resolved or created inside the same transaction as the entry
// inserts, every entry shares one capture timestamp, and the write is
// all-or-nothing. Returns the number of entries recorded; an empty batch is
// a successful write of zero entries.
func (db *DB) RecordScanForItem(ctx context.Context, label string, sightings []wifi.Sighting) (int, error) {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	itemID, err := getOrInsertItemID(ctx, tx, label)
	if err != nil {
		return 0, err
	}

	for _, s := range sightings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wifi_entries (
				item_id, ssid, bssid, rssi, frequency, capabilities,
				distance_mm, distance_stddev_mm, created_at_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			itemID, s.SSID, s.BSSID, s.RSSI, s.FrequencyMHz, s.Capabilities,
			s.DistanceMm, s.DistanceStdDevMm, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry for %q: %w", label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan for %q: %w", label, err)
	}
	return len(sightings), nil
}

// getOrInsertItemID resolves the item id for a label, creating the item row
// on first use. Two writers racing to create the same label converge on one
// id: the loser's insert conflicts and it re-reads the winner's row. Entries
// are never written against an unconfirmed id.
func getOrInsertItemID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM items WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up item %q: %w", name, err)
	}

	result, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert item %q: %w", name, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get id for item %q: %w", name, err)
		}
		return id, nil
	}

	// Lost the race: another writer created the row. Re-read for the
	// authoritative id.
	if err := tx.QueryRowContext(ctx, "SELECT id FROM items WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve item %q after insert conflict: %w", name, err)
	}
	return id, nil
}

// ItemsWithStats returns every item, including those with no entries yet,
// ordered by label case-insensitively.
func (db *DB) ItemsWithStats(ctx context.Context) ([]ItemStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.name, COUNT(e.id), MAX(e.created_at_ms)
		FROM items i
		LEFT JOIN wifi_entries e ON e.item_id = i.id
		GROUP BY i.id, i.name
		ORDER BY i.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query item stats: %w", err)
	}
	defer rows.Close()

	var items []ItemStats
	for rows.Next() {
		var item ItemStats
		if err := rows.Scan(&item.ID, &item.Name, &item.EntryCount, &item.LastSeenMs); err != nil {
			return nil, fmt.Errorf("failed to scan item stats: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// EntriesForItem returns the full history for one item, newest first; equal
// timestamps order most-recently-inserted first.
func (db *DB) EntriesForItem(ctx context.Context, itemID int64) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM wifi_entries
		WHERE item_id = ?
		ORDER BY created_at_ms DESC, id DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// AllEntries returns every entry across every item, grouped by label
// (case-insensitive ascending) with the newest-first order within each label.
func (db *DB) AllEntries(ctx context.Context) ([]LabeledEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT i.name, e.id, e.item_id, e.ssid, e.bssid, e.rssi, e.frequency,
			e.capabilities, e.distance_mm, e.distance_stddev_mm, e.created_at_ms
		FROM wifi_entries e
		JOIN items i ON i.id = e.item_id
		ORDER BY i.name COLLATE NOCASE, e.created_at_ms DESC, e.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query all entries: %w", err)
	}
	defer rows.Close()

	var entries []LabeledEntry
	for rows.Next() {
		var le LabeledEntry
		if err := rows.Scan(
			&le.ItemName,
			&le.Entry.ID,
			&le.Entry.ItemID,
			&le.Entry.SSID,
			&le.Entry.BSSID,
			&le.Entry.RSSI,
			&le.Entry.FrequencyMHz,
			&le.Entry.Capabilities,
			&le.Entry.DistanceMm,
			&le.Entry.DistanceStdDevMm,
			&le.Entry.CreatedAtMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan labeled entry: %w", err)
		}
		entries = append(entries, le)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteItem removes an item and, via the schema's cascade, its entries. Not
// used by the capture path; exposed for maintenance.
func (db *DB) DeleteItem(ctx context.Context, itemID int64) error {
	result, err := db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", itemID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d not found", itemID)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var entry Entry
	if err := rows.Scan(
		&entry.ID,
		&entry.ItemID,
		&entry.SSID,
		&entry.BSSID,
		&entry.RSSI,
		&entry.FrequencyMHz,
		&entry.Capabilities,
		&entry.DistanceMm,
		&entry.DistanceStdDevMm,
		&entry.CreatedAtMs,
	); err != nil {
		return Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}
	return entry, nil
}
