// Package api exposes the fingerprint store and capture service over HTTP
// for the presentation layer.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/aisle.report/internal/capture"
	"github.com/banshee-data/aisle.report/internal/export"
	"github.com/banshee-data/aisle.report/internal/match"
	"github.com/banshee-data/aisle.report/internal/store"
	"github.com/banshee-data/aisle.report/internal/version"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db  *store.DB
	svc *capture.Service
}

func NewServer(db *store.DB, svc *capture.Service) *Server {
	return &Server{
		db:  db,
		svc: svc,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/items", s.listItems)
	mux.HandleFunc("/entries", s.listEntries)
	mux.HandleFunc("/entries/all", s.listAllEntries)
	mux.HandleFunc("/capture", s.captureHandler)
	mux.HandleFunc("/export", s.exportHandler)
	mux.HandleFunc("/match", s.matchHandler)
	mux.HandleFunc("/version", s.versionHandler)
	return mux
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	items, err := s.db.ItemsWithStats(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve items: %v", err))
		return
	}
	if items == nil {
		items = []store.ItemStats{}
	}

	if err := json.NewEncoder(w).Encode(items); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write items")
		return
	}
}

// itemIDParam parses the item_id query parameter.
func itemIDParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("item_id")
	if raw == "" {
		return 0, fmt.Errorf("missing 'item_id' parameter")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid 'item_id' parameter")
	}
	return id, nil
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	itemID, err := itemIDParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.db.EntriesForItem(r.Context(), itemID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve entries: %v", err))
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}

	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write entries")
		return
	}
}

func (s *Server) listAllEntries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	entries, err := s.db.AllEntries(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve entries: %v", err))
		return
	}
	if entries == nil {
		entries = []store.LabeledEntry{}
	}

	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write entries")
		return
	}
}

func (s *Server) captureHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	label := r.FormValue("label")
	if label == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'label' parameter")
		return
	}

	count, err := s.svc.Capture(r.Context(), label)
	if err != nil {
		// Storage or scan source failure; distinct from an empty scan, which
		// succeeds with a zero count.
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Capture failed: %v", err))
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"label":    label,
		"recorded": count,
	})
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := fmt.Sprintf("aisle-report-%s.csv", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if r.URL.Query().Get("item_id") != "" {
		itemID, err := itemIDParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entries, err := s.db.EntriesForItem(r.Context(), itemID)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to retrieve entries: %v", err), http.StatusInternalServerError)
			return
		}
		if err := export.WriteEntries(w, entries); err != nil {
			log.Printf("failed to write per-item export: %v", err)
		}
		return
	}

	entries, err := s.db.AllEntries(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve entries: %v", err), http.StatusInternalServerError)
		return
	}
	if err := export.WriteAllEntries(w, entries); err != nil {
		log.Printf("failed to write export: %v", err)
	}
}

func (s *Server) matchHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	itemID, err := itemIDParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.db.EntriesForItem(r.Context(), itemID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve entries: %v", err))
		return
	}

	scan, err := s.svc.Observe(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Scan failed: %v", err))
		return
	}

	profile := match.BuildProfile(entries)
	json.NewEncoder(w).Encode(map[string]any{
		"item_id":  itemID,
		"observed": len(scan),
		"history":  len(entries),
		"score":    profile.Score(scan),
	})
}
