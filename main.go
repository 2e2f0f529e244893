package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/aisle.report/internal/api"
	"github.com/banshee-data/aisle.report/internal/capture"
	"github.com/banshee-data/aisle.report/internal/fusion"
	"github.com/banshee-data/aisle.report/internal/scanmux"
	"github.com/banshee-data/aisle.report/internal/store"
	"github.com/banshee-data/aisle.report/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (replay fixtures instead of opening the probe port)")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "aisle.db", "Path to the SQLite database")
	portPath   = flag.String("port", "/dev/ttyUSB0", "Serial port of the scan probe")
	baudRate   = flag.Int("baud", 115200, "Baud rate of the scan probe")
	ranging    = flag.Bool("ranging", true, "Attempt RTT ranging after each scan")
	maxRanging = flag.Int("max-ranging-peers", fusion.DefaultMaxRangingPeers, "Maximum access points per ranging request")
)

func main() {
	flag.Parse()

	// The migrate subcommand manages schema versions and exits.
	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		store.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Print(version.String())

	var mux scanmux.ScanMuxInterface
	if *devMode {
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		mux = scanmux.NewMockScanMux(data)
	} else {
		var err error
		mux, err = scanmux.NewRealScanMux(*portPath, scanmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open scan probe: %v", err)
		}
	}
	defer mux.Close()

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	engine := fusion.NewEngine()
	engine.MaxRangingPeers = *maxRanging

	svc := &capture.Service{
		Source: mux,
		Engine: engine,
		Store:  db,
	}
	if *ranging {
		svc.Ranger = &capture.ProbeRanger{Source: mux, Engine: engine}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the probe port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor scan probe: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		root := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		db.AttachAdminRoutes(root)
		mux.AttachAdminRoutes(root)

		apiMux := api.NewServer(db, svc).ServeMux()
		root.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(root),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
