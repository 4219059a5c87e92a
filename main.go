package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gritlab/sandtable/api"
	"github.com/gritlab/sandtable/db"
	"github.com/gritlab/sandtable/internal/config"
	"github.com/gritlab/sandtable/internal/depthmux"
	"github.com/gritlab/sandtable/internal/engine"
	"github.com/gritlab/sandtable/internal/stream"
	"github.com/gritlab/sandtable/internal/udpingest"
	"github.com/gritlab/sandtable/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode     = flag.Bool("dev", false, "Run in dev mode (mock sensor, static files from disk)")
	listen      = flag.String("listen", ":8080", "Listen address")
	sensorPath  = flag.String("sensor", "", "Serial path of the depth sensor (empty disables the sensor)")
	fixture     = flag.String("fixture", "fixtures.txt", "Fixture file replayed as sensor output in dev mode")
	udpListen   = flag.String("udp-listen", "", "UDP listen address for depth frame ingest (empty disables it)")
	dbFile      = flag.String("db", "", "SQLite path for session recording (empty disables recording)")
	configPath  = flag.String("config", "", "Path to a tuning config JSON file")
	tickRate    = flag.Int("tick-rate", 0, "Simulation ticks per second (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	rate := cfg.GetTickRate()
	if *tickRate > 0 {
		rate = *tickRate
	}

	var m depthmux.DepthMuxInterface
	switch {
	case *devMode:
		data, err := os.ReadFile(*fixture)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		m = depthmux.NewMockDepthMux(data, time.Second/time.Duration(rate))
	case *sensorPath != "":
		opts := depthmux.PortOptions{
			BaudRate: cfg.GetSensorBaudRate(),
			DataBits: cfg.GetSensorDataBits(),
			StopBits: cfg.GetSensorStopBits(),
		}
		var err error
		m, err = depthmux.NewRealDepthMux(*sensorPath, opts)
		if err != nil {
			log.Fatalf("failed to open depth sensor: %v", err)
		}
	default:
		m = depthmux.NewDisabledDepthMux()
	}
	defer m.Close()

	eng, err := engine.New(engine.Config{
		GridWidth:  cfg.GetGridWidth(),
		GridHeight: cfg.GetGridHeight(),
		TickRate:   rate,
		QueueDepth: cfg.GetQueueDepth(),
		Params:     cfg.Params(),
	})
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	// session recording is optional; everything below tolerates a nil database
	var database *db.DB
	var session *db.Session
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		session, err = database.BeginSession(cfg.GetGridWidth(), cfg.GetGridHeight(), rate)
		if err != nil {
			log.Fatalf("failed to begin session: %v", err)
		}
		log.Printf("recording session %s to %s", session.ID, *dbFile)
		defer func() {
			if err := database.EndSession(session.ID); err != nil {
				log.Printf("failed to end session: %v", err)
			}
		}()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// engine tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// run the monitor routine to manage IO on the sensor port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor sensor port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to parsed sensor frames and feed them to the engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, frames := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case frame := <-frames:
				if err := eng.Submit(engine.DepthFrameCommand{Frame: frame}); err != nil {
					log.Printf("dropping sensor frame: %v", err)
				}
			case <-ctx.Done():
				log.Printf("sensor subscribe routine terminated")
				return
			}
		}
	}()

	// UDP ingest for external depth estimators
	if *udpListen != "" {
		listener := udpingest.NewListener(udpingest.Config{
			Address:     *udpListen,
			LogInterval: cfg.GetUDPLogInterval(),
		}, eng)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Listen(ctx); err != nil && err != context.Canceled {
				log.Printf("udp listener stopped: %v", err)
			}
			log.Print("udp ingest routine terminated")
		}()
	}

	// sample snapshots into the session recording
	if database != nil {
		interval := uint64(cfg.GetRecordInterval())
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, snapshots := eng.Subscribe()
			defer eng.Unsubscribe(id)
			var lastRecorded uint64
			for {
				select {
				case snap, ok := <-snapshots:
					if !ok {
						return
					}
					if snap.Tick == 0 || snap.Tick < lastRecorded+interval {
						continue
					}
					if err := database.RecordSnapshot(session.ID, snap); err != nil {
						log.Printf("failed to record snapshot: %v", err)
						continue
					}
					lastRecorded = snap.Tick
				case <-ctx.Done():
					log.Printf("recorder routine terminated")
					return
				}
			}
		}()
	}

	// WebSocket hub
	hub := stream.NewHub(eng)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("stream hub stopped: %v", err)
		}
		log.Print("stream hub routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}
		m.AttachAdminRoutes(mux)

		sessionID := ""
		if session != nil {
			sessionID = session.ID
		}
		apiMux := api.NewServer(eng, database, sessionID, hub).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		mux.HandleFunc("/ws", hub.HandleWS)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// initialize the sensor once the monitor is up
	if err := m.Initialize(); err != nil {
		log.Printf("failed to initialize sensor: %v", err)
	}

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
