package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lprd/internal/config"
	"lprd/internal/detect"
	"lprd/internal/ocr"
	"lprd/internal/pipeline"
	"lprd/internal/source"
	"lprd/internal/storage"
	"lprd/internal/ws"
)

const statsInterval = 5 * time.Second

func main() {
	var (
		configF = flag.String("config", "", "Path to configuration file")
		cameraF = flag.String("camera", "", "Camera device or URL (overrides config)")
		dbgF    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if *dbgF {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	device := cfg.Camera.RTSPURL
	if *cameraF != "" {
		device = *cameraF
	}
	if device == "" {
		log.Fatal().Msg("no camera configured (set camera.rtsp_url or use -camera)")
	}

	// Persistence is optional: without it the pipeline still detects and
	// streams, it just cannot authorize or record.
	var store *storage.Store
	if cfg.Database.Path != "" {
		store, err = storage.New(cfg.Database.Path)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, running without persistence")
		} else if err := store.Migrate(); err != nil {
			log.Warn().Err(err).Msg("migration failed, running without persistence")
			store.Close()
			store = nil
		}
	}

	var engine detect.InferenceEngine
	if cfg.Detector.Endpoint != "" {
		engine = detect.NewHTTPEngine(cfg.Detector.Endpoint)
	} else {
		log.Warn().Msg("no detector endpoint configured, running without detection")
	}
	detector := detect.New(engine, detect.Config{
		ConfidenceThreshold: float32(cfg.Processing.ConfidenceThreshold),
	}, log)

	var ocrEngine ocr.Engine
	tess, err := ocr.NewTesseractEngine(cfg.OCR.Language, cfg.OCR.TessdataPath)
	if err != nil {
		log.Warn().Err(err).Msg("tesseract unavailable, running without OCR")
	} else {
		ocrEngine = tess
	}
	recognizer := ocr.NewRecognizer(ocrEngine, ocr.Config{
		CacheEnabled:    cfg.Processing.OCRCacheEnabled,
		ConfidenceFloor: cfg.Processing.PlateConfidenceMin,
	}, log)

	hub := ws.NewHub(log)

	frameSource := source.New(device, cfg.Camera.FPS, cfg.Camera.Width, cfg.Camera.Height, log)

	var sink pipeline.EventSink
	if store != nil {
		sink = store
	}
	sched := pipeline.New(frameSource, detector, recognizer, sink, hub, pipeline.Config{
		Cadence:              cfg.Realtime.AIProcessEvery,
		BufferSize:           cfg.Realtime.FrameBufferSize,
		ProcessingResolution: cfg.Realtime.ProcessingResolution,
		Cooldown:             cfg.Processing.DetectionCooldown(),
		Location:             cfg.Camera.Location,
	}, log)

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start pipeline")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sched.Stats(), log)
	})
	mux.HandleFunc("/api/detections", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		records, err := store.RecentDetections(r.URL.Query().Get("plate"), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, records, log)
	})
	mux.HandleFunc("/api/vehicles", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var v storage.VehicleRecord
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if v.Plate == "" {
			http.Error(w, "plate required", http.StatusBadRequest)
			return
		}
		if err := store.RegisterVehicle(&v); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	// Channel used by the signal handler and server goroutine to notify
	// the main goroutine when to stop.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	statsDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-statsDone:
				return
			case <-ticker.C:
				hub.PublishStats(sched.Stats())
			}
		}
	}()

	log.Info().Str("camera", device).Str("location", cfg.Camera.Location).Msg("lprd running")
	log.Info().Msgf("exiting (%v)", <-errc)

	close(statsDone)
	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("pipeline shutdown error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	recognizer.Close()
	detector.Close()
	if store != nil {
		store.Close()
	}
	log.Info().Msg("exited")
}

func writeJSON(w http.ResponseWriter, v interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
