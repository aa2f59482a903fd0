package pipeline

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lprd/internal/plate"
)

const (
	// DefaultCadence runs inference on every second buffered frame.
	DefaultCadence = 2

	// DefaultProcessingResolution is the target width for inference input.
	DefaultProcessingResolution = 800

	// downsampleSlack skips the resize when the frame is not meaningfully
	// wider than the processing resolution.
	downsampleSlack = 1.2

	// idleWait is how long the inference loop sleeps on an empty buffer.
	idleWait = 5 * time.Millisecond

	// captureBackoff is the retry delay after a capture error.
	captureBackoff = 250 * time.Millisecond
)

// Config tunes a Scheduler.
type Config struct {
	Cadence              int
	BufferSize           int
	ProcessingResolution int
	Cooldown             time.Duration
	Location             string
}

// Scheduler runs the capture and inference loops for one camera: frames
// flow from the source through a bounded buffer into detection, OCR,
// validation, dedup, persistence and live fan-out.
type Scheduler struct {
	source     FrameSource
	detector   PlateDetector
	recognizer TextRecognizer
	sink       EventSink
	overlay    OverlayConsumer
	dedup      *plate.Window

	buffer   *frameBuffer
	cadence  int
	procRes  int
	location string
	log      zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	stats   Stats
	statsMu sync.RWMutex
}

// New wires a scheduler. Detector, recognizer, sink and overlay may each
// be nil; the pipeline degrades to whatever stages remain.
func New(source FrameSource, detector PlateDetector, recognizer TextRecognizer, sink EventSink, overlay OverlayConsumer, cfg Config, log zerolog.Logger) *Scheduler {
	cadence := cfg.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	procRes := cfg.ProcessingResolution
	if procRes <= 0 {
		procRes = DefaultProcessingResolution
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = plate.DefaultCooldown
	}
	return &Scheduler{
		source:     source,
		detector:   detector,
		recognizer: recognizer,
		sink:       sink,
		overlay:    overlay,
		dedup:      plate.NewWindow(cooldown),
		buffer:     newFrameBuffer(cfg.BufferSize),
		cadence:    cadence,
		procRes:    procRes,
		location:   cfg.Location,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Start opens the source and launches the capture and inference loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("pipeline already running")
	}
	if s.source == nil {
		return fmt.Errorf("pipeline has no frame source")
	}

	if err := s.source.Open(); err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.statsMu.Lock()
	s.stats = Stats{StartedAt: time.Now(), Running: true}
	s.statsMu.Unlock()

	s.wg.Add(2)
	go s.captureLoop()
	go s.inferenceLoop()

	s.log.Info().
		Int("cadence", s.cadence).
		Int("processing_resolution", s.procRes).
		Dur("cooldown", s.dedup.Cooldown()).
		Msg("pipeline started")
	return nil
}

// Stop signals both loops, waits for them to drain and closes the source.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	err := s.source.Close()

	s.statsMu.Lock()
	s.stats.Running = false
	s.statsMu.Unlock()

	s.log.Info().Msg("pipeline stopped")
	return err
}

// Stats returns a copy of the current counters with derived frame rates.
func (s *Scheduler) Stats() Stats {
	s.statsMu.RLock()
	stats := s.stats
	s.statsMu.RUnlock()

	if !stats.StartedAt.IsZero() {
		if elapsed := time.Since(stats.StartedAt).Seconds(); elapsed > 0 {
			stats.CaptureFPS = float64(stats.FramesCaptured) / elapsed
			stats.ProcessFPS = float64(stats.FramesProcessed) / elapsed
		}
	}
	return stats
}

// captureLoop pulls frames from the source into the bounded buffer.
func (s *Scheduler) captureLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, err := s.source.NextFrame()
		if err == ErrNoFrame {
			time.Sleep(idleWait)
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("frame capture failed")
			select {
			case <-s.stopCh:
				return
			case <-time.After(captureBackoff):
			}
			continue
		}
		if frame == nil || frame.Image == nil {
			continue
		}

		dropped := s.buffer.push(frame)

		s.statsMu.Lock()
		s.stats.FramesCaptured++
		if dropped {
			s.stats.FramesDropped++
		}
		s.statsMu.Unlock()
	}
}

// inferenceLoop drains the buffer, running detection on every Nth frame
// and forwarding all frames to the overlay consumer.
func (s *Scheduler) inferenceLoop() {
	defer s.wg.Done()

	var frameCount uint64
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame := s.buffer.pop()
		if frame == nil {
			time.Sleep(idleWait)
			continue
		}

		var events []*DetectionEvent
		if frameCount%uint64(s.cadence) == 0 {
			events = s.processFrame(frame)
			s.statsMu.Lock()
			s.stats.FramesProcessed++
			s.statsMu.Unlock()
		} else {
			s.statsMu.Lock()
			s.stats.FramesSkipped++
			s.statsMu.Unlock()
		}

		frameCount++

		if s.overlay != nil {
			s.overlay.PublishDetections(frame, events)
		}
	}
}

// processFrame runs the full recognition chain on one frame.
func (s *Scheduler) processFrame(frame *Frame) []*DetectionEvent {
	if s.detector == nil || !s.detector.Available() {
		return nil
	}

	work, scale := s.downsample(frame.Image)
	candidates := s.detector.Detect(work)
	if len(candidates) == 0 {
		return nil
	}

	s.statsMu.Lock()
	s.stats.PlatesDetected += uint64(len(candidates))
	s.statsMu.Unlock()

	bounds := frame.Image.Bounds()
	var events []*DetectionEvent
	for _, cand := range candidates {
		box := rescaleBox(cand.Box, scale)
		box = box.Intersect(bounds)
		if box.Empty() {
			continue
		}

		ev := s.recognizePlate(frame, box, float64(cand.Confidence))
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

// recognizePlate crops one candidate region, reads and validates it, and
// persists the result. Returns nil when the region yields no usable plate.
func (s *Scheduler) recognizePlate(frame *Frame, box image.Rectangle, detConf float64) *DetectionEvent {
	if s.recognizer == nil || !s.recognizer.Available() {
		return nil
	}

	crop := imaging.Crop(frame.Image, box)
	read := s.recognizer.RecognizeBest(crop)
	if read.Text == "" {
		return nil
	}

	normalized, format, ok := plate.Normalize(read.Text)
	if !ok {
		s.log.Debug().Str("raw", read.Text).Msg("discarding unparseable read")
		return nil
	}

	if !s.dedup.Check(normalized, frame.Timestamp) {
		s.statsMu.Lock()
		s.stats.PlatesSuppressed++
		s.statsMu.Unlock()
		return nil
	}

	ev := &DetectionEvent{
		ID:                  uuid.NewString(),
		Plate:               normalized,
		RawText:             read.Text,
		Format:              format,
		Box:                 box,
		BoxX:                box.Min.X,
		BoxY:                box.Min.Y,
		BoxWidth:            box.Dx(),
		BoxHeight:           box.Dy(),
		DetectionConfidence: detConf,
		OCRConfidence:       read.Confidence,
		FrameSeq:            frame.Seq,
		Location:            s.location,
		Timestamp:           frame.Timestamp,
	}

	if s.sink != nil {
		authorized, err := s.sink.IsAuthorized(normalized)
		if err != nil {
			s.log.Warn().Err(err).Str("plate", normalized).Msg("authorization lookup failed")
		}
		ev.Authorized = authorized

		if err := s.sink.SaveDetection(ev); err != nil {
			s.log.Error().Err(err).Str("plate", normalized).Msg("failed to persist detection")
		}
	}

	s.statsMu.Lock()
	s.stats.PlatesRead++
	s.stats.LastDetection = ev.Timestamp
	s.statsMu.Unlock()

	s.log.Info().
		Str("plate", normalized).
		Str("format", string(format)).
		Float64("confidence", read.Confidence).
		Bool("authorized", ev.Authorized).
		Msg("plate detected")
	return ev
}

// downsample shrinks wide frames to the processing resolution for faster
// inference, returning the work image and the factor mapping its
// coordinates back to the source frame.
func (s *Scheduler) downsample(img image.Image) (image.Image, float64) {
	w := img.Bounds().Dx()
	if float64(w) <= float64(s.procRes)*downsampleSlack {
		return img, 1
	}
	resized := imaging.Resize(img, s.procRes, 0, imaging.Linear)
	return resized, float64(w) / float64(resized.Bounds().Dx())
}

// rescaleBox maps a detection box from work-image coordinates back into
// source-frame coordinates.
func rescaleBox(box image.Rectangle, scale float64) image.Rectangle {
	if scale == 1 {
		return box
	}
	return image.Rect(
		int(float64(box.Min.X)*scale),
		int(float64(box.Min.Y)*scale),
		int(float64(box.Max.X)*scale),
		int(float64(box.Max.Y)*scale),
	)
}
