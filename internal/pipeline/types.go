package pipeline

import (
	"image"
	"time"

	"lprd/internal/plate"
)

// Frame is one decoded video frame moving through the pipeline.
type Frame struct {
	Seq       uint64
	Image     image.Image
	Data      []byte // original encoded bytes when the source has them (JPEG)
	Timestamp time.Time
	Width     int
	Height    int
}

// DetectionEvent is one confirmed plate read, ready for persistence and
// fan-out.
type DetectionEvent struct {
	ID                  string          `json:"id"`
	Plate               string          `json:"plate"`
	RawText             string          `json:"raw_text"`
	Format              plate.Format    `json:"format"`
	Box                 image.Rectangle `json:"-"`
	BoxX                int             `json:"box_x"`
	BoxY                int             `json:"box_y"`
	BoxWidth            int             `json:"box_width"`
	BoxHeight           int             `json:"box_height"`
	DetectionConfidence float64         `json:"detection_confidence"`
	OCRConfidence       float64         `json:"ocr_confidence"`
	FrameSeq            uint64          `json:"frame_seq"`
	Location            string          `json:"location"`
	Authorized          bool            `json:"authorized"`
	Timestamp           time.Time       `json:"timestamp"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	FramesCaptured   uint64    `json:"frames_captured"`
	FramesDropped    uint64    `json:"frames_dropped"`
	FramesProcessed  uint64    `json:"frames_processed"`
	FramesSkipped    uint64    `json:"frames_skipped"`
	PlatesDetected   uint64    `json:"plates_detected"`
	PlatesRead       uint64    `json:"plates_read"`
	PlatesSuppressed uint64    `json:"plates_suppressed"`
	CaptureFPS       float64   `json:"capture_fps"`
	ProcessFPS       float64   `json:"process_fps"`
	LastDetection    time.Time `json:"last_detection"`
	StartedAt        time.Time `json:"started_at"`
	Running          bool      `json:"running"`
}
