package pipeline

import (
	"errors"
	"image"

	"lprd/internal/detect"
	"lprd/internal/ocr"
)

// ErrNoFrame signals a transient frame gap: the source is healthy but has
// nothing to deliver right now.
var ErrNoFrame = errors.New("no frame available")

// FrameSource delivers decoded frames from a camera or stream.
type FrameSource interface {
	// Open establishes the connection. It fails fast when the source is
	// unreachable so startup can report a bad camera URL immediately.
	Open() error

	// NextFrame blocks until a frame is available, returning ErrNoFrame
	// on a transient gap and any other error when the source is gone.
	NextFrame() (*Frame, error)

	// Close releases the source.
	Close() error
}

// PlateDetector locates plate regions in a frame.
type PlateDetector interface {
	Detect(img image.Image) []detect.Candidate
	Available() bool
}

// TextRecognizer reads plate text from a cropped region.
type TextRecognizer interface {
	RecognizeBest(img image.Image) ocr.Result
	Available() bool
}

// EventSink persists confirmed detections and answers authorization
// lookups. A nil sink means the pipeline runs without persistence.
type EventSink interface {
	IsAuthorized(plateNumber string) (bool, error)
	SaveDetection(ev *DetectionEvent) error
}

// OverlayConsumer receives processed frames and their detections for
// live fan-out (websocket clients, recorders).
type OverlayConsumer interface {
	PublishDetections(frame *Frame, events []*DetectionEvent)
}
