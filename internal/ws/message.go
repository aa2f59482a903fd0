package ws

import (
	"time"

	"lprd/internal/pipeline"
)

// DetectionMessage carries one processed frame and its plate reads to
// live clients.
type DetectionMessage struct {
	Type        string                     `json:"type"` // "detection"
	Timestamp   time.Time                  `json:"timestamp"`
	FrameSeq    uint64                     `json:"frame_seq"`
	FrameWidth  int                        `json:"frame_width"`
	FrameHeight int                        `json:"frame_height"`
	Plates      []*pipeline.DetectionEvent `json:"plates"`
	Frame       string                     `json:"frame,omitempty"` // Base64 encoded JPEG frame
}

// StatsMessage carries a periodic pipeline counter snapshot.
type StatsMessage struct {
	Type  string         `json:"type"` // "stats"
	Stats pipeline.Stats `json:"stats"`
}

// NewDetectionMessage builds a detection broadcast for one frame.
func NewDetectionMessage(frame *pipeline.Frame, events []*pipeline.DetectionEvent) *DetectionMessage {
	plates := events
	if plates == nil {
		plates = make([]*pipeline.DetectionEvent, 0)
	}
	return &DetectionMessage{
		Type:        "detection",
		Timestamp:   frame.Timestamp,
		FrameSeq:    frame.Seq,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
		Plates:      plates,
	}
}

// NewStatsMessage builds a stats broadcast.
func NewStatsMessage(stats pipeline.Stats) *StatsMessage {
	return &StatsMessage{Type: "stats", Stats: stats}
}
