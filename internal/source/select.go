package source

import (
	"strings"

	"github.com/rs/zerolog"

	"lprd/internal/pipeline"
)

// New picks the right source for a device string: HTTP still-image
// endpoints get the snapshot poller, everything else (RTSP, HTTP streams,
// V4L2 devices) goes through ffmpeg.
func New(device string, fps, width, height int, log zerolog.Logger) pipeline.FrameSource {
	if isHTTPImageEndpoint(device) {
		return NewSnapshotSource(device, fps, log)
	}
	return NewFFmpegSource(device, fps, width, height, log)
}

func isHTTPImageEndpoint(device string) bool {
	if !strings.HasPrefix(device, "http://") && !strings.HasPrefix(device, "https://") {
		return false
	}
	return strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") || strings.Contains(device, "image")
}
