package source

import (
	"bytes"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lprd/internal/pipeline"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), imaging.JPEG))
	return buf.Bytes()
}

func TestExtractJPEGFrame(t *testing.T) {
	jpg := encodeJPEG(t, 8, 8)

	// Stream noise before and a partial frame after.
	buffer := append([]byte{0x00, 0x01}, jpg...)
	buffer = append(buffer, 0xFF, 0xD8, 0x00)

	frame := extractJPEGFrame(&buffer)
	require.NotNil(t, frame)
	assert.Equal(t, jpg, frame)

	// The partial trailing frame stays buffered.
	assert.Nil(t, extractJPEGFrame(&buffer))
	assert.Equal(t, []byte{0xFF, 0xD8, 0x00}, buffer)
}

func TestExtractJPEGFrameIncomplete(t *testing.T) {
	buffer := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}
	assert.Nil(t, extractJPEGFrame(&buffer))
	assert.Len(t, buffer, 5)
}

func TestExtractJPEGFrameConsecutive(t *testing.T) {
	jpg := encodeJPEG(t, 8, 8)
	buffer := append(append([]byte{}, jpg...), jpg...)

	assert.NotNil(t, extractJPEGFrame(&buffer))
	assert.NotNil(t, extractJPEGFrame(&buffer))
	assert.Nil(t, extractJPEGFrame(&buffer))
}

func TestSnapshotSource(t *testing.T) {
	jpg := encodeJPEG(t, 32, 24)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	defer srv.Close()

	s := NewSnapshotSource(srv.URL+"/snapshot.jpg", 10, zerolog.Nop())
	require.NoError(t, s.Open())
	defer s.Close()

	frame, err := s.NextFrame()
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 32, frame.Width)
	assert.Equal(t, 24, frame.Height)
	assert.NotNil(t, frame.Image)
	assert.Equal(t, jpg, frame.Data)

	next, err := s.NextFrame()
	require.NoError(t, err)
	assert.Greater(t, next.Seq, frame.Seq)
}

func TestSnapshotSourceOpenFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSnapshotSource(srv.URL+"/missing.jpg", 5, zerolog.Nop())
	assert.Error(t, s.Open())
}

func TestSnapshotSourceRequiresOpen(t *testing.T) {
	s := NewSnapshotSource("http://localhost/cam.jpg", 5, zerolog.Nop())
	_, err := s.NextFrame()
	assert.Error(t, err)
}

func TestNewPicksSnapshotForImageEndpoints(t *testing.T) {
	log := zerolog.Nop()
	assert.IsType(t, &SnapshotSource{}, New("http://cam.local/still.jpg", 5, 0, 0, log))
	assert.IsType(t, &SnapshotSource{}, New("https://cam.local/image", 5, 0, 0, log))
	assert.IsType(t, &FFmpegSource{}, New("rtsp://cam.local/stream", 5, 0, 0, log))
	assert.IsType(t, &FFmpegSource{}, New("/dev/video0", 5, 640, 480, log))
	assert.IsType(t, &FFmpegSource{}, New("http://cam.local/stream.m3u8", 5, 0, 0, log))
}

func TestFFmpegSourceRequiresOpen(t *testing.T) {
	s := NewFFmpegSource("rtsp://cam.local/stream", 5, 0, 0, zerolog.Nop())
	_, err := s.NextFrame()
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

func newStreamingFFmpegSource() *FFmpegSource {
	s := NewFFmpegSource("rtsp://cam.local/stream", 5, 0, 0, zerolog.Nop())
	s.frames = make(chan *pipeline.Frame, 1)
	s.stopCh = make(chan struct{})
	s.ready = make(chan struct{})
	s.readDone = make(chan struct{})
	return s
}

func TestFFmpegSourceFirstFrameUnblocksStartup(t *testing.T) {
	s := newStreamingFFmpegSource()
	go s.readStream(bytes.NewReader(encodeJPEG(t, 8, 8)), s.frames, s.stopCh, s.ready, s.readDone)

	require.NoError(t, s.awaitFirstFrame(2*time.Second))

	frame, ok := <-s.frames
	require.True(t, ok)
	assert.Equal(t, 8, frame.Width)
}

func TestFFmpegSourceStartupFailsWhenStreamEnds(t *testing.T) {
	s := newStreamingFFmpegSource()
	go s.readStream(bytes.NewReader([]byte{0x00, 0x01, 0x02}), s.frames, s.stopCh, s.ready, s.readDone)

	err := s.awaitFirstFrame(2 * time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream ended")
}

func TestFFmpegSourceStartupFailsOnSilentStream(t *testing.T) {
	s := newStreamingFFmpegSource()
	pr, pw := io.Pipe()
	defer pw.Close()
	go s.readStream(pr, s.frames, s.stopCh, s.ready, s.readDone)

	err := s.awaitFirstFrame(50 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frame within")
}
