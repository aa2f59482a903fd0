package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"lprd/internal/pipeline"
)

const (
	// DefaultFPS is the capture rate requested from ffmpeg.
	DefaultFPS = 10

	// frameWait bounds how long NextFrame blocks before reporting a gap.
	frameWait = 2 * time.Second

	// startupTimeout bounds how long Open waits for the stream to prove
	// itself with a first decoded frame.
	startupTimeout = 10 * time.Second
)

// FFmpegSource captures frames from an RTSP stream, HTTP stream or V4L2
// device by running ffmpeg in MJPEG pipe mode and decoding each frame.
type FFmpegSource struct {
	device string
	fps    int
	width  int
	height int
	log    zerolog.Logger

	cmd      *exec.Cmd
	frames   chan *pipeline.Frame
	stopCh   chan struct{}
	ready    chan struct{}
	readDone chan struct{}
	seq      atomic.Uint64
	opened   bool
	mu       sync.Mutex
}

// NewFFmpegSource creates a source for the given device. Width and height
// only matter for V4L2 devices; streams report their own geometry.
func NewFFmpegSource(device string, fps, width, height int, log zerolog.Logger) *FFmpegSource {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &FFmpegSource{
		device: device,
		fps:    fps,
		width:  width,
		height: height,
		log:    log.With().Str("component", "source").Logger(),
	}
}

// Open launches ffmpeg, starts the stream reader and waits for the first
// decoded frame, so a missing binary, a bad device or an unreachable stream
// all surface at startup instead of as a silently idle capture loop.
func (s *FFmpegSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return fmt.Errorf("source already open")
	}

	cmd := exec.Command("ffmpeg", s.ffmpegArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.frames = make(chan *pipeline.Frame, 1)
	s.stopCh = make(chan struct{})
	s.ready = make(chan struct{})
	s.readDone = make(chan struct{})
	s.opened = true

	// Consume stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	go s.readStream(stdout, s.frames, s.stopCh, s.ready, s.readDone)

	if err := s.awaitFirstFrame(startupTimeout); err != nil {
		s.teardownLocked()
		return fmt.Errorf("verify stream %s: %w", s.device, err)
	}

	s.log.Info().Str("device", s.device).Int("fps", s.fps).Msg("capture started")
	return nil
}

// awaitFirstFrame blocks until the reader decodes a frame, the stream ends
// or the timeout elapses.
func (s *FFmpegSource) awaitFirstFrame(timeout time.Duration) error {
	select {
	case <-s.ready:
		return nil
	case <-s.readDone:
		return fmt.Errorf("stream ended before first frame")
	case <-time.After(timeout):
		return fmt.Errorf("no frame within %s", timeout)
	}
}

// NextFrame returns the next decoded frame, or ErrNoFrame after a short
// wait with nothing new.
func (s *FFmpegSource) NextFrame() (*pipeline.Frame, error) {
	s.mu.Lock()
	frames, stopCh, opened := s.frames, s.stopCh, s.opened
	s.mu.Unlock()
	if !opened {
		return nil, fmt.Errorf("source not open")
	}

	select {
	case frame, ok := <-frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-stopCh:
		return nil, io.EOF
	case <-time.After(frameWait):
		return nil, pipeline.ErrNoFrame
	}
}

// Close stops the reader and kills the ffmpeg process.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.teardownLocked()

	s.log.Info().Str("device", s.device).Msg("capture stopped")
	return nil
}

func (s *FFmpegSource) teardownLocked() {
	s.opened = false
	close(s.stopCh)
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
}

func (s *FFmpegSource) ffmpegArgs() []string {
	if strings.HasPrefix(s.device, "rtsp://") {
		return []string{
			"-rtsp_transport", "tcp",
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	}
	if strings.HasPrefix(s.device, "http://") || strings.HasPrefix(s.device, "https://") {
		return []string{
			"-i", s.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", s.fps),
			"-q:v", "5",
			"-",
		}
	}
	// V4L2 device (USB camera)
	return []string{
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-framerate", fmt.Sprintf("%d", s.fps),
		"-i", s.device,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	}
}

// readStream scans the MJPEG pipe, decoding each complete JPEG into a
// frame. The delivery channel holds one frame; when the consumer lags,
// the stale frame is replaced so the channel always carries fresh video.
// Channels are passed in so a reader outliving a reopen cannot touch the
// replacement's channels.
func (s *FFmpegSource) readStream(stdout io.Reader, frames chan *pipeline.Frame, stopCh, ready, readDone chan struct{}) {
	defer close(readDone)

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := stdout.Read(chunk)
		if err != nil {
			if err != io.EOF {
				s.log.Warn().Err(err).Msg("stream read failed")
			}
			close(frames)
			return
		}
		frameBuffer = append(frameBuffer, chunk[:n]...)

		for {
			data := extractJPEGFrame(&frameBuffer)
			if data == nil {
				break
			}
			s.deliver(data, frames, ready)
		}
	}
}

func (s *FFmpegSource) deliver(data []byte, frames chan *pipeline.Frame, ready chan struct{}) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}

	frame := &pipeline.Frame{
		Seq:       s.seq.Add(1),
		Image:     img,
		Data:      data,
		Timestamp: time.Now(),
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
	}

	select {
	case <-ready:
	default:
		close(ready)
	}

	for {
		select {
		case frames <- frame:
			return
		default:
			select {
			case <-frames:
			default:
			}
		}
	}
}

var _ pipeline.FrameSource = (*FFmpegSource)(nil)
