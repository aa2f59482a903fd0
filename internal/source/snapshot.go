package source

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"lprd/internal/pipeline"
)

// SnapshotSource polls an HTTP still-image endpoint (a webcam snapshot
// URL) at a fixed rate.
type SnapshotSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      zerolog.Logger

	seq       atomic.Uint64
	lastFetch time.Time
	opened    bool
}

// NewSnapshotSource creates a poller for the given URL. fps caps out at
// 10 polls per second.
func NewSnapshotSource(url string, fps int, log zerolog.Logger) *SnapshotSource {
	if fps <= 0 {
		fps = DefaultFPS
	}
	interval := time.Second / time.Duration(fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &SnapshotSource{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "source").Logger(),
	}
}

// Open verifies the endpoint answers with a decodable image before the
// pipeline starts, so a bad URL fails at startup instead of looping.
func (s *SnapshotSource) Open() error {
	if s.opened {
		return fmt.Errorf("source already open")
	}
	if _, err := s.fetch(); err != nil {
		return fmt.Errorf("probe snapshot endpoint: %w", err)
	}
	s.opened = true
	s.log.Info().Str("url", s.url).Dur("interval", s.interval).Msg("snapshot polling started")
	return nil
}

// NextFrame waits out the poll interval and fetches one snapshot. Fetch
// failures are transient and reported as ErrNoFrame.
func (s *SnapshotSource) NextFrame() (*pipeline.Frame, error) {
	if !s.opened {
		return nil, fmt.Errorf("source not open")
	}

	if wait := s.interval - time.Since(s.lastFetch); wait > 0 {
		time.Sleep(wait)
	}
	s.lastFetch = time.Now()

	frame, err := s.fetch()
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot fetch failed")
		return nil, pipeline.ErrNoFrame
	}
	return frame, nil
}

// Close stops the poller.
func (s *SnapshotSource) Close() error {
	s.opened = false
	return nil
}

func (s *SnapshotSource) fetch() (*pipeline.Frame, error) {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &pipeline.Frame{
		Seq:       s.seq.Add(1),
		Image:     img,
		Data:      data,
		Timestamp: time.Now(),
		Width:     img.Bounds().Dx(),
		Height:    img.Bounds().Dy(),
	}, nil
}

var _ pipeline.FrameSource = (*SnapshotSource)(nil)
