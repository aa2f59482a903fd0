package detect

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

const (
	// DefaultInputSize is the square model input resolution.
	DefaultInputSize = 640
	// DefaultConfidenceThreshold filters decoded boxes.
	DefaultConfidenceThreshold = 0.30
	// defaultBoxConfidence is assigned when a model emits boxes without
	// per-class scores.
	defaultBoxConfidence = 0.5
)

// Candidate is one decoded detection: a corner-form box in frame pixel
// coordinates, a confidence in [0,1], and the class index that produced it.
type Candidate struct {
	Box        image.Rectangle
	Confidence float32
	ClassID    int
}

// Config tunes a Detector.
type Config struct {
	InputSize           int
	ConfidenceThreshold float32
	IoUThreshold        float64
}

// Detector wraps an InferenceEngine with preprocessing, output decoding and
// non-maximum suppression. A nil engine is valid and produces no detections,
// so the pipeline can run in degraded mode without a model.
type Detector struct {
	engine        InferenceEngine
	inputSize     int
	confThreshold float32
	iouThreshold  float64
	log           zerolog.Logger
}

// New creates a detector over the given engine. engine may be nil.
func New(engine InferenceEngine, cfg Config, log zerolog.Logger) *Detector {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	return &Detector{
		engine:        engine,
		inputSize:     cfg.InputSize,
		confThreshold: cfg.ConfidenceThreshold,
		iouThreshold:  cfg.IoUThreshold,
		log:           log.With().Str("component", "detector").Logger(),
	}
}

// Available reports whether an inference backend is attached.
func (d *Detector) Available() bool {
	return d != nil && d.engine != nil
}

// Detect runs one inference pass on img and returns the surviving plate
// candidates in frame coordinates. Detection failures are absorbed: a
// missing engine or a failed inference yields an empty result, never an
// error, so a flaky backend cannot stall the pipeline.
func (d *Detector) Detect(img image.Image) []Candidate {
	if !d.Available() || img == nil {
		return nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil
	}

	input := d.preprocess(img)
	outputs, err := d.engine.Infer(input, d.inputSize, d.inputSize)
	if err != nil {
		d.log.Warn().Err(err).Msg("inference failed, returning no detections")
		return nil
	}

	var candidates []Candidate
	for _, out := range outputs {
		candidates = append(candidates, d.decode(out, bounds.Dx(), bounds.Dy())...)
	}
	return nonMaxSuppression(candidates, d.iouThreshold)
}

// Close releases the inference backend, if any.
func (d *Detector) Close() error {
	if d == nil || d.engine == nil {
		return nil
	}
	return d.engine.Close()
}

// preprocess resizes img to the square input size and converts it to a
// normalized CHW float32 buffer in RGB order, pixel values scaled to [0,1].
func (d *Detector) preprocess(img image.Image) []float32 {
	resized := imaging.Resize(img, d.inputSize, d.inputSize, imaging.Linear)

	plane := d.inputSize * d.inputSize
	input := make([]float32, 3*plane)
	for y := 0; y < d.inputSize; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < d.inputSize; x++ {
			i := y*d.inputSize + x
			input[i] = float32(row[x*4]) / 255.0
			input[plane+i] = float32(row[x*4+1]) / 255.0
			input[2*plane+i] = float32(row[x*4+2]) / 255.0
		}
	}
	return input
}

// decode converts one output tensor into frame-space candidates, keeping
// boxes at or above the confidence threshold.
func (d *Detector) decode(out Tensor, frameW, frameH int) []Candidate {
	if out.Features < 4 || out.Boxes <= 0 || len(out.Data) < out.Boxes*out.Features {
		return nil
	}

	xScale := float32(frameW) / float32(d.inputSize)
	yScale := float32(frameH) / float32(d.inputSize)

	var candidates []Candidate
	for i := 0; i < out.Boxes; i++ {
		cx := out.At(i, 0)
		cy := out.At(i, 1)
		w := out.At(i, 2)
		h := out.At(i, 3)

		confidence := float32(defaultBoxConfidence)
		classID := 0
		if out.Features > 4 {
			confidence = 0
			for j := 4; j < out.Features; j++ {
				if s := out.At(i, j); s > confidence {
					confidence = s
					classID = j - 4
				}
			}
		}
		if confidence < d.confThreshold {
			continue
		}

		x0 := (cx - w/2) * xScale
		y0 := (cy - h/2) * yScale
		x1 := (cx + w/2) * xScale
		y1 := (cy + h/2) * yScale

		candidates = append(candidates, Candidate{
			Box:        image.Rect(int(x0), int(y0), int(x1), int(y1)),
			Confidence: confidence,
			ClassID:    classID,
		})
	}
	return candidates
}
