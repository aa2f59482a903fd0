package ocr

import (
	"image"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultConfidenceFloor rejects reads below the minimum usable
	// plate confidence.
	DefaultConfidenceFloor = 0.25

	// highConfidenceBar short-circuits the multi-attempt loop once a
	// variant reads this well.
	highConfidenceBar = 0.9

	// retryConfidenceBar triggers the single-attempt fallback when no
	// binarization variant reaches it.
	retryConfidenceBar = 0.5
)

// Config tunes a Recognizer.
type Config struct {
	CacheEnabled    bool
	CacheCapacity   int
	ConfidenceFloor float64
}

// Recognizer turns plate crops into text, retrying across binarization
// variants and caching results keyed by a perceptual fingerprint of the
// crop.
type Recognizer struct {
	engine          Engine
	cache           *resultCache
	cacheEnabled    bool
	confidenceFloor float64
	log             zerolog.Logger
}

// NewRecognizer wraps an OCR engine. A nil engine is allowed and makes
// every recognition return an empty result, so the pipeline can run in
// detection-only mode.
func NewRecognizer(engine Engine, cfg Config, log zerolog.Logger) *Recognizer {
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	floor := cfg.ConfidenceFloor
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Recognizer{
		engine:          engine,
		cache:           newResultCache(capacity),
		cacheEnabled:    cfg.CacheEnabled,
		confidenceFloor: floor,
		log:             log.With().Str("component", "ocr").Logger(),
	}
}

// Available reports whether an OCR engine is wired in.
func (r *Recognizer) Available() bool {
	return r.engine != nil
}

// Recognize runs a single OCR attempt over the standard preprocessing
// chain. Used for quick reads where the multi-attempt cost is not worth it.
func (r *Recognizer) Recognize(img image.Image) Result {
	if r.engine == nil || img == nil {
		return Result{}
	}
	if res, ok := r.cacheGet(img); ok {
		return res
	}
	res := r.recognizeVariant(preprocessSingle(img))
	res = r.applyFloor(res)
	r.cachePut(img, res)
	return res
}

// RecognizeBest runs OCR across every binarization variant and returns the
// highest-confidence read. The loop exits early on a near-certain read and
// falls back to the single-attempt chain when no variant reads acceptably.
func (r *Recognizer) RecognizeBest(img image.Image) Result {
	if r.engine == nil || img == nil {
		return Result{}
	}
	if res, ok := r.cacheGet(img); ok {
		return res
	}

	prepared := smooth(upscaleIfSmall(grayscale(img)))

	var best Result
	for _, variant := range binarizationVariants(prepared) {
		res := r.recognizeVariant(variant)
		if res.Confidence > best.Confidence {
			best = res
		}
		if best.Confidence >= highConfidenceBar {
			break
		}
	}

	if best.Confidence < retryConfidenceBar {
		if res := r.recognizeVariant(preprocessSingle(img)); res.Confidence > best.Confidence {
			best = res
		}
	}

	best = r.applyFloor(best)
	r.cachePut(img, best)
	return best
}

// ClearCache drops all cached OCR results.
func (r *Recognizer) ClearCache() {
	r.cache.clear()
}

// CacheLen reports the number of cached results.
func (r *Recognizer) CacheLen() int {
	return r.cache.len()
}

// Close releases the underlying engine.
func (r *Recognizer) Close() error {
	if r.engine == nil {
		return nil
	}
	return r.engine.Close()
}

// recognizeVariant runs the engine on one binarized crop and averages the
// per-word confidences into a single score.
func (r *Recognizer) recognizeVariant(g *image.Gray) Result {
	text, confidences, err := r.engine.Recognize(g)
	if err != nil {
		r.log.Warn().Err(err).Msg("ocr attempt failed")
		return Result{}
	}
	text = cleanupText(text)
	if text == "" {
		return Result{}
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	var conf float64
	if len(confidences) > 0 {
		conf = sum / float64(len(confidences))
	}
	return Result{Text: text, Confidence: conf}
}

func (r *Recognizer) applyFloor(res Result) Result {
	if res.Text == "" || res.Confidence < r.confidenceFloor {
		return Result{}
	}
	return res
}

func (r *Recognizer) cacheGet(img image.Image) (Result, bool) {
	if !r.cacheEnabled {
		return Result{}, false
	}
	return r.cache.get(Fingerprint(img))
}

func (r *Recognizer) cachePut(img image.Image, res Result) {
	if !r.cacheEnabled {
		return
	}
	r.cache.put(Fingerprint(img), res)
}

// cleanupText strips everything but uppercase letters and digits from a
// raw engine read.
func cleanupText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range strings.ToUpper(s) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	return b.String()
}
