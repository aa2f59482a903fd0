package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// plateWhitelist restricts recognition to the characters that can appear on
// a plate.
const plateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TesseractEngine is an Engine backed by a Tesseract client. The client is
// not safe for concurrent use, so calls are serialized; the pipeline only
// recognizes from the single inference goroutine anyway.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractEngine initializes a Tesseract client configured for
// single-line alphanumeric plate text. language is a Tesseract language code
// such as "eng"; dataPath optionally points at a tessdata directory.
func NewTesseractEngine(language, dataPath string) (*TesseractEngine, error) {
	client := gosseract.NewClient()

	if dataPath != "" {
		if err := client.SetTessdataPrefix(dataPath); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if language == "" {
		language = "eng"
	}
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(plateWhitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	return &TesseractEngine{client: client}, nil
}

// Recognize runs one OCR pass over a binarized plate crop and returns the
// raw text plus per-word confidences scaled to [0,1].
func (e *TesseractEngine) Recognize(img *image.Gray) (string, []float64, error) {
	if img == nil || img.Bounds().Empty() {
		return "", nil, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", nil, fmt.Errorf("failed to encode region: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", nil, fmt.Errorf("recognition failed: %w", err)
	}

	var text string
	confidences := make([]float64, 0, len(boxes))
	for _, box := range boxes {
		text += box.Word
		confidences = append(confidences, box.Confidence/100.0)
	}
	return text, confidences, nil
}

// Close releases the Tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

var _ Engine = (*TesseractEngine)(nil)
