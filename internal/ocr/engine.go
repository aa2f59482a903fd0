// Package ocr recognizes plate text from cropped plate regions. It wraps an
// external OCR engine behind a narrow interface, adds a fingerprint result
// cache, and implements a multi-binarization retry strategy for low-contrast
// crops.
package ocr

import "image"

// Result is one OCR outcome: cleaned text and an averaged confidence in
// [0,1]. The zero value means "nothing recognized".
type Result struct {
	Text       string
	Confidence float64
}

// Engine is the narrow contract of an external OCR backend. Recognize
// accepts a single-channel image and returns the raw recognized text plus
// one confidence per word; the caller averages those into a scalar.
type Engine interface {
	Recognize(img *image.Gray) (text string, wordConfidences []float64, err error)
	Close() error
}
