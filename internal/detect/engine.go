// Package detect turns a captured frame into a filtered set of plate
// candidate boxes. It preprocesses frames into the model input layout,
// decodes the raw output tensors of a YOLO-style model, and applies greedy
// non-maximum suppression. The inference backend itself is an opaque
// capability behind the InferenceEngine interface.
package detect

// Tensor is a dense float32 model output in [batch, boxes, features] layout
// with batch size 1. The first four features of each box are its center-form
// rectangle (centerX, centerY, width, height) in model input coordinates;
// any remaining features are per-class scores.
type Tensor struct {
	Data     []float32
	Boxes    int
	Features int
}

// At returns the feature value at (box, feature). It performs no bounds
// checking beyond the underlying slice.
func (t Tensor) At(box, feature int) float32 {
	return t.Data[box*t.Features+feature]
}

// InferenceEngine is the narrow contract of an external inference backend.
// Infer accepts a normalized CHW float32 image buffer of size
// 3×height×width and returns one or more output tensors.
type InferenceEngine interface {
	Infer(input []float32, width, height int) ([]Tensor, error)
	Close() error
}
