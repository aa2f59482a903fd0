package detect

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// HTTPEngine talks to an inference sidecar over HTTP. The input buffer is
// posted as little-endian float32 bytes to /infer; the response carries the
// raw output tensors as JSON:
//
//	{"outputs": [{"boxes": N, "features": F, "data": [ ... N*F floats ... ]}]}
type HTTPEngine struct {
	endpoint string
	client   *http.Client
}

type httpTensor struct {
	Boxes    int       `json:"boxes"`
	Features int       `json:"features"`
	Data     []float32 `json:"data"`
}

type inferResponse struct {
	Outputs []httpTensor `json:"outputs"`
}

// NewHTTPEngine creates an engine client for the given base endpoint.
func NewHTTPEngine(endpoint string) *HTTPEngine {
	return &HTTPEngine{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second, // accelerator inference can be slow
		},
	}
}

// Infer posts the normalized input buffer and decodes the output tensors.
func (e *HTTPEngine) Infer(input []float32, width, height int) ([]Tensor, error) {
	raw := make([]byte, 4*len(input))
	for i, v := range input {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	req, err := http.NewRequest(http.MethodPost, e.endpoint+"/infer", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Input-Width", fmt.Sprintf("%d", width))
	req.Header.Set("X-Input-Height", fmt.Sprintf("%d", height))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference request failed: %s", string(body))
	}

	var decoded inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	tensors := make([]Tensor, 0, len(decoded.Outputs))
	for _, out := range decoded.Outputs {
		if len(out.Data) < out.Boxes*out.Features {
			return nil, fmt.Errorf("tensor data too short: %d < %d×%d", len(out.Data), out.Boxes, out.Features)
		}
		tensors = append(tensors, Tensor{Data: out.Data, Boxes: out.Boxes, Features: out.Features})
	}
	return tensors, nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (e *HTTPEngine) Close() error {
	return nil
}

var _ InferenceEngine = (*HTTPEngine)(nil)
