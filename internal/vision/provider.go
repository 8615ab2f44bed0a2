// Package vision turns image bytes into face locations and embeddings.
package vision

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"github.com/your-org/facesort/internal/config"
)

// ErrNoFace is returned by Encode when the image contains no detectable face.
var ErrNoFace = errors.New("no face detected")

// Face is one detected face: its region in source-image pixels and its
// embedding. All embeddings from a Provider share one dimensionality.
type Face struct {
	Box       image.Rectangle
	Embedding []float32
}

// Provider detects and encodes faces. Implementations must be safe for
// sequential use from one goroutine; the batch pipeline never calls them
// concurrently.
type Provider interface {
	// Detect returns every face found in the image, in detector order.
	Detect(imageData []byte) ([]Face, error)
	// Encode returns one embedding per face found, in detector order.
	Encode(imageData []byte) ([][]float32, error)
	Close()
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg config.VisionConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderDlib:
		return NewDlibProvider(cfg.ModelsDir)
	case config.ProviderONNX:
		return NewONNXProvider(
			filepath.Join(cfg.ModelsDir, "det_10g.onnx"),
			filepath.Join(cfg.ModelsDir, "w600k_r50.onnx"),
			float32(cfg.DetectionThreshold),
		)
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}

// encodeAll is the shared Encode implementation on top of Detect.
func encodeAll(p Provider, imageData []byte) ([][]float32, error) {
	faces, err := p.Detect(imageData)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(faces))
	for _, f := range faces {
		out = append(out, f.Embedding)
	}
	return out, nil
}
