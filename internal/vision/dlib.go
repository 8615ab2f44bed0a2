package vision

import (
	"fmt"
	"log/slog"
	"sync"

	face "github.com/Kagami/go-face"
)

// DlibProvider wraps the dlib ResNet face recognizer. Its 128-d descriptors
// are what the default 0.6 match threshold is calibrated for.
type DlibProvider struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// NewDlibProvider loads shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat
// from modelsDir.
func NewDlibProvider(modelsDir string) (*DlibProvider, error) {
	slog.Info("loading dlib models", "dir", modelsDir)
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("init dlib recognizer: %w", err)
	}
	return &DlibProvider{rec: rec}, nil
}

func (p *DlibProvider) Detect(imageData []byte) ([]Face, error) {
	jpg, err := toJPEG(imageData)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	found, err := p.rec.Recognize(jpg)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	faces := make([]Face, 0, len(found))
	for _, f := range found {
		emb := make([]float32, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		faces = append(faces, Face{Box: f.Rectangle, Embedding: emb})
	}
	return faces, nil
}

func (p *DlibProvider) Encode(imageData []byte) ([][]float32, error) {
	return encodeAll(p, imageData)
}

func (p *DlibProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec != nil {
		p.rec.Close()
		p.rec = nil
	}
}
