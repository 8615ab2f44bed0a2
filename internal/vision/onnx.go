package vision

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXProvider runs RetinaFace (det_10g) for detection and ArcFace
// (w600k_r50) for 512-d embeddings through ONNX Runtime. ArcFace vectors are
// L2-normalised, so Euclidean distances fall in [0, 2].
type ONNXProvider struct {
	mu       sync.Mutex
	detector *retinaFace
	embedder *arcFace
}

// NewONNXProvider initialises the ONNX Runtime environment and loads both models.
func NewONNXProvider(detPath, embPath string, threshold float32) (*ONNXProvider, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
	}

	slog.Info("loading detection model", "path", detPath)
	det, err := newRetinaFace(detPath, threshold)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := newArcFace(embPath)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXProvider{detector: det, embedder: emb}, nil
}

func (p *ONNXProvider) Detect(imageData []byte) ([]Face, error) {
	img, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	boxes, err := p.detector.detect(img)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(boxes))
	for _, b := range boxes {
		r, ok := ClampBox(b.rect, img.Bounds())
		if !ok {
			continue
		}
		emb, err := p.embedder.embed(imaging.Crop(img, padBox(r, img.Bounds())))
		if err != nil {
			return nil, err
		}
		faces = append(faces, Face{Box: r, Embedding: emb})
	}
	return faces, nil
}

func (p *ONNXProvider) Encode(imageData []byte) ([][]float32, error) {
	return encodeAll(p, imageData)
}

func (p *ONNXProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil {
		p.detector.close()
		p.detector = nil
	}
	if p.embedder != nil {
		p.embedder.close()
		p.embedder = nil
	}
}

// padBox grows r by 10% on each side, staying within bounds.
func padBox(r, bounds image.Rectangle) image.Rectangle {
	dx, dy := r.Dx()/10, r.Dy()/10
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy).Intersect(bounds)
}

// --- RetinaFace ---

type scoredBox struct {
	rect  image.Rectangle
	score float32
}

type retinaFace struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	outputs   []*ort.Tensor[float32]
	threshold float32
	size      int
}

var retinaStrides = []int{8, 16, 32}

const (
	retinaInputSize   = 640
	retinaAnchors     = 2
	retinaIoUSuppress = 0.4
)

func newRetinaFace(modelPath string, threshold float32) (*retinaFace, error) {
	size := retinaInputSize
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g emits scores then boxes per stride, with no batch dimension.
	// Landmark heads are not bound.
	names := []string{"448", "471", "494", "451", "474", "497"}
	outputs := make([]*ort.Tensor[float32], 0, len(names))
	values := make([]ort.Value, 0, len(names))
	cleanup := func() {
		input.Destroy()
		for _, t := range outputs {
			t.Destroy()
		}
	}
	for i, name := range names {
		stride := retinaStrides[i%len(retinaStrides)]
		anchors := int64((size / stride) * (size / stride) * retinaAnchors)
		width := int64(1)
		if i >= len(retinaStrides) {
			width = 4
		}
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(anchors, width))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("create output tensor %s: %w", name, err)
		}
		outputs = append(outputs, t)
		values = append(values, t)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{input}, values, nil)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &retinaFace{
		session:   session,
		input:     input,
		outputs:   outputs,
		threshold: threshold,
		size:      size,
	}, nil
}

func (d *retinaFace) detect(img image.Image) ([]scoredBox, error) {
	fillCHW(d.input.GetData(), img, d.size, d.size, 127.5, 128.0)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	b := img.Bounds()
	sx := float32(b.Dx()) / float32(d.size)
	sy := float32(b.Dy()) / float32(d.size)

	var found []scoredBox
	for si, stride := range retinaStrides {
		scores := d.outputs[si].GetData()
		deltas := d.outputs[si+len(retinaStrides)].GetData()
		cells := d.size / stride
		st := float32(stride)

		for idx := range scores {
			if scores[idx] < d.threshold {
				continue
			}
			cell := idx / retinaAnchors
			ax := float32(cell%cells) * st
			ay := float32(cell/cells) * st
			x1 := (ax - deltas[idx*4+0]*st) * sx
			y1 := (ay - deltas[idx*4+1]*st) * sy
			x2 := (ax + deltas[idx*4+2]*st) * sx
			y2 := (ay + deltas[idx*4+3]*st) * sy
			found = append(found, scoredBox{
				rect: image.Rect(
					b.Min.X+int(x1), b.Min.Y+int(y1),
					b.Min.X+int(math.Ceil(float64(x2))), b.Min.Y+int(math.Ceil(float64(y2))),
				),
				score: scores[idx],
			})
		}
	}
	return suppress(found, retinaIoUSuppress), nil
}

func (d *retinaFace) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	d.input.Destroy()
	for _, t := range d.outputs {
		t.Destroy()
	}
}

// suppress keeps the highest-scoring box of every overlapping cluster.
func suppress(boxes []scoredBox, maxIoU float64) []scoredBox {
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].score > boxes[j].score })

	var kept []scoredBox
	for _, b := range boxes {
		overlaps := false
		for _, k := range kept {
			if iou(b.rect, k.rect) > maxIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, b)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// --- ArcFace ---

type arcFace struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
	dim     int
}

func newArcFace(modelPath string) (*arcFace, error) {
	const size, dim = 112, 512

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, dim))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, []string{"683"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &arcFace{session: session, input: input, output: output, size: size, dim: dim}, nil
}

func (e *arcFace) embed(crop image.Image) ([]float32, error) {
	fillCHW(e.input.GetData(), crop, e.size, e.size, 127.5, 127.5)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}
	emb := make([]float32, e.dim)
	copy(emb, e.output.GetData())
	l2Normalize(emb)
	return emb, nil
}

func (e *arcFace) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	e.input.Destroy()
	e.output.Destroy()
}

// fillCHW resizes img to w x h and writes (pixel - mean) / std into dst in
// planar RGB order.
func fillCHW(dst []float32, img image.Image, w, h int, mean, std float32) {
	resized := imaging.Resize(img, w, h, imaging.Linear)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := resized.PixOffset(x, y)
			i := y*w + x
			dst[i] = (float32(resized.Pix[o]) - mean) / std
			dst[plane+i] = (float32(resized.Pix[o+1]) - mean) / std
			dst[2*plane+i] = (float32(resized.Pix[o+2]) - mean) / std
		}
	}
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
