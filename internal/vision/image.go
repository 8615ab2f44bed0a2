package vision

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes any registered format (JPEG, PNG, GIF, WebP). EXIF
// orientation is not applied: boxes are in stored-pixel coordinates, which is
// what the detectors see.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// ClampBox intersects box with bounds. ok is false when nothing is left.
func ClampBox(box, bounds image.Rectangle) (image.Rectangle, bool) {
	r := box.Canon().Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

// CropJPEG cuts box out of img and encodes it as JPEG.
func CropJPEG(img image.Image, box image.Rectangle) ([]byte, error) {
	r, ok := ClampBox(box, img.Bounds())
	if !ok {
		return nil, fmt.Errorf("crop box %v outside image %v", box, img.Bounds())
	}
	return EncodeJPEG(imaging.Crop(img, r))
}

// EncodeJPEG encodes img as a quality-90 JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// toJPEG returns data unchanged when it is already JPEG, otherwise re-encodes it.
func toJPEG(data []byte) ([]byte, error) {
	if len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return data, nil
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(img)
}
