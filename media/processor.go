package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"

	"github.com/disintegration/imaging"
)

// DetectorJpegQuality is used when a detector backend needs encoded bytes.
const DetectorJpegQuality = 95

// Normalizer turns raw image bytes into an upright, opaque RGB image whose
// longer side is at most MaxDimension.
type Normalizer struct {
	MaxDimension int
}

func NewNormalizer(maxDimension int) *Normalizer {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &Normalizer{MaxDimension: maxDimension}
}

// Normalize decodes data, corrects orientation, flattens to RGB and bounds the
// size. If the oriented decode fails it retries a plain decode of the same
// bytes without orientation correction.
func (n *Normalizer) Normalize(data []byte) (image.Image, error) {
	img, err := decodeOriented(data)
	if err != nil {
		log.Printf("processor: oriented decode failed, falling back to raw decode: %v", err)
		raw, _, rawErr := image.Decode(bytes.NewReader(data))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrImageDecode, rawErr)
		}
		img = raw
	}

	rgb := toRGB(img)
	return n.fit(rgb), nil
}

func decodeOriented(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	orientation, err := readOrientation(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read orientation: %w", err)
	}
	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if orientation != OrientationNormal {
		log.Printf("processor: applying EXIF orientation %d", orientation)
	}
	return applyOrientation(decoded, orientation), nil
}

// toRGB composites img over an opaque white background.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// fit downscales img so its longer side is at most MaxDimension.
func (n *Normalizer) fit(img *image.NRGBA) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= n.MaxDimension && h <= n.MaxDimension {
		return img
	}

	var newW, newH int
	if w > h {
		newW = n.MaxDimension
		newH = h * n.MaxDimension / w
	} else {
		newH = n.MaxDimension
		newW = w * n.MaxDimension / h
	}
	newW = max(1, newW)
	newH = max(1, newH)

	log.Printf("processor: resized image from %dx%d to %dx%d", w, h, newW, newH)
	return imaging.Resize(img, newW, newH, imaging.Lanczos)
}

// EncodeJPEG encodes a normalized image for backends that take encoded bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(DetectorJpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Pipeline loads and normalizes an image reference in one step.
type Pipeline struct {
	Loader     *Loader
	Normalizer *Normalizer
}

func NewPipeline(loader *Loader, normalizer *Normalizer) *Pipeline {
	return &Pipeline{Loader: loader, Normalizer: normalizer}
}

// Prepare fetches ref, normalizes it and removes any transient download
// before returning, whatever the outcome.
func (p *Pipeline) Prepare(ctx context.Context, ref string) (image.Image, error) {
	local, err := p.Loader.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer local.Close()

	data, err := os.ReadFile(local.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrImageUnavailable, local.Path, err)
	}
	return p.Normalizer.Normalize(data)
}
