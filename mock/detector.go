package mock

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/recognition"
)

// RefImage is an image that remembers the reference it was prepared from
type RefImage struct {
	image.Image
	Ref string
}

// Images is an ImagePreparer serving blank images of a fixed size.
// Refs listed in Errors fail with the given error.
type Images struct {
	Width, Height int
	Errors        map[string]error
}

func NewImages(width, height int) *Images {
	return &Images{Width: width, Height: height, Errors: make(map[string]error)}
}

func (m *Images) Prepare(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.Errors[ref]; ok {
		return nil, err
	}
	return &RefImage{Image: image.NewRGBA(image.Rect(0, 0, m.Width, m.Height)), Ref: ref}, nil
}

// Detector returns scripted faces per image reference. Refs without a
// script yield no faces.
type Detector struct {
	mu      sync.Mutex
	Faces   map[string][]recognition.FaceDetection
	Errors  map[string]error
	Calls   map[string]int
	Default []recognition.FaceDetection
	// Err, when set, fails every call
	Err error
}

func NewDetector() *Detector {
	return &Detector{
		Faces:  make(map[string][]recognition.FaceDetection),
		Errors: make(map[string]error),
		Calls:  make(map[string]int),
	}
}

func (d *Detector) Name() string { return "mock" }

func (d *Detector) Close() error { return nil }

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]recognition.FaceDetection, error) {
	ref := ""
	if r, ok := img.(*RefImage); ok {
		ref = r.Ref
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls[ref]++
	if d.Err != nil {
		return nil, recognition.NewDetectionError("mock", d.Err)
	}
	if err, ok := d.Errors[ref]; ok {
		return nil, recognition.NewDetectionError("mock", err)
	}
	faces, ok := d.Faces[ref]
	if !ok {
		faces = d.Default
	}
	out := make([]recognition.FaceDetection, len(faces))
	copy(out, faces)
	return out, nil
}

// CallCount reports how many times ref was detected
func (d *Detector) CallCount(ref string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Calls[ref]
}

// Face builds a scripted detection with a square box of the given side at (x, y)
func Face(index, x, y, side int, embedding ...float32) recognition.FaceDetection {
	return recognition.FaceDetection{
		FaceIndex: index,
		Box:       recognition.BoundingBox{Left: x, Top: y, Right: x + side, Bottom: y + side},
		Embedding: recognition.Embedding(embedding),
	}
}

// ErrUnreadable is a convenience error for decode failures
var ErrUnreadable = fmt.Errorf("%w: corrupt test image", media.ErrImageDecode)

var _ recognition.Detector = (*Detector)(nil)
