package recognition

import (
	"context"
	"image"
)

// Detector finds faces in a normalized image and returns one embedding per
// face. The returned order is stable for a given input and is used as the
// face index. No faces is a nil slice with a nil error; backend failures are
// reported as *DetectionError.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]FaceDetection, error)
	Name() string
	Close() error
}
