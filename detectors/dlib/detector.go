// Package dlib detects and embeds faces with dlib through go-face. The
// 128-d descriptors it produces are the reference format for registrant
// embeddings. Requires dlib at build time.
package dlib

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/recognition"
)

const backendName = "dlib"

// ErrClosed is returned by Detect after Close
var ErrClosed = errors.New("dlib detector closed")

const (
	ModelHOG = "hog"
	ModelCNN = "cnn"
)

// Detector implements recognition.Detector on a go-face Recognizer.
// Model selects the HOG or the CNN face locator.
type Detector struct {
	mu    sync.Mutex
	rec   *face.Recognizer
	Model string
}

// New loads the dlib model files from modelsDir
func New(modelsDir, model string) (*Detector, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("detection(dlib): failed to load models from %s: %w", modelsDir, err)
	}
	if model != ModelCNN {
		model = ModelHOG
	}
	log.Printf("detection(dlib): recognizer ready (%s)", model)
	return &Detector{rec: rec, Model: model}, nil
}

func (d *Detector) Name() string { return backendName }

// Close frees the recognizer. Further calls are no-ops.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]recognition.FaceDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := media.EncodeJPEG(img)
	if err != nil {
		return nil, recognition.NewDetectionError(backendName, err)
	}

	d.mu.Lock()
	if d.rec == nil {
		d.mu.Unlock()
		return nil, recognition.NewDetectionError(backendName, ErrClosed)
	}
	var found []face.Face
	if d.Model == ModelCNN {
		found, err = d.rec.RecognizeCNN(data)
	} else {
		found, err = d.rec.Recognize(data)
	}
	d.mu.Unlock()
	if err != nil {
		return nil, recognition.NewDetectionError(backendName, err)
	}

	faces := make([]recognition.FaceDetection, 0, len(found))
	for i, f := range found {
		descriptor := make(recognition.Embedding, len(f.Descriptor))
		copy(descriptor, f.Descriptor[:])
		faces = append(faces, recognition.FaceDetection{
			FaceIndex: i,
			Box:       recognition.BoxFromRect(f.Rectangle),
			Embedding: descriptor,
		})
	}
	log.Printf("detection(dlib): found %d face(s)", len(faces))
	return faces, nil
}

var _ recognition.Detector = (*Detector)(nil)
