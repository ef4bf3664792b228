package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrDetection marks a failure of the detection backend itself.
	ErrDetection = errors.New("face detection failed")
	// ErrNoFaceDetected is a legitimate zero result in contexts that need a face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrNoDominantFace means several faces were found but none stands out.
	ErrNoDominantFace = errors.New("no dominant face")
	// ErrDimensionMismatch means two embeddings cannot be compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DetectionError wraps a backend failure. It matches ErrDetection with errors.Is.
type DetectionError struct {
	Backend string
	Err     error
}

func NewDetectionError(backend string, err error) *DetectionError {
	return &DetectionError{Backend: backend, Err: err}
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detection(%s): %v", e.Backend, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

func (e *DetectionError) Is(target error) bool {
	return target == ErrDetection
}
