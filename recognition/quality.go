package recognition

import (
	"fmt"
	"image"
	"log"
	"math"
	"sort"
)

// Default geometry bounds used when a predicate is switched on.
const (
	DefaultMinFaceSize    = 20
	DefaultMaxFaceSize    = 1000
	DefaultMinFaceRatio   = 0.001
	DefaultMaxFaceRatio   = 0.9
	DefaultMinAspectRatio = 0.7
	DefaultMaxAspectRatio = 1.4

	// DefaultSelfieDominance is the confidence a face must exceed to be
	// accepted from a selfie that contains several faces.
	DefaultSelfieDominance = 0.3
)

// Limit is one independently switchable quality predicate.
type Limit struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Value   float64 `yaml:"value" json:"value"`
}

func on(v float64) Limit  { return Limit{Enabled: true, Value: v} }
func off(v float64) Limit { return Limit{Enabled: false, Value: v} }

// QualityPolicy is the acceptance policy applied to detected face geometry.
// Sizes are in pixels and apply to both width and height.
type QualityPolicy struct {
	MinFaceSize    Limit `json:"min_face_size"`
	MaxFaceSize    Limit `json:"max_face_size"`
	MinAreaRatio   Limit `json:"min_area_ratio"`
	MaxAreaRatio   Limit `json:"max_area_ratio"`
	MinAspectRatio Limit `json:"min_aspect_ratio"`
	MaxAspectRatio Limit `json:"max_aspect_ratio"`
}

// LenientPolicy keeps every detected face. Event photography has many small,
// partial and angled faces, so this is the default.
func LenientPolicy() QualityPolicy {
	return QualityPolicy{
		MinFaceSize:    off(DefaultMinFaceSize),
		MaxFaceSize:    off(DefaultMaxFaceSize),
		MinAreaRatio:   off(DefaultMinFaceRatio),
		MaxAreaRatio:   off(DefaultMaxFaceRatio),
		MinAspectRatio: off(DefaultMinAspectRatio),
		MaxAspectRatio: off(DefaultMaxAspectRatio),
	}
}

// StrictPolicy enables every predicate with the given lower bounds.
func StrictPolicy(minFaceSize int, minFaceRatio float64) QualityPolicy {
	return QualityPolicy{
		MinFaceSize:    on(float64(minFaceSize)),
		MaxFaceSize:    on(DefaultMaxFaceSize),
		MinAreaRatio:   on(minFaceRatio),
		MaxAreaRatio:   on(DefaultMaxFaceRatio),
		MinAspectRatio: on(DefaultMinAspectRatio),
		MaxAspectRatio: on(DefaultMaxAspectRatio),
	}
}

// Confidence derives a score in [0,1] from the face-to-image area ratio.
func Confidence(areaRatio float64) float64 {
	c := math.Min(1.0, areaRatio*10)
	if c < 0 || math.IsNaN(c) {
		return 0
	}
	return c
}

// QualityFilter drops faces that fail an enabled predicate.
type QualityFilter struct {
	Policy QualityPolicy
}

func NewQualityFilter(policy QualityPolicy) *QualityFilter {
	return &QualityFilter{Policy: policy}
}

// Score fills AreaRatio and Confidence for a face within the given image bounds.
func Score(face FaceDetection, bounds image.Rectangle) FaceDetection {
	imageArea := bounds.Dx() * bounds.Dy()
	if imageArea > 0 {
		face.AreaRatio = float64(face.Box.Area()) / float64(imageArea)
	} else {
		face.AreaRatio = 0
	}
	face.Confidence = Confidence(face.AreaRatio)
	return face
}

// Check returns nil when the scored face passes, otherwise the rejection reason.
func (f *QualityFilter) Check(face FaceDetection) error {
	p := f.Policy
	w, h := float64(face.Box.Width()), float64(face.Box.Height())

	if p.MinFaceSize.Enabled && (w < p.MinFaceSize.Value || h < p.MinFaceSize.Value) {
		return fmt.Errorf("too small (%.0fx%.0f)", w, h)
	}
	if p.MaxFaceSize.Enabled && (w > p.MaxFaceSize.Value || h > p.MaxFaceSize.Value) {
		return fmt.Errorf("too large (%.0fx%.0f)", w, h)
	}
	if p.MinAreaRatio.Enabled && face.AreaRatio < p.MinAreaRatio.Value {
		return fmt.Errorf("area ratio %.4f below %.4f", face.AreaRatio, p.MinAreaRatio.Value)
	}
	if p.MaxAreaRatio.Enabled && face.AreaRatio > p.MaxAreaRatio.Value {
		return fmt.Errorf("area ratio %.4f above %.4f", face.AreaRatio, p.MaxAreaRatio.Value)
	}
	aspect := face.Box.AspectRatio()
	if p.MinAspectRatio.Enabled && aspect < p.MinAspectRatio.Value {
		return fmt.Errorf("aspect ratio %.2f below %.2f", aspect, p.MinAspectRatio.Value)
	}
	if p.MaxAspectRatio.Enabled && aspect > p.MaxAspectRatio.Value {
		return fmt.Errorf("aspect ratio %.2f above %.2f", aspect, p.MaxAspectRatio.Value)
	}
	return nil
}

// Apply scores every face and returns the ones that pass. FaceIndex values
// are preserved so a rejected face leaves a gap rather than shifting indexes.
func (f *QualityFilter) Apply(faces []FaceDetection, bounds image.Rectangle) []FaceDetection {
	kept := make([]FaceDetection, 0, len(faces))
	for _, face := range faces {
		scored := Score(face, bounds)
		if err := f.Check(scored); err != nil {
			log.Printf("quality: dropping face %d: %v", face.FaceIndex, err)
			continue
		}
		kept = append(kept, scored)
	}
	return kept
}

// BestFace returns the highest-confidence face, ties going to the lower index.
func BestFace(faces []FaceDetection) (FaceDetection, bool) {
	if len(faces) == 0 {
		return FaceDetection{}, false
	}
	ranked := make([]FaceDetection, len(faces))
	copy(ranked, faces)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].FaceIndex < ranked[j].FaceIndex
	})
	return ranked[0], true
}

// SelectSelfieFace picks the face to register from a single-face context.
// A lone face is always accepted; among several, the best one must have a
// confidence above dominance.
func SelectSelfieFace(faces []FaceDetection, dominance float64) (FaceDetection, error) {
	best, ok := BestFace(faces)
	if !ok {
		return FaceDetection{}, ErrNoFaceDetected
	}
	if len(faces) == 1 {
		return best, nil
	}
	if best.Confidence > dominance {
		return best, nil
	}
	return FaceDetection{}, fmt.Errorf("%w: %d faces, best confidence %.2f", ErrNoDominantFace, len(faces), best.Confidence)
}
