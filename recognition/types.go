package recognition

import "image"

// Embedding is a face descriptor. Two embeddings are comparable only when
// they have the same length.
type Embedding []float32

// Dim returns the dimensionality of the embedding.
func (e Embedding) Dim() int {
	return len(e)
}

// BoundingBox is a face region in image pixel coordinates.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// BoxFromRect converts an image.Rectangle to a BoundingBox.
func BoxFromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y}
}

func (b BoundingBox) Width() int  { return b.Right - b.Left }
func (b BoundingBox) Height() int { return b.Bottom - b.Top }

func (b BoundingBox) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// AspectRatio is width over height, 0 for degenerate boxes.
func (b BoundingBox) AspectRatio() float64 {
	if b.Height() <= 0 {
		return 0
	}
	return float64(b.Width()) / float64(b.Height())
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// FaceDetection is a transient per-image face result. Detectors fill
// FaceIndex, Box, Embedding and optionally DetectorScore; AreaRatio and
// Confidence are derived by the QualityFilter.
type FaceDetection struct {
	FaceIndex     int
	Box           BoundingBox
	Embedding     Embedding
	DetectorScore float32
	AreaRatio     float64
	Confidence    float64
}

// Candidate is an identity with a stored reference embedding.
type Candidate struct {
	IdentityID uint
	Embedding  Embedding
}

// Match pairs an identity with its distance to an unknown embedding.
type Match struct {
	IdentityID uint    `json:"identity_id"`
	Distance   float64 `json:"distance"`
}

// MatchResult holds accepted matches in ascending distance order.
type MatchResult []Match

// Best returns the accepted identity, if any.
func (r MatchResult) Best() (Match, bool) {
	if len(r) == 0 {
		return Match{}, false
	}
	return r[0], true
}
