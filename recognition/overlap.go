package recognition

import (
	"math"
	"sort"
)

// DefaultIoUThreshold is the overlap above which the weaker of two boxes is discarded
const DefaultIoUThreshold = 0.4

// IoU returns the intersection over union of two boxes
func IoU(a, b BoundingBox) float64 {
	x1 := max(a.Left, b.Left)
	y1 := max(a.Top, b.Top)
	x2 := min(a.Right, b.Right)
	y2 := min(a.Bottom, b.Bottom)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// SuppressOverlaps keeps the highest scoring detection of every group whose
// boxes overlap by more than threshold. Survivors keep detector score order.
func SuppressOverlaps(faces []FaceDetection, threshold float64) []FaceDetection {
	if len(faces) < 2 {
		return faces
	}

	sorted := make([]FaceDetection, len(faces))
	copy(sorted, faces)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DetectorScore > sorted[j].DetectorScore
	})

	kept := make([]FaceDetection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && IoU(sorted[i].Box, sorted[j].Box) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// L2Normalize scales an embedding to unit length. A zero vector is returned unchanged.
func L2Normalize(e Embedding) Embedding {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return e
	}
	norm := float32(math.Sqrt(sum))
	out := make(Embedding, len(e))
	for i, v := range e {
		out[i] = v / norm
	}
	return out
}
