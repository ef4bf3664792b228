// Package dnn detects faces with an OpenCV SSD network and embeds them with
// an ONNX recognition model. It requires OpenCV at build time.
package dnn

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/camden-git/eventfaces/recognition"
	"gocv.io/x/gocv"
)

const backendName = "dnn"

// Config locates the model files
type Config struct {
	DetectorConfigPath string // deploy.prototxt
	DetectorModelPath  string // res10_300x300_ssd caffemodel
	EmbedderModelPath  string
	EmbedderModelName  string // arcface or facenet
	ConfThreshold      float32
}

// Detector implements recognition.Detector. gocv networks are not safe for
// concurrent use, so Detect calls are serialized.
type Detector struct {
	mu       sync.Mutex
	net      gocv.Net
	embedder *Embedder

	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32
	IoUThreshold  float64
}

func New(cfg Config) (*Detector, error) {
	if cfg.DetectorConfigPath == "" || cfg.DetectorModelPath == "" {
		return nil, fmt.Errorf("detection(dnn): config or model path is empty")
	}

	net := gocv.ReadNet(cfg.DetectorModelPath, cfg.DetectorConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection(dnn): failed to load network model: config=%s, model=%s", cfg.DetectorConfigPath, cfg.DetectorModelPath)
	}
	log.Printf("detection(dnn): successfully loaded face detection model")
	preferCUDA(&net, "ssd")

	embedder, err := NewEmbedder(cfg.EmbedderModelPath, cfg.EmbedderModelName)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("detection(dnn): %w", err)
	}

	threshold := cfg.ConfThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	return &Detector{
		net:           net,
		embedder:      embedder,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: threshold,
		IoUThreshold:  recognition.DefaultIoUThreshold,
	}, nil
}

func (d *Detector) Name() string { return backendName }

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	d.embedder.Close()
	return nil
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]recognition.FaceDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, recognition.NewDetectionError(backendName, fmt.Errorf("failed to convert image: %w", err))
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, recognition.NewDetectionError(backendName, fmt.Errorf("empty image"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	boxes := recognition.SuppressOverlaps(d.detectBoxes(mat), d.IoUThreshold)

	faces := make([]recognition.FaceDetection, 0, len(boxes))
	for _, box := range boxes {
		region := mat.Region(box.Box.Rect())
		embedding := d.embedder.Extract(region)
		region.Close()
		if len(embedding) == 0 {
			log.Printf("detection(dnn): no embedding for face at %v, skipping", box.Box)
			continue
		}
		box.FaceIndex = len(faces)
		box.Embedding = embedding
		faces = append(faces, box)
	}

	log.Printf("detection(dnn): found %d face(s)", len(faces))
	return faces, nil
}

// detectBoxes runs the SSD network and returns boxes clamped to the image
func (d *Detector) detectBoxes(img gocv.Mat) []recognition.FaceDetection {
	imgHeight := float32(img.Rows())
	imgWidth := float32(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	detectionsMat := d.net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) != 4 {
		log.Printf("detection(dnn): unexpected output matrix dimensions: %v", sizes)
		return nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	// [1,1,N,7] -> [N,7]
	detections := detectionsMat.Reshape(1, numDetections)
	defer detections.Close()

	var results []recognition.FaceDetection
	for i := 0; i < numDetections; i++ {
		confidence := detections.GetFloatAt(i, 2)
		if confidence <= d.ConfThreshold {
			continue
		}

		xMin := max(0, detections.GetFloatAt(i, 3)*imgWidth)
		yMin := max(0, detections.GetFloatAt(i, 4)*imgHeight)
		xMax := min(imgWidth, detections.GetFloatAt(i, 5)*imgWidth)
		yMax := min(imgHeight, detections.GetFloatAt(i, 6)*imgHeight)
		if xMax <= xMin || yMax <= yMin {
			continue
		}

		results = append(results, recognition.FaceDetection{
			Box: recognition.BoundingBox{
				Left: int(xMin), Top: int(yMin), Right: int(xMax), Bottom: int(yMax),
			},
			DetectorScore: confidence,
		})
	}
	return results
}

var _ recognition.Detector = (*Detector)(nil)
