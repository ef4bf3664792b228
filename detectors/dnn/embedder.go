package dnn

import (
	"fmt"
	"image"
	"log"
	"os"

	"github.com/camden-git/eventfaces/recognition"
	"gocv.io/x/gocv"
)

// Embedder runs a face recognition network (ArcFace, FaceNet) on face crops
type Embedder struct {
	Net       gocv.Net
	ModelName string

	InputSizeW int
	InputSizeH int
}

// NewEmbedder loads the recognition model at modelPath
func NewEmbedder(modelPath, modelName string) (*Embedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("recognition model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("recognition model %s: %w", modelPath, err)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("ReadNet returned an empty network for %s", modelPath)
	}
	log.Printf("detection(dnn): loaded %s recognition model", modelName)
	preferCUDA(&net, modelName)

	e := &Embedder{Net: net, ModelName: modelName, InputSizeW: 112, InputSizeH: 112}
	if modelName == "facenet" {
		e.InputSizeW, e.InputSizeH = 160, 160
	}
	return e, nil
}

func (e *Embedder) Close() {
	if e != nil {
		e.Net.Close()
		log.Printf("detection(dnn): closed %s network", e.ModelName)
	}
}

// Extract returns the unit length embedding of a BGR face crop, nil when the
// network produced nothing.
func (e *Embedder) Extract(faceRegion gocv.Mat) recognition.Embedding {
	if faceRegion.Empty() {
		return nil
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(faceRegion, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(e.InputSizeW, e.InputSizeH), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(e.InputSizeW, e.InputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.Net.SetInput(blob, "")
	output := e.Net.Forward("")
	defer output.Close()

	if len(output.Size()) == 0 {
		return nil
	}
	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make(recognition.Embedding, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return recognition.L2Normalize(embedding)
}

func preferCUDA(net *gocv.Net, name string) {
	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Printf("detection(dnn): set backend/target to CUDA for %s", name)
		return
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	log.Printf("detection(dnn): CUDA unavailable for %s, using CPU", name)
}
