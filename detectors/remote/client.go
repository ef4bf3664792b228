// Package remote delegates detection and embedding to an HTTP embedding
// server exposing POST /embed/face.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/recognition"
)

const (
	backendName    = "remote"
	faceEndpoint   = "/embed/face"
	defaultTimeout = 60 * time.Second
)

// faceDetection is one face as returned by the embedding server
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Client implements recognition.Detector against the embedding server
type Client struct {
	baseURL   string
	model     string
	upsamples int
	client    *http.Client
}

// NewClient builds a client. model and upsamples are forwarded as form fields.
func NewClient(baseURL, model string, upsamples int) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		upsamples: upsamples,
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) Name() string { return backendName }

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) Detect(ctx context.Context, img image.Image) ([]recognition.FaceDetection, error) {
	data, err := media.EncodeJPEG(img)
	if err != nil {
		return nil, recognition.NewDetectionError(backendName, err)
	}

	body, err := c.postImage(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, recognition.NewDetectionError(backendName, err)
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, recognition.NewDetectionError(backendName, fmt.Errorf("failed to parse response: %w", err))
	}

	faces := make([]recognition.FaceDetection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 || len(f.Embedding) == 0 {
			log.Printf("detection(remote): ignoring malformed face %d", f.FaceIndex)
			continue
		}
		faces = append(faces, recognition.FaceDetection{
			FaceIndex: len(faces),
			Box: recognition.BoundingBox{
				Left:   int(f.BBox[0]),
				Top:    int(f.BBox[1]),
				Right:  int(f.BBox[2]),
				Bottom: int(f.BBox[3]),
			},
			Embedding:     recognition.Embedding(f.Embedding),
			DetectorScore: float32(f.DetScore),
		})
	}
	log.Printf("detection(remote): server reported %d face(s), %d usable", resp.FacesCount, len(faces))
	return faces, nil
}

func (c *Client) postImage(ctx context.Context, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, fmt.Errorf("failed to write model field: %w", err)
		}
	}
	if c.upsamples > 0 {
		if err := writer.WriteField("upsample", strconv.Itoa(c.upsamples)); err != nil {
			return nil, fmt.Errorf("failed to write upsample field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+faceEndpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var _ recognition.Detector = (*Client)(nil)
