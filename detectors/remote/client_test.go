package remote

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/camden-git/eventfaces/recognition"
)

func TestClientDetect(t *testing.T) {
	var gotModel, gotUpsample string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != faceEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotUpsample = r.FormValue("upsample")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces_count":2,"model":"hog","faces":[
			{"face_index":0,"dim":3,"embedding":[0.1,0.2,0.3],"bbox":[10,20,50,70],"det_score":0.98},
			{"face_index":1,"dim":0,"embedding":[],"bbox":[1,2,3,4],"det_score":0.1}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "hog", 2)
	faces, err := client.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "hog" || gotUpsample != "2" {
		t.Errorf("form fields = %q, %q", gotModel, gotUpsample)
	}
	if len(faces) != 1 {
		t.Fatalf("got %d faces, want 1", len(faces))
	}
	want := recognition.BoundingBox{Left: 10, Top: 20, Right: 50, Bottom: 70}
	if faces[0].Box != want || faces[0].Embedding.Dim() != 3 || faces[0].FaceIndex != 0 {
		t.Errorf("unexpected face %+v", faces[0])
	}
}

func TestClientDetectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", 0).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if !errors.Is(err, recognition.ErrDetection) {
		t.Fatalf("expected a detection error, got %v", err)
	}
}
