package services

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/mock"
	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/recognition"
)

type regFixture struct {
	root     string
	users    *mock.UserRepository
	detector *mock.Detector
	svc      *RegistrationService
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()
	root := t.TempDir()
	store, err := media.NewLocalStorage(root, map[media.AssetType]string{media.AssetTypeSelfie: "selfies"})
	if err != nil {
		t.Fatal(err)
	}
	f := &regFixture{root: root, users: mock.NewUserRepository(), detector: mock.NewDetector()}
	f.users.Create(&models.User{ID: 5, Email: "guest@example.com"})
	f.svc = NewRegistrationService(f.users, store, mock.NewImages(1000, 1000), f.detector,
		recognition.NewQualityFilter(recognition.LenientPolicy()), recognition.DefaultSelfieDominance, nil)
	return f
}

func (f *regFixture) storedFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func TestRegisterSelfiePicksMostConfidentFace(t *testing.T) {
	f := newRegFixture(t)
	// 283px and 141px squares in a 1000x1000 image: confidence ~0.8 and ~0.2
	f.detector.Default = []recognition.FaceDetection{
		mock.Face(0, 0, 0, 141, 0.2, 0.2),
		mock.Face(1, 400, 400, 283, 0.8, 0.8),
	}

	user, err := f.svc.RegisterSelfie(context.Background(), 5, "me.JPG", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	emb := user.Embedding()
	if len(emb) != 2 || emb[0] != 0.8 {
		t.Errorf("registered embedding %v, want the 0.8 confidence face", emb)
	}

	stored, _ := f.users.GetByID(5)
	if stored.SelfiePath == nil || !strings.HasPrefix(*stored.SelfiePath, "selfies/5/") {
		t.Errorf("selfie path = %v", stored.SelfiePath)
	}
	if len(f.storedFiles(t)) != 1 {
		t.Errorf("expected exactly one stored selfie, got %v", f.storedFiles(t))
	}
}

func TestRegisterSelfieValidationCleansUp(t *testing.T) {
	tests := []struct {
		name    string
		faces   []recognition.FaceDetection
		file    string
		wantErr error
	}{
		{name: "no face", file: "me.jpg", wantErr: recognition.ErrNoFaceDetected},
		{
			name:    "no dominant face",
			file:    "group.png",
			faces:   []recognition.FaceDetection{mock.Face(0, 0, 0, 100, 1), mock.Face(1, 200, 0, 100, 2)},
			wantErr: recognition.ErrNoDominantFace,
		},
		{name: "unsupported type", file: "me.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegFixture(t)
			f.detector.Default = tt.faces

			_, err := f.svc.RegisterSelfie(context.Background(), 5, tt.file, strings.NewReader("img"))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), "must contain a clearly visible face") {
				t.Errorf("message %q is not actionable", err.Error())
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
			if files := f.storedFiles(t); len(files) != 0 {
				t.Errorf("rejected selfie left behind: %v", files)
			}
			if u, _ := f.users.GetByID(5); u.HasEmbedding() || u.SelfiePath != nil {
				t.Error("user modified by a rejected selfie")
			}
		})
	}
}

func TestRegisterSelfieDetectionErrorIsInternal(t *testing.T) {
	f := newRegFixture(t)
	f.detector.Err = errors.New("backend down")

	_, err := f.svc.RegisterSelfie(context.Background(), 5, "me.jpg", strings.NewReader("img"))
	var verr *ValidationError
	if err == nil || errors.As(err, &verr) {
		t.Fatalf("expected an internal error, got %v", err)
	}
	if !errors.Is(err, recognition.ErrDetection) {
		t.Errorf("expected a detection error, got %v", err)
	}
	if files := f.storedFiles(t); len(files) != 0 {
		t.Errorf("selfie left behind after detection failure: %v", files)
	}
}

func TestRegisterSelfieReplacesPreviousAndRemove(t *testing.T) {
	f := newRegFixture(t)
	f.detector.Default = []recognition.FaceDetection{mock.Face(0, 0, 0, 300, 0.3, 0.4)}

	first, err := f.svc.RegisterSelfie(context.Background(), 5, "a.jpg", strings.NewReader("one"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.RegisterSelfie(context.Background(), 5, "b.png", strings.NewReader("two"))
	if err != nil {
		t.Fatal(err)
	}
	if *first.SelfiePath == *second.SelfiePath {
		t.Fatal("expected a new selfie path")
	}
	files := f.storedFiles(t)
	if len(files) != 1 || !strings.HasSuffix(files[0], ".png") {
		t.Fatalf("previous selfie not replaced: %v", files)
	}

	if err := f.svc.RemoveSelfie(context.Background(), 5); err != nil {
		t.Fatalf("RemoveSelfie failed: %v", err)
	}
	if files := f.storedFiles(t); len(files) != 0 {
		t.Errorf("selfie file still present: %v", files)
	}
	u, _ := f.users.GetByID(5)
	if u.SelfiePath != nil || !u.HasEmbedding() {
		t.Errorf("after removal: path=%v embedding=%v", u.SelfiePath, u.Embedding())
	}
	if err := f.svc.RemoveSelfie(context.Background(), 5); !errors.Is(err, ErrNoSelfie) {
		t.Errorf("second removal = %v, want ErrNoSelfie", err)
	}
}
