package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/mock"
	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/recognition"
	"github.com/camden-git/eventfaces/services"
	"github.com/camden-git/eventfaces/workers"
)

const (
	ownerID    = 1
	guestID    = 2
	outsiderID = 3
	eventID    = 7
)

type fakeQueue struct {
	jobs []workers.TagJob
}

func (q *fakeQueue) QueueJob(job workers.TagJob) (string, bool) {
	q.jobs = append(q.jobs, job)
	return "job-" + strconv.Itoa(len(q.jobs)), true
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *recordingNotifier) Broadcast(e realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type testServer struct {
	router   http.Handler
	users    *mock.UserRepository
	photos   *mock.PhotoRepository
	detector *mock.Detector
	queue    *fakeQueue
	notifier *recordingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	users := mock.NewUserRepository()
	events := mock.NewEventRepository()
	photos := mock.NewPhotoRepository()
	users.Registrations = events
	images := mock.NewImages(1000, 1000)
	detector := mock.NewDetector()

	events.Create(&models.Event{ID: eventID, EventCode: "WED001", Name: "Wedding", OwnerID: ownerID})
	events.Register(guestID, eventID, "")

	guest := &models.User{ID: guestID, Email: "guest@example.com"}
	guest.SetEmbedding([]float32{0.1, 0})
	users.Create(&models.User{ID: ownerID, Email: "owner@example.com"})
	users.Create(guest)
	users.Create(&models.User{ID: outsiderID, Email: "outsider@example.com"})

	store, err := media.NewLocalStorage(t.TempDir(), map[media.AssetType]string{media.AssetTypeSelfie: "selfies"})
	if err != nil {
		t.Fatal(err)
	}

	access := permissions.NewEventAccess(events)
	filter := recognition.NewQualityFilter(recognition.LenientPolicy())
	tagger := services.NewTaggingService(services.TaggingDeps{
		Photos:   photos,
		Events:   events,
		Access:   access,
		Images:   images,
		Detector: detector,
		Filter:   filter,
		Scopes:   recognition.NewScopeResolver(users),
		Searcher: recognition.NewMatcher(0.6, recognition.DefaultMaxMatches),
	})
	registrar := services.NewRegistrationService(users, store, images, detector, filter, recognition.DefaultSelfieDominance, nil)

	ts := &testServer{users: users, photos: photos, detector: detector, queue: &fakeQueue{}, notifier: &recordingNotifier{}}
	ts.router = NewRouter(RouterConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		PhotoFaces: &PhotoFaceHandler{
			Tagger:   tagger,
			Queue:    ts.queue,
			Events:   events,
			Photos:   photos,
			Access:   access,
			Notifier: ts.notifier,
		},
		Profile: &ProfileHandler{Registrar: registrar},
	})
	return ts
}

func (ts *testServer) addPhoto(t *testing.T, id uint, faces ...recognition.FaceDetection) {
	t.Helper()
	ref := "events/7/photo-" + strconv.Itoa(int(id)) + ".jpg"
	if err := ts.photos.Create(&models.Photo{ID: id, EventID: eventID, ImagePath: ref, UploadedBy: ownerID}); err != nil {
		t.Fatal(err)
	}
	ts.detector.Faces[ref] = faces
}

func (ts *testServer) do(req *http.Request, userID uint) *httptest.ResponseRecorder {
	if userID != 0 {
		req.Header.Set(UserIDHeader, strconv.Itoa(int(userID)))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || len(resp.Errors) != 1 {
		t.Fatalf("expected an error envelope, got %q (%v)", rec.Body.String(), err)
	}
	return resp.Errors[0]
}

func TestCallerIdentity(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not a number", header: "alice", wantStatus: http.StatusUnauthorized},
		{name: "zero id", header: "0", wantStatus: http.StatusUnauthorized},
		{name: "valid id", header: "1", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/photos/events/7/with-faces", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			rec := ts.do(req, 0)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if e := decodeAPIError(t, rec); e.Code != CodeUnauthenticated || e.Status != "401" {
					t.Errorf("unexpected error detail %+v", e)
				}
			}
		})
	}
}

func TestProcessFaces(t *testing.T) {
	ts := newTestServer(t)
	ts.addPhoto(t, 1, mock.Face(0, 100, 100, 200, 0.1, 0), mock.Face(1, 500, 100, 200, 5, 5))
	ts.addPhoto(t, 2)

	body := strings.NewReader(`{"photo_ids":[1,2,404]}`)
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/photos/process-faces", body), ownerID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ProcessedPhotos    int    `json:"processed_photos"`
		TotalFacesDetected int    `json:"total_faces_detected"`
		TotalFacesMatched  int    `json:"total_faces_matched"`
		SkippedPhotos      int    `json:"skipped_photos"`
		Message            string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ProcessedPhotos != 2 || resp.TotalFacesDetected != 2 || resp.TotalFacesMatched != 1 || resp.SkippedPhotos != 1 {
		t.Errorf("unexpected counts %+v", resp)
	}
	if resp.Message != "Processed 2 photos, detected 2 faces, matched 1 faces to users" {
		t.Errorf("message = %q", resp.Message)
	}

	faces, _ := ts.photos.ListFacesByPhoto(1)
	if len(faces) != 2 || faces[0].MatchedUserID == nil || *faces[0].MatchedUserID != guestID {
		t.Errorf("unexpected face records %+v", faces)
	}
}

func TestProcessFacesRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"photo_ids":`},
		{name: "empty ids", body: `{"photo_ids":[]}`},
		{name: "wrong type", body: `{"photo_ids":["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/photos/process-faces", strings.NewReader(tt.body))
			rec := ts.do(req, ownerID)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if e := decodeAPIError(t, rec); e.Code != CodeBadRequest {
				t.Errorf("code = %s", e.Code)
			}
		})
	}
}

func TestProcessFacesAsync(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/photos/process-faces/async", strings.NewReader(`{"photo_ids":[3,4]}`))
	rec := ts.do(req, guestID)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp queuedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Queued || resp.JobID != "job-1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(ts.queue.jobs) != 1 || ts.queue.jobs[0].Caller.UserID != guestID || len(ts.queue.jobs[0].PhotoIDs) != 2 {
		t.Errorf("unexpected queued jobs %+v", ts.queue.jobs)
	}
	if len(ts.notifier.events) != 1 || ts.notifier.events[0].Type != realtime.EventTagJobQueued {
		t.Errorf("expected a queued event, got %+v", ts.notifier.events)
	}
}

func TestEventPhotosWithFaces(t *testing.T) {
	ts := newTestServer(t)
	ts.addPhoto(t, 1, mock.Face(0, 100, 100, 200, 0.1, 0))
	ts.addPhoto(t, 2)
	ts.do(httptest.NewRequest(http.MethodPost, "/api/photos/process-faces", strings.NewReader(`{"photo_ids":[1,2]}`)), ownerID)

	tests := []struct {
		name       string
		ref        string
		userID     uint
		wantStatus int
	}{
		{name: "owner by id", ref: "7", userID: ownerID, wantStatus: http.StatusOK},
		{name: "guest by lowercase code", ref: "wed001", userID: guestID, wantStatus: http.StatusOK},
		{name: "outsider is forbidden", ref: "WED001", userID: outsiderID, wantStatus: http.StatusForbidden},
		{name: "unknown id", ref: "999", userID: ownerID, wantStatus: http.StatusNotFound},
		{name: "unknown code", ref: "NOPE00", userID: ownerID, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/photos/events/"+tt.ref+"/with-faces", nil)
			rec := ts.do(req, tt.userID)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var photos []photoWithFacesResponse
			if err := json.NewDecoder(rec.Body).Decode(&photos); err != nil {
				t.Fatal(err)
			}
			if len(photos) != 2 {
				t.Fatalf("got %d photos, want 2", len(photos))
			}
			for _, p := range photos {
				switch p.ID {
				case 1:
					if len(p.Faces) != 1 || p.Faces[0].BoundingBox != (boundingBox{X1: 100, Y1: 100, X2: 300, Y2: 300}) {
						t.Errorf("unexpected faces for photo 1: %+v", p.Faces)
					}
					if p.Faces[0].MatchedUserID == nil || *p.Faces[0].MatchedUserID != guestID {
						t.Errorf("photo 1 face should match the guest")
					}
				case 2:
					if p.Faces == nil || len(p.Faces) != 0 {
						t.Errorf("photo 2 should list an empty faces array, got %+v", p.Faces)
					}
				}
			}
		})
	}
}

func multipartSelfie(t *testing.T, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("not really decoded by the mock preparer"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/photos/profile", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSelfieUploadAndDelete(t *testing.T) {
	ts := newTestServer(t)

	// no face in the upload
	rec := ts.do(multipartSelfie(t, "me.jpg"), outsiderID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
	}
	if e := decodeAPIError(t, rec); e.Code != CodeInvalidSelfie || !strings.Contains(e.Detail, "must contain a clearly visible face") {
		t.Errorf("unexpected error detail %+v", e)
	}

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/photos/profile", nil), outsiderID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete without selfie: status = %d, want 404", rec.Code)
	}

	ts.detector.Default = []recognition.FaceDetection{mock.Face(0, 300, 300, 400, 0.3, 0.3)}
	rec = ts.do(multipartSelfie(t, "me.jpg"), outsiderID)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status = %d (%s)", rec.Code, rec.Body.String())
	}
	user, _ := ts.users.GetByID(outsiderID)
	if !user.HasEmbedding() || user.SelfiePath == nil {
		t.Fatalf("selfie not registered: %+v", user)
	}

	rec = ts.do(httptest.NewRequest(http.MethodDelete, "/api/photos/profile", nil), outsiderID)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d (%s)", rec.Code, rec.Body.String())
	}
	user, _ = ts.users.GetByID(outsiderID)
	if user.SelfiePath != nil && *user.SelfiePath != "" {
		t.Errorf("selfie path not cleared: %v", *user.SelfiePath)
	}
}

func TestSelfieUploadRequiresFile(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/photos/profile", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := ts.do(req, guestID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type stallingTagger struct {
	partial services.TaggingResult
}

func (s stallingTagger) ProcessPhotos(ctx context.Context, caller permissions.Caller, photoIDs []uint) (services.TaggingResult, error) {
	<-ctx.Done()
	return s.partial, ctx.Err()
}

func TestProcessFacesReportsPartialCountsOnTimeout(t *testing.T) {
	partial := services.TaggingResult{ProcessedPhotos: 2, TotalFacesDetected: 3, TotalFacesMatched: 1}
	router := NewRouter(RouterConfig{
		PhotoFaces: &PhotoFaceHandler{Tagger: stallingTagger{partial: partial}, Timeout: 20 * time.Millisecond},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/photos/process-faces", strings.NewReader(`{"photo_ids":[1,2,3]}`))
	req.Header.Set(UserIDHeader, strconv.Itoa(ownerID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp processFacesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Interrupted || resp.TaggingResult != partial {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "Face processing was interrupted. Processed 2 photos") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestProcessEventFaces(t *testing.T) {
	ts := newTestServer(t)
	ts.addPhoto(t, 1, mock.Face(0, 100, 100, 200, 0.1, 0))
	ts.addPhoto(t, 2)
	ts.addPhoto(t, 3)
	ts.do(httptest.NewRequest(http.MethodPost, "/api/photos/process-faces", strings.NewReader(`{"photo_ids":[1]}`)), ownerID)

	tests := []struct {
		name       string
		path       string
		userID     uint
		wantStatus int
		wantPhotos []uint
	}{
		{name: "owner queues every photo", path: "/api/photos/events/7/process-faces", userID: ownerID, wantStatus: http.StatusAccepted, wantPhotos: []uint{1, 2, 3}},
		{name: "owner queues untagged photos", path: "/api/photos/events/WED001/process-faces?untagged=true", userID: ownerID, wantStatus: http.StatusAccepted, wantPhotos: []uint{2, 3}},
		{name: "guest may not retag the event", path: "/api/photos/events/7/process-faces", userID: guestID, wantStatus: http.StatusForbidden},
		{name: "outsider is forbidden", path: "/api/photos/events/7/process-faces", userID: outsiderID, wantStatus: http.StatusForbidden},
		{name: "unknown event", path: "/api/photos/events/999/process-faces", userID: ownerID, wantStatus: http.StatusNotFound},
		{name: "bad untagged flag", path: "/api/photos/events/7/process-faces?untagged=maybe", userID: ownerID, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queued := len(ts.queue.jobs)
			rec := ts.do(httptest.NewRequest(http.MethodPost, tt.path, nil), tt.userID)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				if len(ts.queue.jobs) != queued {
					t.Error("a rejected request queued a job")
				}
				return
			}

			var resp queuedResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			job := ts.queue.jobs[len(ts.queue.jobs)-1]
			if !resp.Queued || resp.Photos != len(tt.wantPhotos) || !reflect.DeepEqual(job.PhotoIDs, tt.wantPhotos) {
				t.Errorf("response %+v queued %v, want %v", resp, job.PhotoIDs, tt.wantPhotos)
			}
		})
	}
}

func TestListPermissions(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/permissions", nil), 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var groups []permissions.PermissionGroupDefinition
	if err := json.NewDecoder(rec.Body).Decode(&groups); err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, g := range groups {
		for _, p := range g.Permissions {
			keys = append(keys, p.Key)
		}
	}
	want := []string{permissions.PermPhotosView, permissions.PermPhotosTag, permissions.PermPhotosRun}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}
