package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/repository"
	"github.com/camden-git/eventfaces/services"
	"github.com/camden-git/eventfaces/workers"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	maxPhotosPerRequest = 500
	defaultTagTimeout   = 60 * time.Second
)

// PhotoTagger runs the tagging pipeline synchronously
type PhotoTagger interface {
	ProcessPhotos(ctx context.Context, caller permissions.Caller, photoIDs []uint) (services.TaggingResult, error)
}

// JobQueuer accepts background tagging jobs
type JobQueuer interface {
	QueueJob(job workers.TagJob) (string, bool)
}

type PhotoFaceHandler struct {
	Tagger   PhotoTagger
	Queue    JobQueuer
	Events   repository.EventRepositoryInterface
	Photos   repository.PhotoRepositoryInterface
	Access   services.AccessChecker
	Notifier realtime.Notifier // announces queued jobs; may be nil
	// Timeout bounds a synchronous tagging request; defaultTagTimeout when zero
	Timeout time.Duration
}

type processFacesRequest struct {
	PhotoIDs []uint `json:"photo_ids"`
}

type processFacesResponse struct {
	services.TaggingResult
	Interrupted bool   `json:"interrupted,omitempty"`
	Message     string `json:"message"`
}

type queuedResponse struct {
	Queued bool   `json:"queued"`
	JobID  string `json:"job_id,omitempty"`
	Photos int    `json:"photos"`
}

type boundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type faceResponse struct {
	ID            uint        `json:"id"`
	PhotoID       uint        `json:"photo_id"`
	FaceIndex     int         `json:"face_index"`
	BoundingBox   boundingBox `json:"bounding_box"`
	Confidence    float64     `json:"confidence"`
	MatchedUserID *uint       `json:"matched_user_id"`
	CreatedAt     int64       `json:"created_at"`
}

type photoWithFacesResponse struct {
	ID               uint           `json:"id"`
	EventID          uint           `json:"event_id"`
	ImagePath        string         `json:"image_path"`
	UploadedBy       uint           `json:"uploaded_by"`
	UploadedAt       int64          `json:"uploaded_at"`
	OriginalFilename *string        `json:"original_filename"`
	FileSize         *int64         `json:"file_size"`
	MimeType         *string        `json:"mime_type"`
	Faces            []faceResponse `json:"faces"`
}

func (h *PhotoFaceHandler) decodePhotoIDs(w http.ResponseWriter, r *http.Request) ([]uint, bool) {
	var req processFacesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	if len(req.PhotoIDs) == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "photo_ids must not be empty")
		return nil, false
	}
	if len(req.PhotoIDs) > maxPhotosPerRequest {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("At most %d photo_ids per request", maxPhotosPerRequest))
		return nil, false
	}
	return req.PhotoIDs, true
}

// ProcessFaces tags the requested photos and returns the aggregate counts.
// Photos the caller may not tag, or that fail, are reported in the counts
// and never fail the request. When the request deadline or the client cuts
// the run short, the counts cover the photos finished so far.
func (h *PhotoFaceHandler) ProcessFaces(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}
	ids, ok := h.decodePhotoIDs(w, r)
	if !ok {
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultTagTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result, err := h.Tagger.ProcessPhotos(ctx, caller, ids)
	resp := processFacesResponse{
		TaggingResult: result,
		Message: fmt.Sprintf("Processed %d photos, detected %d faces, matched %d faces to users",
			result.ProcessedPhotos, result.TotalFacesDetected, result.TotalFacesMatched),
	}
	if err != nil {
		log.Printf("handlers: face processing for user %d interrupted: %v", caller.UserID, err)
		resp.Interrupted = true
		resp.Message = "Face processing was interrupted. " + resp.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProcessFacesAsync queues the photos for background tagging. Outcomes are
// pushed to the realtime notifiers.
func (h *PhotoFaceHandler) ProcessFacesAsync(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}
	ids, ok := h.decodePhotoIDs(w, r)
	if !ok {
		return
	}
	h.queue(w, caller, 0, ids)
}

// ProcessEventFaces queues every photo of an event, or with ?untagged=true
// only those without face records. Only callers allowed to retag the whole
// event may do so.
func (h *PhotoFaceHandler) ProcessEventFaces(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}
	untagged := false
	if v := r.URL.Query().Get("untagged"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "untagged must be a boolean")
			return
		}
		untagged = parsed
	}

	event, ok := h.authorizeEvent(w, r, caller, permissions.PermPhotosRun,
		"Access denied. Only the event owner can tag the whole event.")
	if !ok {
		return
	}

	ids, err := h.Photos.ListIDsByEvent(event.ID, untagged)
	if err != nil {
		log.Printf("handlers: failed to list photo ids of event %d: %v", event.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to list event photos")
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, queuedResponse{})
		return
	}
	h.queue(w, caller, event.ID, ids)
}

func (h *PhotoFaceHandler) queue(w http.ResponseWriter, caller permissions.Caller, eventID uint, ids []uint) {
	jobID, queued := h.Queue.QueueJob(workers.TagJob{Caller: caller, PhotoIDs: ids})
	if queued && h.Notifier != nil {
		h.Notifier.Broadcast(realtime.Event{
			Type:    realtime.EventTagJobQueued,
			JobID:   jobID,
			UserID:  caller.UserID,
			EventID: eventID,
			Extra:   map[string]interface{}{"photos": len(ids)},
		})
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Queued: queued, JobID: jobID, Photos: len(ids)})
}

// EventPhotosWithFaces lists the photos of an event together with their
// face records. The event is addressed by numeric id or event code.
func (h *PhotoFaceHandler) EventPhotosWithFaces(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, CodeUnauthenticated, "Authentication required")
		return
	}

	event, ok := h.authorizeEvent(w, r, caller, permissions.PermPhotosView,
		"Access denied. You must be the event owner or a registered guest.")
	if !ok {
		return
	}

	photos, err := h.Photos.ListByEvent(event.ID)
	if err != nil {
		log.Printf("handlers: failed to list photos of event %d: %v", event.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to list event photos")
		return
	}

	response := make([]photoWithFacesResponse, 0, len(photos))
	for _, p := range photos {
		response = append(response, toPhotoResponse(p))
	}
	writeJSON(w, http.StatusOK, response)
}

// authorizeEvent resolves the {eventRef} URL parameter and checks that the
// caller holds key within it, writing the error response when not.
func (h *PhotoFaceHandler) authorizeEvent(w http.ResponseWriter, r *http.Request, caller permissions.Caller, key, denied string) (*models.Event, bool) {
	event, err := h.lookupEvent(chi.URLParam(r, "eventRef"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Event not found")
		} else {
			log.Printf("handlers: failed to look up event: %v", err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to look up event")
		}
		return nil, false
	}

	allowed, err := h.Access.Can(caller, event, key)
	if err != nil {
		log.Printf("handlers: failed to check access to event %d: %v", event.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to check event access")
		return nil, false
	}
	if !allowed {
		WriteAPIError(w, http.StatusForbidden, CodeForbidden, denied)
		return nil, false
	}
	return event, true
}

func (h *PhotoFaceHandler) lookupEvent(ref string) (*models.Event, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, gorm.ErrRecordNotFound
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return h.Events.GetByID(uint(id))
	}
	return h.Events.GetByCode(ref)
}

func toPhotoResponse(p models.Photo) photoWithFacesResponse {
	faces := make([]faceResponse, 0, len(p.Faces))
	for _, f := range p.Faces {
		faces = append(faces, faceResponse{
			ID:            f.ID,
			PhotoID:       f.PhotoID,
			FaceIndex:     f.FaceIndex,
			BoundingBox:   boundingBox{X1: f.X1, Y1: f.Y1, X2: f.X2, Y2: f.Y2},
			Confidence:    f.Confidence,
			MatchedUserID: f.MatchedUserID,
			CreatedAt:     f.CreatedAt,
		})
	}
	return photoWithFacesResponse{
		ID:               p.ID,
		EventID:          p.EventID,
		ImagePath:        p.ImagePath,
		UploadedBy:       p.UploadedBy,
		UploadedAt:       p.UploadedAt,
		OriginalFilename: p.OriginalFilename,
		FileSize:         p.FileSize,
		MimeType:         p.MimeType,
		Faces:            faces,
	}
}
