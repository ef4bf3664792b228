package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/permissions"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/recognition"
	"github.com/camden-git/eventfaces/repository"
	"github.com/camden-git/eventfaces/workers"
	"gorm.io/gorm"
)

// ImagePreparer turns an image reference into a normalized image
type ImagePreparer interface {
	Prepare(ctx context.Context, ref string) (image.Image, error)
}

// AccessChecker decides whether a caller holds a permission within an event
type AccessChecker interface {
	Can(caller permissions.Caller, event *models.Event, key string) (bool, error)
}

// Photo outcome statuses
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// PhotoOutcome is the result of tagging one photo
type PhotoOutcome struct {
	PhotoID       uint   `json:"photo_id"`
	EventID       uint   `json:"event_id,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	FacesDetected int    `json:"faces_detected"`
	FacesMatched  int    `json:"faces_matched"`
	FacesExisting int    `json:"faces_existing"`
	Err           error  `json:"-"`
}

// TaggingResult aggregates a batch. Only newly created face records are
// counted, including those a failed photo created before it failed.
type TaggingResult struct {
	ProcessedPhotos    int `json:"processed_photos"`
	TotalFacesDetected int `json:"total_faces_detected"`
	TotalFacesMatched  int `json:"total_faces_matched"`
	SkippedPhotos      int `json:"skipped_photos"`
	FailedPhotos       int `json:"failed_photos"`
}

func (r *TaggingResult) add(o PhotoOutcome) {
	switch o.Status {
	case StatusProcessed:
		r.ProcessedPhotos++
		r.TotalFacesDetected += o.FacesDetected
		r.TotalFacesMatched += o.FacesMatched
	case StatusSkipped:
		r.SkippedPhotos++
	case StatusFailed:
		r.FailedPhotos++
		r.TotalFacesDetected += o.FacesDetected
		r.TotalFacesMatched += o.FacesMatched
	}
}

// TaggingService detects, matches and records the faces of event photos
type TaggingService struct {
	photos   repository.PhotoRepositoryInterface
	events   repository.EventRepositoryInterface
	access   AccessChecker
	images   ImagePreparer
	detector recognition.Detector
	filter   *recognition.QualityFilter
	scopes   *recognition.ScopeResolver
	searcher recognition.Searcher
	locks    *workers.KeyedMutex
	notifier realtime.Notifier
	workers  int
}

// TaggingDeps groups the collaborators of a TaggingService
type TaggingDeps struct {
	Photos   repository.PhotoRepositoryInterface
	Events   repository.EventRepositoryInterface
	Access   AccessChecker
	Images   ImagePreparer
	Detector recognition.Detector
	Filter   *recognition.QualityFilter
	Scopes   *recognition.ScopeResolver
	Searcher recognition.Searcher
	Notifier realtime.Notifier
	// Workers above 1 tags photos of a batch in parallel
	Workers int
}

func NewTaggingService(deps TaggingDeps) *TaggingService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = realtime.Discard{}
	}
	filter := deps.Filter
	if filter == nil {
		filter = recognition.NewQualityFilter(recognition.LenientPolicy())
	}
	return &TaggingService{
		photos:   deps.Photos,
		events:   deps.Events,
		access:   deps.Access,
		images:   deps.Images,
		detector: deps.Detector,
		filter:   filter,
		scopes:   deps.Scopes,
		searcher: deps.Searcher,
		locks:    workers.NewKeyedMutex(),
		notifier: notifier,
		workers:  deps.Workers,
	}
}

// ProcessPhotos tags every photo in photoIDs. Per-photo failures are
// contained and counted; the error is non-nil only when ctx was cancelled,
// in which case the result covers the photos finished so far.
func (s *TaggingService) ProcessPhotos(ctx context.Context, caller permissions.Caller, photoIDs []uint) (TaggingResult, error) {
	ids := UniqueIDs(photoIDs)
	var result TaggingResult

	if s.workers <= 1 || len(ids) < 2 {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				log.Printf("tagging: batch cancelled after %d photo(s): %v", result.ProcessedPhotos, err)
				return result, err
			}
			result.add(s.ProcessPhoto(ctx, caller, id))
		}
		return result, nil
	}

	var mu sync.Mutex
	err := workers.RunParallel(ctx, len(ids), s.workers, func(ctx context.Context, i int) {
		outcome := s.ProcessPhoto(ctx, caller, ids[i])
		mu.Lock()
		result.add(outcome)
		mu.Unlock()
	})
	if err != nil {
		log.Printf("tagging: batch cancelled after %d photo(s): %v", result.ProcessedPhotos, err)
	}
	return result, err
}

// ProcessJob runs a queued job and publishes its progress
func (s *TaggingService) ProcessJob(ctx context.Context, job workers.TagJob) {
	result, err := s.ProcessPhotos(ctx, job.Caller, job.PhotoIDs)
	event := realtime.Event{
		Type:   realtime.EventTagJobCompleted,
		JobID:  job.ID,
		UserID: job.Caller.UserID,
		Status: "completed",
		Extra: map[string]interface{}{
			"processed_photos":     result.ProcessedPhotos,
			"total_faces_detected": result.TotalFacesDetected,
			"total_faces_matched":  result.TotalFacesMatched,
			"skipped_photos":       result.SkippedPhotos,
			"failed_photos":        result.FailedPhotos,
		},
	}
	if err != nil {
		event.Status = "cancelled"
		event.Error = err.Error()
	}
	s.notifier.Broadcast(event)
}

// ProcessPhoto tags a single photo. Detection and persistence for one photo
// are serialized so concurrent batches cannot race on its face records.
func (s *TaggingService) ProcessPhoto(ctx context.Context, caller permissions.Caller, photoID uint) PhotoOutcome {
	outcome := s.processPhoto(ctx, caller, photoID)
	if outcome.Err != nil {
		log.Printf("tagging: photo %d %s: %v", photoID, outcome.Status, outcome.Err)
	}
	s.publish(outcome)
	return outcome
}

func (s *TaggingService) processPhoto(ctx context.Context, caller permissions.Caller, photoID uint) PhotoOutcome {
	outcome := PhotoOutcome{PhotoID: photoID}

	photo, err := s.photos.GetByID(photoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skipped(outcome, "photo not found")
		}
		return failed(outcome, err)
	}
	outcome.EventID = photo.EventID

	event, err := s.events.GetByID(photo.EventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skipped(outcome, "event not found")
		}
		return failed(outcome, err)
	}

	allowed, err := s.access.Can(caller, event, permissions.PermPhotosTag)
	if err != nil {
		return failed(outcome, err)
	}
	if !allowed {
		return skipped(outcome, "access denied")
	}

	unlock := s.locks.Lock(photoID)
	defer unlock()

	img, err := s.images.Prepare(ctx, photo.ImagePath)
	if err != nil {
		return failed(outcome, fmt.Errorf("failed to prepare image %s: %w", photo.ImagePath, err))
	}

	detected, err := s.detector.Detect(ctx, img)
	if err != nil {
		return failed(outcome, err)
	}
	faces := s.filter.Apply(detected, img.Bounds())

	var candidates []recognition.Candidate
	scoped := false
	for _, face := range faces {
		exists, err := s.photos.HasFaceRecord(photoID, face.FaceIndex)
		if err != nil {
			return failed(outcome, err)
		}
		if exists {
			outcome.FacesExisting++
			continue
		}

		if !scoped {
			eventID := event.ID
			candidates, err = s.scopes.Resolve(ctx, &eventID)
			if err != nil {
				return failed(outcome, err)
			}
			scoped = true
		}

		record := &models.PhotoFace{
			PhotoID:    photoID,
			FaceIndex:  face.FaceIndex,
			X1:         face.Box.Left,
			Y1:         face.Box.Top,
			X2:         face.Box.Right,
			Y2:         face.Box.Bottom,
			Confidence: face.Confidence,
		}
		record.SetEmbedding(face.Embedding)
		if best, ok := s.searcher.Search(face.Embedding, candidates).Best(); ok {
			id, distance := best.IdentityID, best.Distance
			record.MatchedUserID = &id
			record.MatchDistance = &distance
		}

		created, err := s.photos.CreateFaceRecord(record)
		if err != nil {
			return failed(outcome, err)
		}
		if !created {
			outcome.FacesExisting++
			continue
		}
		outcome.FacesDetected++
		if record.MatchedUserID != nil {
			outcome.FacesMatched++
		}
	}

	outcome.Status = StatusProcessed
	log.Printf("tagging: photo %d: %d detected, %d kept, %d new, %d matched, %d existing",
		photoID, len(detected), len(faces), outcome.FacesDetected, outcome.FacesMatched, outcome.FacesExisting)
	return outcome
}

func (s *TaggingService) publish(o PhotoOutcome) {
	event := realtime.Event{
		Type:    realtime.EventPhotoTagged,
		EventID: o.EventID,
		PhotoID: o.PhotoID,
		Status:  o.Status,
		Extra: map[string]interface{}{
			"faces_detected": o.FacesDetected,
			"faces_matched":  o.FacesMatched,
		},
	}
	if o.Status != StatusProcessed {
		event.Type = realtime.EventPhotoSkipped
		event.Extra["reason"] = o.Reason
	}
	if o.Err != nil {
		event.Error = o.Err.Error()
	}
	s.notifier.Broadcast(event)
}

func skipped(o PhotoOutcome, reason string) PhotoOutcome {
	o.Status = StatusSkipped
	o.Reason = reason
	return o
}

func failed(o PhotoOutcome, err error) PhotoOutcome {
	o.Status = StatusFailed
	o.Err = err
	switch {
	case errors.Is(err, recognition.ErrDetection):
		o.Reason = "detection failed"
	case errors.Is(err, media.ErrImageUnavailable):
		o.Reason = "image unavailable"
	case errors.Is(err, media.ErrImageDecode):
		o.Reason = "image unreadable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.Reason = "cancelled"
	default:
		o.Reason = "error"
	}
	return o
}

// UniqueIDs drops repeated ids, keeping first-seen order
func UniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
