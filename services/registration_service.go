package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/camden-git/eventfaces/media"
	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/realtime"
	"github.com/camden-git/eventfaces/recognition"
	"github.com/camden-git/eventfaces/repository"
)

// ErrNoSelfie is returned when removing a selfie that was never registered
var ErrNoSelfie = errors.New("no selfie registered")

// ValidationError is a user-correctable selfie problem
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "selfie must contain a clearly visible face: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RegistrationService validates selfies and stores the reference embedding
type RegistrationService struct {
	users     repository.UserRepositoryInterface
	store     media.Store
	images    ImagePreparer
	detector  recognition.Detector
	filter    *recognition.QualityFilter
	dominance float64
	notifier  realtime.Notifier
}

func NewRegistrationService(
	users repository.UserRepositoryInterface,
	store media.Store,
	images ImagePreparer,
	detector recognition.Detector,
	filter *recognition.QualityFilter,
	dominance float64,
	notifier realtime.Notifier,
) *RegistrationService {
	if filter == nil {
		filter = recognition.NewQualityFilter(recognition.LenientPolicy())
	}
	if notifier == nil {
		notifier = realtime.Discard{}
	}
	return &RegistrationService{
		users:     users,
		store:     store,
		images:    images,
		detector:  detector,
		filter:    filter,
		dominance: dominance,
		notifier:  notifier,
	}
}

// RegisterSelfie saves the uploaded image, extracts the face embedding and
// stores both on the user. The saved file is removed on any failure; on
// success the previous selfie file is removed.
func (s *RegistrationService) RegisterSelfie(ctx context.Context, userID uint, filename string, data io.Reader) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if !media.IsRasterImage(filename) {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(filename))}
	}

	relPath, err := s.store.Save(media.AssetTypeSelfie, fmt.Sprint(userID), strings.ToLower(filepath.Ext(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("failed to save selfie: %w", err)
	}

	embedding, err := s.extract(ctx, relPath)
	if err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			log.Printf("registration: failed to clean up rejected selfie %s: %v", relPath, delErr)
		}
		return nil, err
	}

	if err := s.users.UpdateSelfie(userID, relPath, embedding); err != nil {
		if delErr := s.store.Delete(relPath); delErr != nil {
			log.Printf("registration: failed to clean up selfie %s: %v", relPath, delErr)
		}
		return nil, fmt.Errorf("failed to store selfie for user %d: %w", userID, err)
	}

	if user.SelfiePath != nil && *user.SelfiePath != "" && *user.SelfiePath != relPath {
		if err := s.store.Delete(*user.SelfiePath); err != nil {
			log.Printf("registration: failed to delete previous selfie %s: %v", *user.SelfiePath, err)
		}
	}

	user.SelfiePath = &relPath
	user.SetEmbedding(embedding)
	log.Printf("registration: user %d registered a %d-d reference embedding", userID, len(embedding))
	s.notifier.Broadcast(realtime.Event{Type: realtime.EventSelfieUpdated, UserID: userID, Status: "registered"})
	return user, nil
}

func (s *RegistrationService) extract(ctx context.Context, relPath string) (recognition.Embedding, error) {
	fullPath, err := s.store.GetFullPath(relPath)
	if err != nil {
		return nil, err
	}

	img, err := s.images.Prepare(ctx, fullPath)
	if err != nil {
		if errors.Is(err, media.ErrImageDecode) {
			return nil, &ValidationError{Reason: "the image could not be read", Err: err}
		}
		return nil, fmt.Errorf("failed to load selfie: %w", err)
	}

	detected, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to detect faces in selfie: %w", err)
	}

	face, err := recognition.SelectSelfieFace(s.filter.Apply(detected, img.Bounds()), s.dominance)
	switch {
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return nil, &ValidationError{Reason: "no face was found", Err: err}
	case errors.Is(err, recognition.ErrNoDominantFace):
		return nil, &ValidationError{Reason: "several faces were found and none stands out", Err: err}
	case err != nil:
		return nil, err
	}
	return face.Embedding, nil
}

// RemoveSelfie deletes the selfie file and forgets its path. The reference
// embedding stays so existing matches keep working.
func (s *RegistrationService) RemoveSelfie(ctx context.Context, userID uint) error {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return err
	}
	if user.SelfiePath == nil || *user.SelfiePath == "" {
		return ErrNoSelfie
	}

	if err := s.store.Delete(*user.SelfiePath); err != nil {
		return fmt.Errorf("failed to delete selfie file: %w", err)
	}
	if err := s.users.ClearSelfie(userID); err != nil {
		return err
	}
	s.notifier.Broadcast(realtime.Event{Type: realtime.EventSelfieUpdated, UserID: userID, Status: "removed"})
	return nil
}
