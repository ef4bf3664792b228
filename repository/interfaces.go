package repository

import (
	"context"

	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/recognition"
)

// UserRepositoryInterface defines identity operations. The tagging pipeline
// only reads embeddings; selfie registration is the only writer.
type UserRepositoryInterface interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	ListCandidates(ctx context.Context, eventID *uint) ([]recognition.Candidate, error)
	UpdateSelfie(userID uint, selfiePath string, embedding []float32) error
	ClearSelfie(userID uint) error
}

// EventRepositoryInterface defines event and registration operations
type EventRepositoryInterface interface {
	Create(event *models.Event) error
	GetByID(id uint) (*models.Event, error)
	GetByCode(code string) (*models.Event, error)
	IsRegistered(userID, eventID uint) (bool, error)
	Register(userID, eventID uint, role string) error
}

// PhotoRepositoryInterface defines photo and detected face operations
type PhotoRepositoryInterface interface {
	Create(photo *models.Photo) error
	GetByID(id uint) (*models.Photo, error)
	ListByEvent(eventID uint) ([]models.Photo, error)
	ListIDsByEvent(eventID uint, untaggedOnly bool) ([]uint, error)
	HasFaceRecord(photoID uint, faceIndex int) (bool, error)
	// CreateFaceRecord inserts the record unless one already exists for its
	// (photo, face index) key. It reports whether a row was written.
	CreateFaceRecord(face *models.PhotoFace) (bool, error)
	ListFacesByPhoto(photoID uint) ([]models.PhotoFace, error)
}
