package repository

import (
	"fmt"
	"time"

	"github.com/camden-git/eventfaces/database"
	"github.com/camden-git/eventfaces/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhotoRepository handles database operations for photos and their detected faces
type PhotoRepository struct {
	DB *gorm.DB
}

func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

func (r *PhotoRepository) Create(photo *models.Photo) error {
	if photo.UploadedAt == 0 {
		photo.UploadedAt = time.Now().Unix()
	}
	if err := r.DB.Create(photo).Error; err != nil {
		return fmt.Errorf("failed to create photo %s: %w", photo.ImagePath, err)
	}
	return nil
}

func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.First(&photo, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %d: %w", id, err)
	}
	return &photo, nil
}

// ListByEvent returns the event's photos, newest first, with their faces preloaded
func (r *PhotoRepository) ListByEvent(eventID uint) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.
		Preload("Faces", func(db *gorm.DB) *gorm.DB { return db.Order("face_index ASC") }).
		Where("event_id = ?", eventID).
		Order("uploaded_at DESC, id DESC").
		Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for event %d: %w", eventID, err)
	}
	return photos, nil
}

func (r *PhotoRepository) ListIDsByEvent(eventID uint, untaggedOnly bool) ([]uint, error) {
	sqlStr, args, err := database.PhotosByEventQuery(eventID, untaggedOnly).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build photo id query: %w", err)
	}
	var ids []uint
	if err := r.DB.Raw(sqlStr, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list photo ids for event %d: %w", eventID, err)
	}
	return ids, nil
}

func (r *PhotoRepository) HasFaceRecord(photoID uint, faceIndex int) (bool, error) {
	var count int64
	err := r.DB.Model(&models.PhotoFace{}).
		Where("photo_id = ? AND face_index = ?", photoID, faceIndex).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check face %d of photo %d: %w", faceIndex, photoID, err)
	}
	return count > 0, nil
}

func (r *PhotoRepository) CreateFaceRecord(face *models.PhotoFace) (bool, error) {
	if face.CreatedAt == 0 {
		face.CreatedAt = time.Now().Unix()
	}
	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "photo_id"}, {Name: "face_index"}},
		DoNothing: true,
	}).Create(face)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create face %d for photo %d: %w", face.FaceIndex, face.PhotoID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *PhotoRepository) ListFacesByPhoto(photoID uint) ([]models.PhotoFace, error) {
	var faces []models.PhotoFace
	err := r.DB.Where("photo_id = ?", photoID).Order("face_index ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for photo %d: %w", photoID, err)
	}
	return faces, nil
}

var _ PhotoRepositoryInterface = (*PhotoRepository)(nil)
