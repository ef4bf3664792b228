package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/camden-git/eventfaces/database"
	"github.com/camden-git/eventfaces/models"
	"github.com/camden-git/eventfaces/recognition"
	"gorm.io/gorm"
)

// UserRepository handles database operations for registered identities
type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *models.User) error {
	now := time.Now().Unix()
	if user.CreatedAt == 0 {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if err := r.DB.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	return nil
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.DB.First(&user, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by ID %d: %w", id, err)
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.DB.Where("email = ?", email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user by email %s: %w", email, err)
	}
	return &user, nil
}

// ListCandidates returns every user with a reference embedding, restricted
// to the event's registrants when eventID is set.
func (r *UserRepository) ListCandidates(ctx context.Context, eventID *uint) ([]recognition.Candidate, error) {
	sqlStr, args, err := database.CandidateQuery(eventID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate query: %w", err)
	}

	rows, err := r.DB.WithContext(ctx).Raw(sqlStr, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []recognition.Candidate
	for rows.Next() {
		var id uint
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		embedding := models.DecodeEmbedding(blob)
		if len(embedding) == 0 {
			continue
		}
		candidates = append(candidates, recognition.Candidate{IdentityID: id, Embedding: embedding})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating candidate rows: %w", err)
	}
	return candidates, nil
}

// UpdateSelfie replaces the stored selfie path and reference embedding together
func (r *UserRepository) UpdateSelfie(userID uint, selfiePath string, embedding []float32) error {
	result := r.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"selfie_image_path": selfiePath,
		"embedding":         models.EncodeEmbedding(embedding),
		"updated_at":        time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update selfie for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearSelfie forgets the selfie path. The reference embedding is kept.
func (r *UserRepository) ClearSelfie(userID uint) error {
	result := r.DB.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"selfie_image_path": gorm.Expr("NULL"),
		"updated_at":        time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to clear selfie for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

var _ UserRepositoryInterface = (*UserRepository)(nil)
var _ recognition.CandidateSource = (*UserRepository)(nil)
