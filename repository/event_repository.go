package repository

import (
	"fmt"
	"time"

	"github.com/camden-git/eventfaces/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultRegistrationRole = "guest"

// EventRepository handles database operations for events and registrations
type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) Create(event *models.Event) error {
	now := time.Now().Unix()
	if event.CreatedAt == 0 {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.EventCode = models.NormalizeEventCode(event.EventCode)

	if err := r.DB.Create(event).Error; err != nil {
		return fmt.Errorf("failed to create event %s: %w", event.EventCode, err)
	}
	return nil
}

func (r *EventRepository) GetByID(id uint) (*models.Event, error) {
	var event models.Event
	err := r.DB.First(&event, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get event by ID %d: %w", id, err)
	}
	return &event, nil
}

// GetByCode looks an event up by its share code, case-insensitively
func (r *EventRepository) GetByCode(code string) (*models.Event, error) {
	var event models.Event
	err := r.DB.Where("event_code = ?", models.NormalizeEventCode(code)).First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get event by code %s: %w", code, err)
	}
	return &event, nil
}

func (r *EventRepository) IsRegistered(userID, eventID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&models.EventRegistration{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check registration of user %d for event %d: %w", userID, eventID, err)
	}
	return count > 0, nil
}

// Register adds the user to the event. Registering twice is a no-op.
func (r *EventRepository) Register(userID, eventID uint, role string) error {
	if role == "" {
		role = DefaultRegistrationRole
	}
	reg := models.EventRegistration{
		UserID:       userID,
		EventID:      eventID,
		Role:         role,
		RegisteredAt: time.Now().Unix(),
	}
	err := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg).Error
	if err != nil {
		return fmt.Errorf("failed to register user %d for event %d: %w", userID, eventID, err)
	}
	return nil
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
