package models

import "strings"

// Event groups photos. Its owner and registered guests may view and tag them.
type Event struct {
	ID          uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	EventCode   string  `json:"event_code" gorm:"size:6;uniqueIndex;not null"`
	Name        string  `json:"event_name" gorm:"not null"`
	EventDate   string  `json:"event_date"`
	Description *string `json:"description,omitempty"`
	OwnerID     uint    `json:"owner_id" gorm:"index;not null"`
	CreatedAt   int64   `json:"created_at" gorm:"not null"`
	UpdatedAt   int64   `json:"updated_at" gorm:"not null"`

	Owner *User `json:"-" gorm:"foreignKey:OwnerID"`
}

func (Event) TableName() string {
	return "events"
}

// NormalizeEventCode upper-cases and trims a user supplied event code.
func NormalizeEventCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EventRegistration links a user to an event. A user registers at most once per event.
type EventRegistration struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uint   `json:"user_id" gorm:"not null;uniqueIndex:idx_user_event"`
	EventID      uint   `json:"event_id" gorm:"not null;uniqueIndex:idx_user_event;index"`
	Role         string `json:"role" gorm:"not null;default:'guest'"`
	RegisteredAt int64  `json:"registered_at" gorm:"not null"`
}

func (EventRegistration) TableName() string {
	return "event_registrations"
}
