package models

// User is a registrant. Its reference embedding is absent until a qualifying
// selfie has been registered; the tagging pipeline only reads it.
type User struct {
	ID            uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string  `json:"name" gorm:"not null"`
	Email         string  `json:"email" gorm:"uniqueIndex;not null"`
	SelfiePath    *string `json:"selfie_image_path,omitempty" gorm:"column:selfie_image_path"`
	EmbeddingData []byte  `json:"-" gorm:"column:embedding"`
	CreatedAt     int64   `json:"created_at" gorm:"not null"`
	UpdatedAt     int64   `json:"updated_at" gorm:"not null"`

	Registrations []EventRegistration `json:"registrations,omitempty" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

// Embedding decodes the stored reference embedding, nil when absent.
func (u *User) Embedding() []float32 {
	return DecodeEmbedding(u.EmbeddingData)
}

func (u *User) SetEmbedding(embedding []float32) {
	u.EmbeddingData = EncodeEmbedding(embedding)
}

func (u *User) HasEmbedding() bool {
	return len(u.Embedding()) > 0
}
