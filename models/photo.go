package models

// Photo is an uploaded event photo. ImagePath is a path relative to the
// upload directory, an absolute local path, or an http(s) object URL.
type Photo struct {
	ID               uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID          uint    `json:"event_id" gorm:"not null;index"`
	ImagePath        string  `json:"image_path" gorm:"not null"`
	UploadedBy       uint    `json:"uploaded_by" gorm:"not null"`
	UploadedAt       int64   `json:"uploaded_at" gorm:"not null"`
	OriginalFilename *string `json:"original_filename,omitempty"`
	FileSize         *int64  `json:"file_size,omitempty"`
	MimeType         *string `json:"mime_type,omitempty"`

	Faces []PhotoFace `json:"faces,omitempty" gorm:"foreignKey:PhotoID"`
}

func (Photo) TableName() string {
	return "photos"
}

// PhotoFace is a detected face persisted by the tagging pipeline.
// (PhotoID, FaceIndex) is unique and a record is never updated once written.
type PhotoFace struct {
	ID            uint     `json:"id" gorm:"primaryKey;autoIncrement"`
	PhotoID       uint     `json:"photo_id" gorm:"not null;uniqueIndex:idx_photo_face_key"`
	FaceIndex     int      `json:"face_index" gorm:"not null;uniqueIndex:idx_photo_face_key"`
	EmbeddingData []byte   `json:"-" gorm:"column:embedding;not null"`
	X1            int      `json:"x1" gorm:"not null"`
	Y1            int      `json:"y1" gorm:"not null"`
	X2            int      `json:"x2" gorm:"not null"`
	Y2            int      `json:"y2" gorm:"not null"`
	Confidence    float64  `json:"confidence"`
	MatchedUserID *uint    `json:"matched_user_id" gorm:"index"`
	MatchDistance *float64 `json:"match_distance,omitempty"`
	CreatedAt     int64    `json:"created_at" gorm:"not null"`

	MatchedUser *User `json:"-" gorm:"foreignKey:MatchedUserID"`
}

func (PhotoFace) TableName() string {
	return "photo_faces"
}

func (pf *PhotoFace) Embedding() []float32 {
	return DecodeEmbedding(pf.EmbeddingData)
}

func (pf *PhotoFace) SetEmbedding(embedding []float32) {
	pf.EmbeddingData = EncodeEmbedding(embedding)
}
