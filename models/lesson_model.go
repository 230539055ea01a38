package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lesson is a recorded video a tutor publishes on their profile. TutorID
// is the tutor's profile (user) id.
type Lesson struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TutorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"tutor_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	VideoURL  string    `gorm:"type:text;not null" json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
