package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

type Profile struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email    string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Password string    `gorm:"not null" json:"-"`
	IsTutor  bool      `gorm:"not null;default:false" json:"is_tutor"`
	IsAdmin  bool      `gorm:"not null;default:false" json:"is_admin"`
	IsActive bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Profile) Role() string {
	switch {
	case p.IsAdmin:
		return RoleAdmin
	case p.IsTutor:
		return RoleTutor
	default:
		return RoleStudent
	}
}
