package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

type CustomQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Tutor struct {
	ID                    uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Subject               string                              `gorm:"size:255;not null" json:"subject"`
	PricePerHour          float64                             `gorm:"type:numeric(10,2)" json:"price_per_hour"`
	Bio                   string                              `gorm:"type:text" json:"bio"`
	Languages             string                              `gorm:"size:255" json:"languages"`
	LinkedinLink          string                              `gorm:"size:255" json:"linkedin_link"`
	Rating                float64                             `gorm:"not null;default:5" json:"rating"`
	IsOnline              bool                                `gorm:"not null;default:false" json:"is_online"`
	VerificationStatus    VerificationStatus                  `gorm:"size:20;not null;default:'none'" json:"verification_status"`
	TranscriptURL         *string                             `gorm:"type:text" json:"transcript_url,omitempty"`
	PaymentSubaccountCode *string                             `gorm:"size:100" json:"-"`
	BankName              *string                             `gorm:"size:100" json:"bank_name,omitempty"`
	AccountNumber         *string                             `gorm:"size:50" json:"-"`
	PayoutsEnabled        bool                                `gorm:"not null;default:false" json:"payouts_enabled"`
	CustomQuestions       datatypes.JSONSlice[CustomQuestion] `json:"custom_questions"`

	User *Profile `gorm:"foreignKey:UserID" json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (t *Tutor) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
