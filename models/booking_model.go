package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Booking struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"student_id"`
	TutorID          uuid.UUID     `gorm:"type:uuid;not null;index" json:"tutor_id"`
	Status           BookingStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	BookingType      BookingType   `gorm:"size:20;not null" json:"booking_type"`
	ScheduledTime    time.Time     `gorm:"not null" json:"scheduled_time"`
	PaymentStatus    PaymentStatus `gorm:"size:20;not null;default:'unpaid'" json:"payment_status"`
	PaymentIntentID  string        `gorm:"size:100;not null;uniqueIndex" json:"payment_intent_id"`
	Amount           float64       `gorm:"type:numeric(10,2);not null" json:"amount"`
	Currency         string        `gorm:"size:3;not null" json:"currency"`
	MeetingLink      *string       `gorm:"size:255" json:"meeting_link"`
	RejectionReason  *string       `gorm:"type:text" json:"rejection_reason"`
	DisputeReason    *string       `gorm:"type:text" json:"dispute_reason,omitempty"`
	GuestEmails      *string       `gorm:"type:text" json:"guest_emails"`
	TopicDescription string        `gorm:"type:text;not null" json:"topic_description"`
	Resolution       *string       `gorm:"size:50" json:"resolution,omitempty"`
	ReceiptURL       *string       `gorm:"type:text" json:"receipt_url,omitempty"`
	RemindedAt       *time.Time    `json:"reminded_at,omitempty"`
	Version          int           `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Version == 0 {
		b.Version = 1
	}
	return nil
}

// AmountMinor is the booking amount in cents.
func (b *Booking) AmountMinor() int64 {
	return int64(math.Round(b.Amount * 100))
}

// ExpiresAt is the instant after which an unanswered pending booking is
// cancelled and refunded. Live bookings age from creation, scheduled ones
// from their start time.
func (b *Booking) ExpiresAt(liveExpiry, scheduledExpiry time.Duration) time.Time {
	if b.BookingType == BookingLive {
		return b.CreatedAt.Add(liveExpiry)
	}
	return b.ScheduledTime.Add(scheduledExpiry)
}
