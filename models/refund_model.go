package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RefundKind string

const (
	RefundFull    RefundKind = "full"
	RefundPartial RefundKind = "partial"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundSucceeded  RefundStatus = "succeeded"
	RefundFailed     RefundStatus = "failed"
)

// Refund is the ledger entry for money returned on a booking. BookingID is
// unique, so a booking can be refunded at most once.
type Refund struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BookingID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"booking_id"`
	Reference       string       `gorm:"size:100;not null" json:"reference"`
	AmountMinor     int64        `gorm:"not null" json:"amount_minor"`
	Kind            RefundKind   `gorm:"size:20;not null" json:"kind"`
	Status          RefundStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Attempts        int          `gorm:"not null;default:0" json:"attempts"`
	LastError       *string      `gorm:"type:text" json:"last_error,omitempty"`
	Reason          string       `gorm:"type:text" json:"reason"`
	GatewayRefundID *string      `gorm:"size:100" json:"gateway_refund_id,omitempty"`
	ProcessedAt     *time.Time   `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Refund) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Retryable reports whether the gateway may be asked again for this entry.
func (r *Refund) Retryable(maxAttempts int) bool {
	return (r.Status == RefundPending || r.Status == RefundFailed) && r.Attempts < maxAttempts
}
