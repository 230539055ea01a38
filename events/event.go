package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	BookingCreated   EventType = "booking.created"
	BookingConfirmed EventType = "booking.confirmed"
	BookingRejected  EventType = "booking.rejected"
	BookingCancelled EventType = "booking.cancelled"
	BookingExpired   EventType = "booking.expired"
	BookingCompleted EventType = "booking.completed"
	BookingDisputed  EventType = "booking.disputed"
	DisputeResolved  EventType = "dispute.resolved"
	ReviewSubmitted  EventType = "review.submitted"
	RefundSucceeded  EventType = "refund.succeeded"
	RefundFailed     EventType = "refund.failed"
)

// BookingEvent is published after a booking or refund change commits.
type BookingEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	BookingID     uuid.UUID `json:"booking_id"`
	StudentID     uuid.UUID `json:"student_id"`
	TutorID       uuid.UUID `json:"tutor_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Message       string    `json:"message,omitempty"`
}

func NewBookingEvent(t EventType, bookingID, studentID, tutorID uuid.UUID, status, paymentStatus string) BookingEvent {
	return BookingEvent{
		ID:            uuid.NewString(),
		Type:          t,
		Timestamp:     time.Now().UTC(),
		BookingID:     bookingID,
		StudentID:     studentID,
		TutorID:       tutorID,
		Status:        status,
		PaymentStatus: paymentStatus,
	}
}
