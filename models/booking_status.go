package models

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
	StatusDisputed  BookingStatus = "disputed"
)

// bookingTransitions lists every legal edge of the lifecycle. States that
// are absent as keys are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusDisputed, StatusRejected},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCancelled, StatusCompleted, StatusDisputed:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s.Valid() && len(bookingTransitions[s]) == 0
}

func CanTransition(from, to BookingStatus) bool {
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
	PaymentPartialRefund PaymentStatus = "partial_refund"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:        {PaymentPaid},
	PaymentPaid:          {PaymentRefunded, PaymentPartialRefund},
	PaymentPartialRefund: {PaymentRefunded},
}

// CanTransitionPayment reports whether payment status may move from one
// value to the other. Payment status never moves backward.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (p PaymentStatus) Refundable() bool {
	return p == PaymentPaid
}

type BookingType string

const (
	BookingLive      BookingType = "live"
	BookingScheduled BookingType = "scheduled"
)

func (t BookingType) Valid() bool {
	return t == BookingLive || t == BookingScheduled
}
