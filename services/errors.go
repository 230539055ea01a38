package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/tutorhub/api/payments"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("an account with this email already exists")

	ErrBookingNotFound = errors.New("booking not found")
	ErrTutorNotFound   = errors.New("tutor not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrLessonNotFound  = errors.New("lesson not found")
	ErrRefundNotFound  = errors.New("refund not found")

	ErrInvalidTransition    = errors.New("invalid booking status transition")
	ErrBookingConflict      = errors.New("booking was modified concurrently")
	ErrRefundAlreadyClaimed = errors.New("booking has already been refunded")
	ErrRefundInProgress     = errors.New("refund is already being processed")
	ErrRefundNotRetryable   = errors.New("refund cannot be retried")
	ErrAlreadyReviewed      = errors.New("a review for this booking has already been submitted")
	ErrDisputeResolved      = errors.New("dispute has already been resolved")
	ErrTooEarly             = errors.New("action is not available before the session time")
	ErrBookingExpired       = errors.New("booking request has expired")

	ErrPaymentNotVerified = errors.New("payment could not be verified")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("%s: %s", e.Fields[0].Field, e.Fields[0].Message)
	}
	return fmt.Sprintf("%d invalid fields", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// FromValidator converts go-playground validator errors.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describeTag(fe)})
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "uuid":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrTutorNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrRefundNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBookingConflict) ||
		errors.Is(err, ErrRefundAlreadyClaimed) ||
		errors.Is(err, ErrRefundInProgress) ||
		errors.Is(err, ErrRefundNotRetryable) ||
		errors.Is(err, ErrAlreadyReviewed) ||
		errors.Is(err, ErrDisputeResolved) ||
		errors.Is(err, ErrTooEarly) ||
		errors.Is(err, ErrBookingExpired) ||
		errors.Is(err, ErrEmailTaken)
}

func IsGateway(err error) bool {
	var gwErr *payments.GatewayError
	return errors.As(err, &gwErr)
}
