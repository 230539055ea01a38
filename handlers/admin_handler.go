package handlers

import (
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tutorhub/api/models"
	"github.com/tutorhub/api/reports"
	"github.com/tutorhub/api/services"
)

func (h *Handler) PendingTutors(c *fiber.Ctx) error {
	tutors, err := h.Tutors.PendingVerifications(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(tutors)
}

type VerificationRequest struct {
	Status models.VerificationStatus `json:"status" validate:"required,oneof=verified rejected"`
}

func (h *Handler) SetTutorVerification(c *fiber.Ctx) error {
	tutorID, err := paramID(c, "tutorId")
	if err != nil {
		return h.respondError(c, err)
	}
	var req VerificationRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	tutor, err := h.Tutors.SetVerification(c.UserContext(), tutorID, req.Status)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(tutor)
}

// ResolveDisputeRequest carries the refund in major currency units. Zero
// releases the funds to the tutor.
type ResolveDisputeRequest struct {
	RefundAmount float64 `json:"refund_amount" validate:"min=0"`
}

func (h *Handler) ResolveDispute(c *fiber.Ctx) error {
	bookingID, err := paramID(c, "id")
	if err != nil {
		return h.respondError(c, err)
	}
	var req ResolveDisputeRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	res, err := h.Bookings.ResolveDispute(c.UserContext(), bookingID, int64(math.Round(req.RefundAmount*100)))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) ListRefunds(c *fiber.Ctx) error {
	status := models.RefundStatus(c.Query("status"))
	switch status {
	case "", models.RefundPending, models.RefundProcessing, models.RefundSucceeded, models.RefundFailed:
	default:
		return h.respondError(c, services.NewValidationError("status", "must be one of pending processing succeeded failed"))
	}
	refunds, err := h.Refunds.List(c.UserContext(), status)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(refunds)
}

func (h *Handler) RetryRefund(c *fiber.Ctx) error {
	refundID, err := paramID(c, "id")
	if err != nil {
		return h.respondError(c, err)
	}
	refund, err := h.Refunds.Retry(c.UserContext(), refundID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(refund)
}

// BookingsReport streams an Excel workbook of bookings created in
// [from, to). Both bounds are optional dates in YYYY-MM-DD form.
func (h *Handler) BookingsReport(c *fiber.Ctx) error {
	filter := services.BookingFilter{Status: models.BookingStatus(c.Query("status"))}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return h.respondError(c, services.NewValidationError(q.name, "must be a date like 2006-01-02"))
		}
		*q.dst = &t
	}

	ctx := c.UserContext()
	bookings, err := h.Bookings.List(ctx, filter)
	if err != nil {
		return h.respondError(c, err)
	}
	refunds, err := h.Refunds.List(ctx, "")
	if err != nil {
		return h.respondError(c, err)
	}
	byBooking := make(map[uuid.UUID]models.Refund, len(refunds))
	for _, r := range refunds {
		byBooking[r.BookingID] = r
	}

	data, err := reports.BookingsXLSX(bookings, byBooking)
	if err != nil {
		return h.respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="bookings.xlsx"`)
	return c.Send(data)
}
