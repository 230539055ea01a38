package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tutorhub/api/middleware"
	"github.com/tutorhub/api/services"
)

type CreateBookingRequest struct {
	Reference string                 `json:"reference" validate:"required,max=100"`
	Draft     *services.BookingDraft `json:"draft,omitempty"`
}

type AcceptRequest struct {
	MeetingLink string `json:"meeting_link" validate:"required,max=2000"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

func (h *Handler) Checkout(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req services.BookingDraft
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	res, err := h.Bookings.Checkout(c.UserContext(), id.UserID, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

// CreateBooking records the booking paid for by reference. Repeated calls
// return the existing booking with 200 instead of 201.
func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req CreateBookingRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	if req.Draft != nil {
		if err := validate.Struct(req.Draft); err != nil {
			return h.respondError(c, services.FromValidator(err))
		}
	}
	booking, created, err := h.Bookings.CreateFromPayment(c.UserContext(), id.UserID, req.Reference, req.Draft)
	if err != nil {
		return h.respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(booking)
}

// bookingAction resolves the caller and the :id param shared by every
// booking transition endpoint.
func (h *Handler) bookingAction(c *fiber.Ctx) (middleware.Identity, uuid.UUID, error) {
	id, err := h.caller(c)
	if err != nil {
		return id, uuid.Nil, err
	}
	bookingID, err := paramID(c, "id")
	return id, bookingID, err
}

func (h *Handler) AcceptBooking(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req AcceptRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.Bookings.Accept(c.UserContext(), id.UserID, bookingID, req.MeetingLink)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) RejectBooking(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req ReasonRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return h.respondError(c, err)
		}
	}
	res, err := h.Bookings.Reject(c.UserContext(), id.UserID, bookingID, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	res, err := h.Bookings.Cancel(c.UserContext(), id.UserID, bookingID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) CompleteBooking(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.Bookings.Complete(c.UserContext(), id.UserID, bookingID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) DisputeBooking(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req DisputeRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.Bookings.Dispute(c.UserContext(), id.UserID, bookingID, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(booking)
}

func (h *Handler) ReportNoShow(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	res, err := h.Bookings.ReportNoShow(c.UserContext(), id.UserID, bookingID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) SubmitReview(c *fiber.Ctx) error {
	id, bookingID, err := h.bookingAction(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req services.ReviewInput
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	review, err := h.Bookings.SubmitReview(c.UserContext(), id.UserID, bookingID, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}

func (h *Handler) Dashboard(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	d, err := h.Dashboards.Load(c.UserContext(), id.UserID, queryInt(c, "page", 1), queryInt(c, "page_size", 0))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(d)
}
