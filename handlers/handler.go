package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorhub/api/middleware"
	"github.com/tutorhub/api/services"
	ws "github.com/tutorhub/api/websocket"
	"gorm.io/gorm"
)

var validate = validator.New()

// Handler holds everything the HTTP layer calls into.
type Handler struct {
	DB         *gorm.DB
	Accounts   *services.AccountService
	Tutors     *services.TutorService
	Bookings   *services.BookingService
	Refunds    *services.RefundService
	Dashboards *services.DashboardService
	Hub        *ws.Hub

	// WebhookSecret is the Paystack secret key used to sign webhooks.
	WebhookSecret string
	Log           zerolog.Logger
}

type errorBody struct {
	Error  string                `json:"error"`
	Code   string                `json:"code"`
	Fields []services.FieldError `json:"fields,omitempty"`
}

// respondError maps service errors to status codes and logs them once.
func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal"
	body := errorBody{Error: "Something went wrong"}

	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		status, code = fiber.StatusBadRequest, "validation"
		body.Error = verr.Error()
		body.Fields = verr.Fields
	case errors.Is(err, services.ErrValidation):
		status, code = fiber.StatusBadRequest, "validation"
		body.Error = err.Error()
	case services.IsNotFound(err):
		status, code = fiber.StatusNotFound, "not_found"
		body.Error = err.Error()
	case errors.Is(err, services.ErrForbidden):
		status, code = fiber.StatusForbidden, "forbidden"
		body.Error = err.Error()
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrAccountDisabled):
		status, code = fiber.StatusUnauthorized, "unauthenticated"
		body.Error = err.Error()
	case errors.Is(err, services.ErrPaymentNotVerified):
		status, code = fiber.StatusPaymentRequired, "payment_not_verified"
		body.Error = err.Error()
	case services.IsConflict(err):
		status, code = fiber.StatusConflict, "conflict"
		body.Error = err.Error()
	case services.IsGateway(err):
		status, code = fiber.StatusBadGateway, "gateway"
		body.Error = err.Error()
	}
	body.Code = code

	evt := h.Log.Warn()
	if status >= 500 {
		evt = h.Log.Error()
	}
	if id, idErr := middleware.CurrentUser(c); idErr == nil {
		evt = evt.Str("user_id", id.UserID.String())
	}
	evt.Err(err).Str("path", c.Path()).Str("code", code).Int("status", status).Msg("request failed")

	return c.Status(status).JSON(body)
}

// bind parses and validates a JSON body.
func (h *Handler) bind(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return services.NewValidationError("body", "Cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return services.FromValidator(err)
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, services.NewValidationError(name, "must be a valid id")
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) caller(c *fiber.Ctx) (middleware.Identity, error) {
	id, err := middleware.CurrentUser(c)
	if err != nil {
		return id, services.ErrForbidden
	}
	return id, nil
}
