package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/payments"
	"github.com/tutorhub/api/services"
)

// PaystackWebhook is unauthenticated; the HMAC signature is the only
// credential. Unknown events are acknowledged so Paystack stops retrying.
func (h *Handler) PaystackWebhook(c *fiber.Ctx) error {
	body := c.Body()
	if !payments.VerifySignature(h.WebhookSecret, body, c.Get(payments.SignatureHeader)) {
		h.Log.Warn().Str("ip", c.IP()).Msg("rejected webhook with bad signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature", "code": "unauthenticated"})
	}

	evt, err := payments.ParseWebhook(body)
	if err != nil {
		return h.respondError(c, services.NewValidationError("body", "Cannot parse webhook payload"))
	}
	ctx := c.UserContext()

	switch evt.Event {
	case payments.EventChargeSuccess:
		txn, err := evt.Transaction()
		if err != nil {
			return h.respondError(c, services.NewValidationError("data", err.Error()))
		}
		if _, err := h.Bookings.HandleChargeSuccess(ctx, txn); err != nil {
			return h.respondError(c, err)
		}
	case payments.EventRefundProcessed, payments.EventRefundFailed:
		notice, err := evt.Refund()
		if err != nil {
			return h.respondError(c, services.NewValidationError("data", err.Error()))
		}
		if err := h.Refunds.HandleGatewayNotice(ctx, evt.Event, notice); err != nil {
			return h.respondError(c, err)
		}
	default:
		h.Log.Debug().Str("event", evt.Event).Msg("ignoring webhook event")
	}
	return c.JSON(fiber.Map{"message": "Webhook received"})
}

type RefundRequest struct {
	Reference string `json:"reference" validate:"required,max=100"`
	Reason    string `json:"reason" validate:"max=2000"`
}

// RefundPayment issues a full refund for the booking paid by reference.
func (h *Handler) RefundPayment(c *fiber.Ctx) error {
	var req RefundRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	refund, err := h.Refunds.RefundByReference(c.UserContext(), req.Reference, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Refund " + string(refund.Status),
		"refund":  refund,
	})
}
