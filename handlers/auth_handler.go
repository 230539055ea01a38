package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/services"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	profile, err := h.Accounts.Register(c.UserContext(), req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(profile)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	res, err := h.Accounts.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(res)
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.Accounts.Logout(c.UserContext(), id.UserID); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (h *Handler) Me(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	profile, err := h.Accounts.Profile(c.UserContext(), id.UserID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(profile)
}
