package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/services"
)

const maxTranscriptSize = 10 << 20

func (h *Handler) SearchTutors(c *fiber.Ctx) error {
	tutors, err := h.Tutors.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(tutors)
}

func (h *Handler) GetTutor(c *fiber.Ctx) error {
	id, err := paramID(c, "tutorId")
	if err != nil {
		return h.respondError(c, err)
	}
	detail, err := h.Tutors.Get(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(detail)
}

func (h *Handler) GetTutorLessons(c *fiber.Ctx) error {
	id, err := paramID(c, "tutorId")
	if err != nil {
		return h.respondError(c, err)
	}
	lessons, err := h.Tutors.Lessons(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(lessons)
}

func (h *Handler) UpdateTutorProfile(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req services.TutorProfileInput
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	tutor, err := h.Tutors.UpdateProfile(c.UserContext(), id.UserID, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(tutor)
}

type onlineRequest struct {
	IsOnline bool `json:"is_online"`
}

func (h *Handler) SetTutorOnline(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req onlineRequest
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	if err := h.Tutors.SetOnline(c.UserContext(), id.UserID, req.IsOnline); err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"is_online": req.IsOnline})
}

// UploadTranscript accepts a multipart form with a "transcript" file.
func (h *Handler) UploadTranscript(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	fh, err := c.FormFile("transcript")
	if err != nil {
		return h.respondError(c, services.NewValidationError("transcript", "is required"))
	}
	if fh.Size > maxTranscriptSize {
		return h.respondError(c, services.NewValidationError("transcript", "must be at most 10MB"))
	}
	f, err := fh.Open()
	if err != nil {
		return h.respondError(c, err)
	}
	defer f.Close()

	tutor, err := h.Tutors.UploadTranscript(c.UserContext(), id.UserID, fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(tutor)
}

func (h *Handler) AddLesson(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req services.LessonInput
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	lesson, err := h.Tutors.AddLesson(c.UserContext(), id.UserID, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(lesson)
}

func (h *Handler) DeleteLesson(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return h.respondError(c, err)
	}
	if err := h.Tutors.DeleteLesson(c.UserContext(), id.UserID, lessonID); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) CreateSubaccount(c *fiber.Ctx) error {
	id, err := h.caller(c)
	if err != nil {
		return h.respondError(c, err)
	}
	var req services.PayoutInput
	if err := h.bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	sub, err := h.Tutors.SetupPayouts(c.UserContext(), id.UserID, req)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"subaccount_code": sub.Code})
}
