package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/middleware"
)

// TutorRoutes guards each route rather than the group: fiber matches group
// middleware by plain prefix, which would also catch the public /tutors.
func TutorRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	tutorOnly := middleware.TutorRequired()

	tutor := app.Group("/api/v1/tutor")
	tutor.Put("/profile", protected, tutorOnly, h.UpdateTutorProfile)
	tutor.Post("/online", protected, tutorOnly, h.SetTutorOnline)
	tutor.Post("/transcript", protected, tutorOnly, h.UploadTranscript)
	tutor.Post("/lessons", protected, tutorOnly, h.AddLesson)
	tutor.Delete("/lessons/:lessonId", protected, tutorOnly, h.DeleteLesson)
}
