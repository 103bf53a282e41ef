package api

import (
	"github.com/gofiber/fiber/v2"

	"legischat/app/pipeline"
)

// CheckHandler answers liveness probes with the number of open sessions.
type CheckHandler struct {
	sessions *pipeline.Registry
}

func NewCheckHandler(sessions *pipeline.Registry) *CheckHandler {
	return &CheckHandler{sessions: sessions}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	open := 0
	if h.sessions != nil {
		open = h.sessions.Len()
	}
	return c.JSON(fiber.Map{"result": "ok", "sessions": open})
}
