package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	started time.Time
}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{started: time.Now()}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"result": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}
