package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/internal/pkg/xmlsign"
)

type signRequest struct {
	Content   string `json:"content" validate:"required"`
	EventCode string `json:"event_code"`
}

// signingEngine is swappable so controller tests can inject a throwaway
// credential instead of reading CERTIFICATE_PATH.
var signingEngine = func() (*xmlsign.Engine, error) {
	return xmlsign.NewEngineFromEnv()
}

// HandleSignXml signs one event document with the configured certificate.
// The event type is detected from the document unless event_code pins it.
func HandleSignXml(c *fiber.Ctx) error {
	var req signRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	engine, err := signingEngine()
	if err != nil {
		log.Errorf("signing engine unavailable: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Signing credential unavailable")
	}

	signed, err := engine.Sign(req.Content, req.EventCode)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	return c.JSON(fiber.Map{
		"event_code": signed.EventCode,
		"element_id": signed.ElementID,
		"content":    signed.Content,
	})
}

// HandleVerifyXml reports whether a document carries a valid enveloped
// signature. An unsigned document is simply not valid.
func HandleVerifyXml(c *fiber.Ctx) error {
	var req signRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.Content == "" {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Missing content")
	}

	engine, err := signingEngine()
	if err != nil {
		log.Errorf("signing engine unavailable: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Signing credential unavailable")
	}
	return c.JSON(fiber.Map{"valid": engine.VerifySignature(req.Content)})
}
