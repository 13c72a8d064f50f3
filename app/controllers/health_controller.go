package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reinfweb/ReinfWeb/internal/pkg/database"
)

// HandleHealth reports service liveness and database reachability.
func HandleHealth(c *fiber.Ctx) error {
	dbStatus := "up"
	db := database.GetDB()
	if db == nil {
		dbStatus = "down"
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "down"
	}

	status := fiber.StatusOK
	overall := "ok"
	if dbStatus == "down" {
		status = fiber.StatusServiceUnavailable
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   overall,
		"database": dbStatus,
	})
}
