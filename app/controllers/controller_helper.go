package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/internal/pkg/database"
	"github.com/reinfweb/ReinfWeb/internal/pkg/spreadsheet"
	"github.com/reinfweb/ReinfWeb/internal/pkg/storage"
)

var validate = validator.New()

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func notFoundOrInternal(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "not_found", what+" not found")
	}
	return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load "+what)
}

func spreadsheetService(c *fiber.Ctx) (*spreadsheet.Service, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}
	return spreadsheet.NewService(db, storage.NewStorageFromEnv()), nil
}
