package controllers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/app/repository"
	"github.com/reinfweb/ReinfWeb/internal/pkg/spreadsheet"
)

type uploadRequest struct {
	CompanyID string `form:"company_id" validate:"required"`
	CNPJ      string `form:"cnpj" validate:"required,len=14,numeric"`
	Event     string `form:"event" validate:"required"`
	Year      int    `form:"year" validate:"required,min=2000,max=2100"`
}

// HandleSpreadsheetUpload receives one .xlsx event spreadsheet as multipart
// form data together with the company/event coordinates it belongs to.
func HandleSpreadsheetUpload(c *fiber.Ctx) error {
	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid form data")
	}
	if err := validate.Struct(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Missing file")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Unreadable file")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Unreadable file")
	}

	svc, errResp := spreadsheetService(c)
	if svc == nil {
		return errResp
	}
	sheet, err := svc.Upload(req.CompanyID, req.CNPJ, req.Event, req.Year, fileHeader.Filename, data)
	if err != nil {
		if errors.Is(err, spreadsheet.ErrDuplicateUpload) {
			return errorJSON(c, fiber.StatusConflict, "conflict", "Spreadsheet already uploaded")
		}
		log.Errorf("spreadsheet upload failed: %v", err)
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(sheet)
}

// HandleSpreadsheetList lists uploads filtered by company, event and year.
func HandleSpreadsheetList(c *fiber.Ctx) error {
	companyID := c.Query("company_id")
	event := c.Query("event")
	year, err := strconv.Atoi(c.Query("year"))
	if companyID == "" || event == "" || err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "company_id, event and year are required")
	}

	repo := repository.GetGlobalFactory().GetSpreadsheetRepository()
	sheets, err := repo.ListByCompanyEventYear(companyID, event, year)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list spreadsheets")
	}
	return c.JSON(fiber.Map{"spreadsheets": sheets, "total": len(sheets)})
}

// HandleSpreadsheetGet returns one upload by id.
func HandleSpreadsheetGet(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSpreadsheetRepository()
	sheet, err := repo.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "spreadsheet")
	}
	return c.JSON(sheet)
}

// HandleSpreadsheetConvert validates every row of an upload and renders one
// event document per row. Any invalid row rejects the whole run with the full
// list of row errors.
func HandleSpreadsheetConvert(c *fiber.Ctx) error {
	svc, errResp := spreadsheetService(c)
	if svc == nil {
		return errResp
	}

	result, err := svc.Convert(c.Params("id"))
	if err != nil {
		var convErr *spreadsheet.ConversionError
		switch {
		case errors.As(err, &convErr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "validation_failed",
				"message": convErr.Error(),
				"errors":  convErr.Errors,
			})
		case errors.Is(err, spreadsheet.ErrAlreadyConverted):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":     "conflict",
				"message":   "Spreadsheet already converted",
				"converted": result.Converted,
			})
		default:
			return notFoundOrInternal(c, err, "spreadsheet")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"converted":   result.Converted,
		"diagnostics": result.Diagnostics,
	})
}

// HandleSpreadsheetDownload streams the generated event documents of an
// upload as one zip archive.
func HandleSpreadsheetDownload(c *fiber.Ctx) error {
	svc, errResp := spreadsheetService(c)
	if svc == nil {
		return errResp
	}

	data, err := svc.PackageConverted(c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "conversion")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="converted_%s.zip"`, c.Params("id")))
	return c.Send(data)
}

// HandleSpreadsheetDelete removes an upload record and its stored file.
func HandleSpreadsheetDelete(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSpreadsheetRepository()
	sheet, err := repo.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "spreadsheet")
	}
	if err := repo.Delete(sheet.ID); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete spreadsheet")
	}
	if err := os.Remove(sheet.Path); err != nil && !os.IsNotExist(err) {
		log.Warnf("spreadsheet file %s not removed: %v", sheet.Path, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
