package controllers

import (
	"errors"
	"io"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/app/repository"
	"github.com/reinfweb/ReinfWeb/internal/pkg/spreadsheet"
)

// HandleSignedArchiveUpload ingests a zip of externally signed event
// documents for one conversion.
func HandleSignedArchiveUpload(c *fiber.Ctx) error {
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
	records, err := svc.IngestSignedArchive(c.Params("id"), data)
	if err != nil {
		if errors.Is(err, spreadsheet.ErrAlreadyIngested) {
			return errorJSON(c, fiber.StatusConflict, "conflict", "Conversion already has signed documents")
		}
		log.Errorf("signed archive ingestion failed: %v", err)
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"signed_xmls": records,
		"total":       len(records),
	})
}

// HandleSignedXmlList lists the signed documents of one conversion.
func HandleSignedXmlList(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSignedXmlRepository()
	records, err := repo.ListByConverted(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list signed documents")
	}
	return c.JSON(fiber.Map{"signed_xmls": records, "total": len(records)})
}

// HandleSignedXmlDelete removes one signed document record and its file.
func HandleSignedXmlDelete(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSignedXmlRepository()
	record, err := repo.GetByID(c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "signed document")
	}
	if record.BatchID != nil {
		return errorJSON(c, fiber.StatusConflict, "conflict", "Signed document is claimed by a batch")
	}
	if err := repo.Delete(record.ID); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete signed document")
	}
	if err := os.Remove(record.Path); err != nil && !os.IsNotExist(err) {
		log.Warnf("signed document %s not removed: %v", record.Path, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
