package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
	"github.com/reinfweb/ReinfWeb/app/repository"
	"github.com/reinfweb/ReinfWeb/internal/pkg/batch"
	"github.com/reinfweb/ReinfWeb/internal/pkg/database"
	"github.com/reinfweb/ReinfWeb/internal/pkg/gateway"
)

// gatewayFactory is swappable so controller tests can stub the government
// endpoint instead of loading a client certificate.
var gatewayFactory = func() (gateway.Client, error) {
	return gateway.NewHTTPClientFromEnv()
}

// batchServiceForConverted builds a batch service bound to the contributor
// that owns the conversion.
func batchServiceForConverted(db *gorm.DB, convertedID string) (*batch.Service, error) {
	converted, err := models.FindConvertedByID(db, convertedID)
	if err != nil {
		return nil, err
	}
	sheet, err := models.FindSpreadsheetByID(db, converted.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	gw, err := gatewayFactory()
	if err != nil {
		return nil, err
	}
	return batch.NewService(db, gw, "1", sheet.CNPJ), nil
}

func batchServiceForBatch(db *gorm.DB, batchID string) (*batch.Service, *models.Batch, error) {
	b, err := models.FindBatchByID(db, batchID)
	if err != nil {
		return nil, nil, err
	}
	svc, err := batchServiceForConverted(db, b.ConvertedSpreadsheetID)
	return svc, b, err
}

// HandleBatchCreate claims every unbatched signed document of a conversion
// into new batches of at most 50 events.
func HandleBatchCreate(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}

	svc, err := batchServiceForConverted(db, c.Params("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Conversion not found")
		}
		log.Errorf("batch service unavailable: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", err.Error())
	}

	created, err := svc.CreateBatches(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"batches": created,
		"total":   len(created),
	})
}

// HandleBatchList lists the batches of one conversion.
func HandleBatchList(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetBatchRepository()
	batches, err := repo.ListByConverted(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list batches")
	}
	return c.JSON(fiber.Map{"batches": batches, "total": len(batches)})
}

// HandleBatchGet returns one batch together with its claimed documents.
func HandleBatchGet(c *fiber.Ctx) error {
	factory := repository.GetGlobalFactory()
	b, err := factory.GetBatchRepository().GetByID(c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "batch")
	}
	members, err := factory.GetSignedXmlRepository().ListByBatch(b.ID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load batch members")
	}
	b.SignedXmls = members
	return c.JSON(b)
}

// HandleBatchDelete removes a never-submitted batch, releasing its documents.
func HandleBatchDelete(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}

	svc, _, err := batchServiceForBatch(db, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "batch")
	}
	if err := svc.Delete(c.Params("id")); err != nil {
		var conflict *batch.StateConflictError
		if errors.As(err, &conflict) {
			return errorJSON(c, fiber.StatusConflict, "conflict", conflict.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete batch")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleBatchSend submits a batch's lot document to the gateway.
func HandleBatchSend(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}

	svc, _, err := batchServiceForBatch(db, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "batch")
	}

	result, err := svc.Submit(c.UserContext(), c.Params("id"))
	if err != nil {
		var conflict *batch.StateConflictError
		if errors.As(err, &conflict) {
			return errorJSON(c, fiber.StatusConflict, "conflict", conflict.Error())
		}
		log.Errorf("batch submission failed: %v", err)
		return errorJSON(c, fiber.StatusBadGateway, "bad_gateway", err.Error())
	}

	response := fiber.Map{"batch": result.Batch}
	switch {
	case result.Degraded:
		response["message"] = "Lot accepted but no protocol number was returned"
		response["detail"] = result.Detail
	case result.Batch.Status == models.BatchStatusError:
		response["message"] = "Lot rejected by the gateway"
		response["detail"] = result.Detail
	default:
		response["protocol_number"] = result.Protocol
	}
	return c.JSON(response)
}

// HandleBatchStatus polls the gateway for the processing situation of a
// submitted batch.
func HandleBatchStatus(c *fiber.Ctx) error {
	db := database.GetDB()
	if db == nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}

	svc, _, err := batchServiceForBatch(db, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "batch")
	}

	result, err := svc.QueryStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		var conflict *batch.StateConflictError
		if errors.As(err, &conflict) {
			return errorJSON(c, fiber.StatusConflict, "conflict", conflict.Error())
		}
		log.Errorf("batch status query failed: %v", err)
		return errorJSON(c, fiber.StatusBadGateway, "bad_gateway", err.Error())
	}
	return c.JSON(fiber.Map{
		"batch":      result.Batch,
		"raw_status": result.RawStatus,
	})
}
