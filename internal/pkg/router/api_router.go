package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/reinfweb/ReinfWeb/app/controllers"
	"github.com/reinfweb/ReinfWeb/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", controllers.HandleHealth)

	api := app.Group("/api/v1", middleware.TokenAuthMiddleware())

	spreadsheets := api.Group("/spreadsheets")
	spreadsheets.Post("/", controllers.HandleSpreadsheetUpload)
	spreadsheets.Get("/", controllers.HandleSpreadsheetList)
	spreadsheets.Get("/:id", controllers.HandleSpreadsheetGet)
	spreadsheets.Delete("/:id", controllers.HandleSpreadsheetDelete)
	spreadsheets.Post("/:id/convert", controllers.HandleSpreadsheetConvert)
	spreadsheets.Get("/:id/download", controllers.HandleSpreadsheetDownload)

	conversions := api.Group("/conversions")
	conversions.Post("/:id/signed", controllers.HandleSignedArchiveUpload)
	conversions.Get("/:id/signed", controllers.HandleSignedXmlList)
	conversions.Post("/:id/batches", controllers.HandleBatchCreate)
	conversions.Get("/:id/batches", controllers.HandleBatchList)

	api.Delete("/signed/:id", controllers.HandleSignedXmlDelete)

	batches := api.Group("/batches")
	batches.Get("/:id", controllers.HandleBatchGet)
	batches.Delete("/:id", controllers.HandleBatchDelete)
	batches.Post("/:id/send", controllers.HandleBatchSend)
	batches.Get("/:id/status", controllers.HandleBatchStatus)

	signing := api.Group("/signatures")
	signing.Post("/sign", controllers.HandleSignXml)
	signing.Post("/verify", controllers.HandleVerifyXml)

	api.Post("/lots/pack", controllers.HandleLotPack)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
