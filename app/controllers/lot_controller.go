package controllers

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/reinfweb/ReinfWeb/internal/pkg/lotpacker"
	"github.com/reinfweb/ReinfWeb/internal/pkg/storage"
)

type packRequest struct {
	TpInsc string `form:"tp_insc" validate:"required,oneof=1 2"`
	NrInsc string `form:"nr_insc" validate:"required,numeric"`
}

// envelopeTemplatePath resolves the base lot template relative to the
// working directory of the binary.
func envelopeTemplatePath() string {
	candidates := []string{
		"docs/schema/envioAssincrono.xml",
		"../../docs/schema/envioAssincrono.xml",
		"../../../docs/schema/envioAssincrono.xml",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return candidates[0]
}

// HandleLotPack wraps an uploaded zip of signed event documents into
// submission-ready lot files of at most 50 events each.
func HandleLotPack(c *fiber.Ctx) error {
	var req packRequest
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

	tmp, err := os.CreateTemp("", "signed-*.zip")
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to buffer archive")
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Unreadable file")
	}
	tmp.Close()

	packer, err := lotpacker.NewPacker(req.TpInsc, req.NrInsc, envelopeTemplatePath())
	if err != nil {
		log.Errorf("lot packer unavailable: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Envelope template unavailable")
	}

	outDir := filepath.Join(storage.NewStorageFromEnv().Base, "lots",
		time.Now().Format("20060102150405"))
	paths, err := packer.PackArchive(tmp.Name(), outDir)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"lots":       names,
		"total":      len(names),
		"output_dir": outDir,
	})
}
