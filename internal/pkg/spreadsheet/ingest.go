package spreadsheet

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
	"github.com/reinfweb/ReinfWeb/internal/pkg/storage"
)

// ErrAlreadyIngested is returned when a conversion already has signed
// documents attached: one signed archive per conversion.
var ErrAlreadyIngested = errors.New("conversion already has signed documents")

// IngestSignedArchive unpacks a zip of externally signed event documents for
// one conversion, stores each member on disk and records a SignedXml row per
// member in a single transaction. The owning spreadsheet moves to SIGNED.
func (s *Service) IngestSignedArchive(convertedID string, archive []byte) ([]models.SignedXml, error) {
	converted, err := models.FindConvertedByID(s.db, convertedID)
	if err != nil {
		return nil, fmt.Errorf("load conversion %s: %w", convertedID, err)
	}
	sheet, err := models.FindSpreadsheetByID(s.db, converted.SpreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("load spreadsheet of conversion %s: %w", convertedID, err)
	}

	var existing int64
	if err := s.db.Model(&models.SignedXml{}).
		Where("converted_spreadsheet_id = ?", convertedID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check existing signed documents: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyIngested, convertedID)
	}

	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open signed archive: %w", err)
	}

	year, err := uploadYear(sheet.Path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(sheet.Filename, filepath.Ext(sheet.Filename))
	dir := s.storage.SignedDir(sheet.CompanyID, sheet.Event, year, name)

	var records []models.SignedXml
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive member %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive member %s: %w", f.Name, err)
		}

		path := filepath.Join(dir, filepath.Base(f.Name))
		if err := storage.WriteFile(path, data); err != nil {
			return nil, err
		}
		records = append(records, models.SignedXml{
			ConvertedSpreadsheetID: convertedID,
			Path:                   path,
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("signed archive contains no XML members")
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("record signed documents: %w", err)
		}
		if err := tx.Model(&models.EventSpreadsheet{}).
			Where("id = ?", sheet.ID).
			Update("status", models.FileStatusSigned).Error; err != nil {
			return fmt.Errorf("update spreadsheet status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("ingested %d signed documents for conversion %s", len(records), convertedID)
	return records, nil
}
