package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
	"github.com/reinfweb/ReinfWeb/internal/pkg/reinf"
	"github.com/reinfweb/ReinfWeb/internal/pkg/storage"
)

// ErrDuplicateUpload is returned when a spreadsheet with the same target path
// was already uploaded.
var ErrDuplicateUpload = errors.New("spreadsheet already uploaded")

// ErrAlreadyConverted is returned when a conversion is requested for a
// spreadsheet that already has one; the existing record is returned with it.
var ErrAlreadyConverted = errors.New("spreadsheet already converted")

// ConversionError aggregates everything wrong with a spreadsheet's rows. A
// single bad row fails the whole conversion: partial event sets must never
// reach the signer.
type ConversionError struct {
	Errors []string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("spreadsheet failed validation with %d errors", len(e.Errors))
}

// Service owns the upload and conversion lifecycle of event spreadsheets.
type Service struct {
	db      *gorm.DB
	storage *storage.Storage
}

// NewService creates a spreadsheet service.
func NewService(db *gorm.DB, st *storage.Storage) *Service {
	return &Service{db: db, storage: st}
}

// Upload stores an uploaded .xlsx under the deterministic layout and records
// it with status RECEIVED. The same path twice is a duplicate.
func (s *Service) Upload(companyID, cnpj, event string, year int, filename string, data []byte) (*models.EventSpreadsheet, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return nil, fmt.Errorf("unsupported file type %q, expected .xlsx", filepath.Ext(filename))
	}

	dir := s.storage.SpreadsheetDir(companyID, event, year)
	path := filepath.Join(dir, filename)

	if _, err := models.FindSpreadsheetByPath(s.db, path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateUpload, path)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check duplicate upload: %w", err)
	}

	if err := storage.WriteFile(path, data); err != nil {
		return nil, err
	}

	sheet := models.EventSpreadsheet{
		CompanyID: companyID,
		CNPJ:      cnpj,
		Event:     event,
		Filename:  filename,
		FileType:  "xlsx",
		Status:    models.FileStatusReceived,
		Path:      path,
	}
	if err := s.db.Create(&sheet).Error; err != nil {
		return nil, fmt.Errorf("record upload: %w", err)
	}
	log.Infof("received spreadsheet %s for company %s", filename, companyID)
	return &sheet, nil
}

// ConversionResult is the outcome of one successful conversion.
type ConversionResult struct {
	Converted   *models.ConvertedSpreadsheet
	Diagnostics []reinf.Diagnostic
}

// Convert reads every data row of the spreadsheet, validates all of them, and
// renders one event document per row into the converted directory. Validation
// failures in any row reject the whole run. A spreadsheet with an existing
// conversion short-circuits to ErrAlreadyConverted.
func (s *Service) Convert(spreadsheetID string) (*ConversionResult, error) {
	sheet, err := models.FindSpreadsheetByID(s.db, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("load spreadsheet %s: %w", spreadsheetID, err)
	}

	if existing, err := models.FindConvertedBySpreadsheetID(s.db, spreadsheetID); err == nil {
		return &ConversionResult{Converted: existing}, ErrAlreadyConverted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing conversion: %w", err)
	}

	year, err := uploadYear(sheet.Path)
	if err != nil {
		return nil, err
	}

	rows, err := readRows(sheet.Path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &ConversionError{Errors: []string{"spreadsheet has no data rows"}}
	}

	transformer := reinf.NewTransformer()
	var rowErrors []string
	var diags []reinf.Diagnostic
	payloads := make([]*reinf.EventPayload, 0, len(rows))

	for i, row := range rows {
		payload, rowDiags, err := transformer.TransformRow(row, i)
		if err != nil {
			rowErrors = append(rowErrors, err.Error())
			continue
		}
		diags = append(diags, rowDiags...)
		if payloadYear := periodYear(payload.PerApur); payloadYear != "" && payloadYear != strconv.Itoa(year) {
			rowErrors = append(rowErrors,
				fmt.Sprintf("row %d: period year %s does not match upload year %d", i+1, payloadYear, year))
			continue
		}
		payloads = append(payloads, payload)
	}
	if len(rowErrors) > 0 {
		return nil, &ConversionError{Errors: rowErrors}
	}

	name := strings.TrimSuffix(sheet.Filename, filepath.Ext(sheet.Filename))
	outDir := s.storage.ConvertedDir(sheet.CompanyID, sheet.Event, year, name)

	generator := reinf.NewGenerator(reinf.GeneratorConfig{
		NrInsc:      sheet.CNPJ,
		NrInscEstab: sheet.CNPJ,
	})
	for i, payload := range payloads {
		generated, err := generator.Generate(payload)
		if err != nil {
			return nil, fmt.Errorf("generate event for row %d: %w", i+1, err)
		}
		filename := fmt.Sprintf("%s_%03d.xml", payload.DtFG, i+1)
		if payload.DtFG == "" {
			filename = fmt.Sprintf("event_%03d.xml", i+1)
		}
		if err := storage.WriteFile(filepath.Join(outDir, filename), []byte(generated.Content)); err != nil {
			return nil, err
		}
	}

	converted := models.ConvertedSpreadsheet{
		SpreadsheetID:      sheet.ID,
		Path:               outDir,
		TotalGeneratedXmls: len(payloads),
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&converted).Error; err != nil {
			return fmt.Errorf("record conversion: %w", err)
		}
		if err := tx.Model(&models.EventSpreadsheet{}).
			Where("id = ?", sheet.ID).
			Update("status", models.FileStatusConverted).Error; err != nil {
			return fmt.Errorf("update spreadsheet status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("converted spreadsheet %s into %d events", sheet.Filename, len(payloads))
	return &ConversionResult{Converted: &converted, Diagnostics: diags}, nil
}

// PackageConverted zips the generated XMLs of a spreadsheet in memory.
func (s *Service) PackageConverted(spreadsheetID string) ([]byte, error) {
	converted, err := models.FindConvertedBySpreadsheetID(s.db, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("load conversion of spreadsheet %s: %w", spreadsheetID, err)
	}
	return storage.ZipDirectory(converted.Path)
}

// readRows loads the first sheet, using the first row as the header.
func readRows(path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no sheets", path)
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows of %s: %w", path, err)
	}
	if len(raw) < 1 {
		return nil, nil
	}

	headers := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		if blankRow(cells) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// uploadYear extracts the year segment of the deterministic upload path
// ({base}/spreadsheets/{company}/{event}/{year}/{file}).
func uploadYear(path string) (int, error) {
	dir := filepath.Base(filepath.Dir(path))
	year, err := strconv.Atoi(dir)
	if err != nil {
		return 0, fmt.Errorf("spreadsheet path %s carries no year segment", path)
	}
	return year, nil
}

// periodYear pulls the year out of a normalized "YYYY-MM" accrual period.
// The "00-0000" fallback has no year.
func periodYear(perApur string) string {
	if len(perApur) >= 4 {
		if _, err := strconv.Atoi(perApur[:4]); err == nil {
			return perApur[:4]
		}
	}
	return ""
}

// NewWorkbook builds an xlsx workbook with the 4020 layout headers and the
// given rows, mainly for tests and layout documentation.
func NewWorkbook(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headers := []string{
		reinf.ColumnPayer,
		reinf.ColumnIncomeNature,
		reinf.ColumnPeriod,
		reinf.ColumnBaseAmount,
		reinf.ColumnRevenue,
	}
	all := append([][]string{headers}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
