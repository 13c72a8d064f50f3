package repository

import (
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
)

// SpreadsheetRepository defines the interface for uploaded spreadsheet records
type SpreadsheetRepository interface {
	Create(s *models.EventSpreadsheet) error
	GetByID(id string) (*models.EventSpreadsheet, error)
	GetByPath(path string) (*models.EventSpreadsheet, error)
	ListByCompanyEventYear(companyID, event string, year int) ([]models.EventSpreadsheet, error)
	UpdateStatus(id string, status models.FileStatus) error
	Delete(id string) error
}

// ConvertedRepository defines the interface for conversion records
type ConvertedRepository interface {
	Create(c *models.ConvertedSpreadsheet) error
	GetByID(id string) (*models.ConvertedSpreadsheet, error)
	GetBySpreadsheetID(spreadsheetID string) (*models.ConvertedSpreadsheet, error)
}

// SignedXmlRepository defines the interface for signed event documents
type SignedXmlRepository interface {
	Create(x *models.SignedXml) error
	CreateAll(xs []models.SignedXml) error
	GetByID(id string) (*models.SignedXml, error)
	ListByConverted(convertedID string) ([]models.SignedXml, error)
	ListUnbatched(convertedID string) ([]models.SignedXml, error)
	ListByBatch(batchID string) ([]models.SignedXml, error)
	Delete(id string) error
}

// BatchRepository defines the interface for batch records
type BatchRepository interface {
	GetByID(id string) (*models.Batch, error)
	ListByConverted(convertedID string) ([]models.Batch, error)
	Update(b *models.Batch) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Spreadsheet SpreadsheetRepository
	Converted   ConvertedRepository
	SignedXml   SignedXmlRepository
	Batch       BatchRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Spreadsheet: NewSpreadsheetRepository(db),
		Converted:   NewConvertedRepository(db),
		SignedXml:   NewSignedXmlRepository(db),
		Batch:       NewBatchRepository(db),
	}
}
