package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
)

// convertedRepository implements the ConvertedRepository interface
type convertedRepository struct {
	db *gorm.DB
}

// NewConvertedRepository creates a new converted spreadsheet repository instance
func NewConvertedRepository(db *gorm.DB) ConvertedRepository {
	return &convertedRepository{db: db}
}

func (r *convertedRepository) Create(c *models.ConvertedSpreadsheet) error {
	return r.db.Create(c).Error
}

func (r *convertedRepository) GetByID(id string) (*models.ConvertedSpreadsheet, error) {
	var c models.ConvertedSpreadsheet
	err := r.db.Preload("Spreadsheet").Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *convertedRepository) GetBySpreadsheetID(spreadsheetID string) (*models.ConvertedSpreadsheet, error) {
	var c models.ConvertedSpreadsheet
	err := r.db.Where("spreadsheet_id = ?", spreadsheetID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// yearStart is shared by repositories that filter on a calendar year.
func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
