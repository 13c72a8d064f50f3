package repository

import (
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
)

// spreadsheetRepository implements the SpreadsheetRepository interface
type spreadsheetRepository struct {
	db *gorm.DB
}

// NewSpreadsheetRepository creates a new spreadsheet repository instance
func NewSpreadsheetRepository(db *gorm.DB) SpreadsheetRepository {
	return &spreadsheetRepository{db: db}
}

func (r *spreadsheetRepository) Create(s *models.EventSpreadsheet) error {
	return r.db.Create(s).Error
}

func (r *spreadsheetRepository) GetByID(id string) (*models.EventSpreadsheet, error) {
	var s models.EventSpreadsheet
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *spreadsheetRepository) GetByPath(path string) (*models.EventSpreadsheet, error) {
	var s models.EventSpreadsheet
	err := r.db.Where("path = ?", path).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByCompanyEventYear filters uploads by company, event code and the year
// they were received.
func (r *spreadsheetRepository) ListByCompanyEventYear(companyID, event string, year int) ([]models.EventSpreadsheet, error) {
	var sheets []models.EventSpreadsheet
	err := r.db.
		Where("company_id = ? AND event = ?", companyID, event).
		Where("received_date >= ? AND received_date < ?",
			yearStart(year), yearStart(year+1)).
		Order("received_date DESC").
		Find(&sheets).Error
	return sheets, err
}

func (r *spreadsheetRepository) UpdateStatus(id string, status models.FileStatus) error {
	return r.db.Model(&models.EventSpreadsheet{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *spreadsheetRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.EventSpreadsheet{}).Error
}
