package repository

import (
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
)

// batchRepository implements the BatchRepository interface
type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new batch repository instance
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) GetByID(id string) (*models.Batch, error) {
	var b models.Batch
	err := r.db.Where("id = ?", id).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepository) ListByConverted(convertedID string) ([]models.Batch, error) {
	var bs []models.Batch
	err := r.db.Where("converted_spreadsheet_id = ?", convertedID).
		Order("created_date DESC").Find(&bs).Error
	return bs, err
}

func (r *batchRepository) Update(b *models.Batch) error {
	return r.db.Save(b).Error
}
