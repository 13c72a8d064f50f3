package repository

import (
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
)

// signedXmlRepository implements the SignedXmlRepository interface
type signedXmlRepository struct {
	db *gorm.DB
}

// NewSignedXmlRepository creates a new signed xml repository instance
func NewSignedXmlRepository(db *gorm.DB) SignedXmlRepository {
	return &signedXmlRepository{db: db}
}

func (r *signedXmlRepository) Create(x *models.SignedXml) error {
	return r.db.Create(x).Error
}

func (r *signedXmlRepository) CreateAll(xs []models.SignedXml) error {
	if len(xs) == 0 {
		return nil
	}
	return r.db.Create(&xs).Error
}

func (r *signedXmlRepository) GetByID(id string) (*models.SignedXml, error) {
	var x models.SignedXml
	err := r.db.Where("id = ?", id).First(&x).Error
	if err != nil {
		return nil, err
	}
	return &x, nil
}

func (r *signedXmlRepository) ListByConverted(convertedID string) ([]models.SignedXml, error) {
	var xs []models.SignedXml
	err := r.db.Where("converted_spreadsheet_id = ?", convertedID).
		Order("signed_date").Find(&xs).Error
	return xs, err
}

// ListUnbatched returns signed documents of a conversion that have not been
// claimed by any batch yet.
func (r *signedXmlRepository) ListUnbatched(convertedID string) ([]models.SignedXml, error) {
	var xs []models.SignedXml
	err := r.db.Where("converted_spreadsheet_id = ? AND batch_id IS NULL", convertedID).
		Order("signed_date").Find(&xs).Error
	return xs, err
}

func (r *signedXmlRepository) ListByBatch(batchID string) ([]models.SignedXml, error) {
	var xs []models.SignedXml
	err := r.db.Where("batch_id = ?", batchID).Order("signed_date").Find(&xs).Error
	return xs, err
}

func (r *signedXmlRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.SignedXml{}).Error
}
