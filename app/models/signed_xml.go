package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignedXml is one digitally signed event document on disk. BatchID stays
// NULL until the document is claimed by a batch.
type SignedXml struct {
	ID                     string    `gorm:"type:char(36);primaryKey" json:"id"`
	ConvertedSpreadsheetID string    `gorm:"type:char(36);not null;index:ix_converted_id_signed" json:"converted_spreadsheet_id"`
	BatchID                *string   `gorm:"type:char(36);index" json:"batch_id"`
	Path                   string    `gorm:"type:varchar(255);not null" json:"path"`
	SignedDate             time.Time `gorm:"autoCreateTime" json:"signed_date"`

	Converted ConvertedSpreadsheet `gorm:"foreignKey:ConvertedSpreadsheetID" json:"converted,omitempty"`
}

func (SignedXml) TableName() string {
	return "tb_signed_xmls"
}

func (s *SignedXml) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
