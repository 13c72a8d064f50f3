package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConvertedSpreadsheet links an uploaded spreadsheet to the directory of XML
// events generated from it.
type ConvertedSpreadsheet struct {
	ID                 string    `gorm:"type:char(36);primaryKey" json:"id"`
	SpreadsheetID      string    `gorm:"type:char(36);not null;index:ix_spreadsheet_id_converted" json:"spreadsheet_id"`
	Path               string    `gorm:"type:varchar(255);not null" json:"path"`
	TotalGeneratedXmls int       `gorm:"not null" json:"total_generated_xmls"`
	ConvertedDate      time.Time `gorm:"autoCreateTime" json:"converted_date"`

	Spreadsheet EventSpreadsheet `gorm:"foreignKey:SpreadsheetID" json:"spreadsheet,omitempty"`
	SignedXmls  []SignedXml      `gorm:"foreignKey:ConvertedSpreadsheetID" json:"signed_xmls,omitempty"`
}

func (ConvertedSpreadsheet) TableName() string {
	return "tb_converted_spreadsheets"
}

func (c *ConvertedSpreadsheet) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// FindConvertedByID looks a converted spreadsheet up by its UUID.
func FindConvertedByID(db *gorm.DB, id string) (*ConvertedSpreadsheet, error) {
	var c ConvertedSpreadsheet
	result := db.Where("id = ?", id).First(&c)
	return &c, result.Error
}

// FindConvertedBySpreadsheetID returns the conversion record of an uploaded
// spreadsheet, if any.
func FindConvertedBySpreadsheetID(db *gorm.DB, spreadsheetID string) (*ConvertedSpreadsheet, error) {
	var c ConvertedSpreadsheet
	result := db.Where("spreadsheet_id = ?", spreadsheetID).First(&c)
	return &c, result.Error
}
