package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileStatus tracks an uploaded spreadsheet through the pipeline.
type FileStatus string

const (
	FileStatusReceived  FileStatus = "RECEIVED"
	FileStatusConverted FileStatus = "CONVERTED"
	FileStatusSigned    FileStatus = "SIGNED"
	FileStatusSent      FileStatus = "SENT"
)

// EventSpreadsheet is one uploaded tabular source (xlsx) for a fiscal event
// type, owned by a company.
type EventSpreadsheet struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID    string     `gorm:"type:varchar(50);not null;index" json:"company_id"`
	CNPJ         string     `gorm:"type:varchar(14);not null" json:"cnpj"`
	Event        string     `gorm:"type:varchar(255);not null" json:"event"`
	Filename     string     `gorm:"type:varchar(255);not null" json:"filename"`
	FileType     string     `gorm:"type:varchar(255);not null" json:"file_type"`
	Status       FileStatus `gorm:"type:varchar(50);not null" json:"status"`
	Path         string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"path"`
	ReceivedDate time.Time  `gorm:"autoCreateTime" json:"received_date"`

	Conversions []ConvertedSpreadsheet `gorm:"foreignKey:SpreadsheetID" json:"conversions,omitempty"`
}

func (EventSpreadsheet) TableName() string {
	return "tb_spreadsheets"
}

func (s *EventSpreadsheet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// FindSpreadsheetByID looks a spreadsheet up by its UUID.
func FindSpreadsheetByID(db *gorm.DB, id string) (*EventSpreadsheet, error) {
	var s EventSpreadsheet
	result := db.Where("id = ?", id).First(&s)
	return &s, result.Error
}

// FindSpreadsheetByPath is used to reject duplicate uploads of the same file.
func FindSpreadsheetByPath(db *gorm.DB, path string) (*EventSpreadsheet, error) {
	var s EventSpreadsheet
	result := db.Where("path = ?", path).First(&s)
	return &s, result.Error
}
