package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchStatus is the lifecycle of a submission lot.
//
//	Created -> Sent -> (Processing | Processed | Error)
//
// Error is also reachable directly from a rejected submission. Processed and
// Error are terminal; idempotent polling may re-confirm them.
type BatchStatus string

const (
	BatchStatusCreated    BatchStatus = "CREATED"
	BatchStatusSent       BatchStatus = "SENT"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusProcessed  BatchStatus = "PROCESSED"
	BatchStatusError      BatchStatus = "ERROR"
)

// Batch groups up to 50 signed events into one lot document for submission.
// ProtocolNumber stays NULL until the gateway accepts the lot.
type Batch struct {
	ID                     string      `gorm:"type:char(36);primaryKey" json:"id"`
	ConvertedSpreadsheetID string      `gorm:"type:char(36);not null;index" json:"converted_spreadsheet_id"`
	Status                 BatchStatus `gorm:"type:varchar(50);not null" json:"status"`
	ProtocolNumber         *string     `gorm:"type:varchar(255)" json:"protocol_number"`
	BatchXmlPath           string      `gorm:"type:varchar(255)" json:"batch_xml_path"`
	CreatedDate            time.Time   `gorm:"autoCreateTime" json:"created_date"`
	SentDate               *time.Time  `json:"sent_date"`

	Converted  ConvertedSpreadsheet `gorm:"foreignKey:ConvertedSpreadsheetID" json:"converted,omitempty"`
	SignedXmls []SignedXml          `gorm:"foreignKey:BatchID" json:"signed_xmls,omitempty"`
}

func (Batch) TableName() string {
	return "tb_batches"
}

func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// FindBatchByID looks a batch up by its UUID.
func FindBatchByID(db *gorm.DB, id string) (*Batch, error) {
	var b Batch
	result := db.Where("id = ?", id).First(&b)
	return &b, result.Error
}
