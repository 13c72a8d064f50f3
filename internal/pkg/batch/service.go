package batch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/reinfweb/ReinfWeb/app/models"
	"github.com/reinfweb/ReinfWeb/internal/pkg/gateway"
	"github.com/reinfweb/ReinfWeb/internal/pkg/reinf"
	"github.com/reinfweb/ReinfWeb/internal/pkg/storage"
)

// StateConflictError reports an operation attempted against a batch whose
// status does not allow it (e.g. deleting an already submitted batch).
type StateConflictError struct {
	BatchID string
	Status  models.BatchStatus
	Op      string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s batch %s in status %s", e.Op, e.BatchID, e.Status)
}

// Service drives the batch lifecycle: claiming signed events into lots,
// submitting lots to the gateway, and polling their processing status.
type Service struct {
	db      *gorm.DB
	gateway gateway.Client
	tpInsc  string
	nrInsc  string
}

// NewService creates a batch service for one contributor.
func NewService(db *gorm.DB, gw gateway.Client, tpInsc, nrInsc string) *Service {
	return &Service{db: db, gateway: gw, tpInsc: tpInsc, nrInsc: nrInsc}
}

// CreateBatches claims every not-yet-batched signed event of a conversion
// into new batches of at most 50 events, renders one lot document per batch
// and persists everything in a single transaction. The unbatched read and the
// claims share that transaction, and each claim only takes events that are
// still unassigned; a rival round claiming in between fails the whole batch
// and rolls everything back. Lot files already written stay on disk and are
// overwritten by the next attempt.
func (s *Service) CreateBatches(convertedID string) ([]models.Batch, error) {
	converted, err := models.FindConvertedByID(s.db, convertedID)
	if err != nil {
		return nil, fmt.Errorf("load conversion %s: %w", convertedID, err)
	}

	renderer := reinf.GeneratedLotEnvelope{TpInsc: s.tpInsc, NrInsc: s.nrInsc}
	lotDir := storage.LotDir(converted.Path)

	var created []models.Batch
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var unbatched []models.SignedXml
		if err := tx.Where("converted_spreadsheet_id = ? AND batch_id IS NULL", convertedID).
			Order("signed_date").Find(&unbatched).Error; err != nil {
			return fmt.Errorf("list unbatched events: %w", err)
		}
		if len(unbatched) == 0 {
			return fmt.Errorf("conversion %s has no unbatched signed events", convertedID)
		}

		members, err := loadMembers(unbatched)
		if err != nil {
			return err
		}

		groups := reinf.ChunkMembers(members, reinf.MaxEventsPerLot)
		offset := 0
		for _, group := range groups {
			batch := models.Batch{
				ConvertedSpreadsheetID: convertedID,
				Status:                 models.BatchStatusCreated,
			}
			if err := tx.Create(&batch).Error; err != nil {
				return fmt.Errorf("create batch: %w", err)
			}

			claimed := unbatched[offset : offset+len(group)]
			offset += len(group)
			ids := make([]string, len(claimed))
			for i := range claimed {
				ids[i] = claimed[i].ID
			}
			res := tx.Model(&models.SignedXml{}).
				Where("id IN ? AND batch_id IS NULL", ids).
				Update("batch_id", batch.ID)
			if res.Error != nil {
				return fmt.Errorf("claim events for batch %s: %w", batch.ID, res.Error)
			}
			if res.RowsAffected != int64(len(ids)) {
				return fmt.Errorf("claim events for batch %s: %d of %d were already claimed elsewhere",
					batch.ID, int64(len(ids))-res.RowsAffected, len(ids))
			}

			lot, err := renderer.Render(group)
			if err != nil {
				return fmt.Errorf("render batch %s: %w", batch.ID, err)
			}
			path := filepath.Join(lotDir, fmt.Sprintf("lote_%s_%s.xml",
				batch.ID, time.Now().Format("20060102150405")))
			if err := storage.WriteFile(path, []byte(lot)); err != nil {
				return err
			}

			batch.BatchXmlPath = path
			if err := tx.Save(&batch).Error; err != nil {
				return fmt.Errorf("save batch %s: %w", batch.ID, err)
			}
			created = append(created, batch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("created %d batches for conversion %s", len(created), convertedID)
	return created, nil
}

// loadMembers re-parses the stored signed documents into lot members. The
// member id is the event identifier encoded in the file name, without the
// signing suffix.
func loadMembers(signed []models.SignedXml) ([]reinf.LotMember, error) {
	members := make([]reinf.LotMember, 0, len(signed))
	for _, sx := range signed {
		data, err := os.ReadFile(sx.Path)
		if err != nil {
			return nil, fmt.Errorf("read signed event %s: %w", sx.Path, err)
		}
		doc := etree.NewDocument()
		if err := doc.ReadFromString(string(data)); err != nil || doc.Root() == nil {
			return nil, fmt.Errorf("signed event %s is not valid XML", sx.Path)
		}
		members = append(members, reinf.LotMember{
			ID:      memberID(sx.Path),
			Element: doc.Root(),
		})
	}
	return members, nil
}

func memberID(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".xml")
	return strings.TrimSuffix(base, "_signed")
}

// SubmitResult reports the outcome of one submission attempt.
type SubmitResult struct {
	Batch    *models.Batch
	Protocol string
	// Degraded is set when the gateway accepted the lot but no protocol
	// number could be extracted; the batch then stays in Created so the
	// submission can be retried.
	Degraded bool
	Detail   string
}

// Submit sends the batch's lot document to the gateway. Only a batch in
// Created may be submitted. Acceptance with a protocol moves it to Sent; a
// rejected lot (422 or any other error status) moves it to Error with the
// gateway's response preserved; a transport failure leaves it untouched.
func (s *Service) Submit(ctx context.Context, batchID string) (*SubmitResult, error) {
	batch, err := models.FindBatchByID(s.db, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.Status != models.BatchStatusCreated {
		return nil, &StateConflictError{BatchID: batchID, Status: batch.Status, Op: "submit"}
	}

	lotXML, err := os.ReadFile(batch.BatchXmlPath)
	if err != nil {
		return nil, fmt.Errorf("read lot document %s: %w", batch.BatchXmlPath, err)
	}

	resp, err := s.gateway.SubmitLot(ctx, string(lotXML))
	if err != nil {
		// transport failure: status unchanged, retry later
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		protocol := gateway.ExtractProtocol(resp.Body)
		if protocol == "" {
			log.Warnf("batch %s accepted but response carries no protocol number", batchID)
			return &SubmitResult{Batch: batch, Degraded: true, Detail: resp.Body}, nil
		}
		now := time.Now()
		batch.Status = models.BatchStatusSent
		batch.ProtocolNumber = &protocol
		batch.SentDate = &now
		if err := s.db.Save(batch).Error; err != nil {
			return nil, fmt.Errorf("persist submission of batch %s: %w", batchID, err)
		}
		return &SubmitResult{Batch: batch, Protocol: protocol}, nil

	default:
		// 422 carries the validation report; any other status is equally fatal
		batch.Status = models.BatchStatusError
		if err := s.db.Save(batch).Error; err != nil {
			return nil, fmt.Errorf("persist rejection of batch %s: %w", batchID, err)
		}
		log.Errorf("batch %s rejected with status %d", batchID, resp.StatusCode)
		return &SubmitResult{Batch: batch, Detail: resp.Body}, nil
	}
}

// Delete removes a batch that was never submitted: its events are released
// back to the unbatched pool, the lot file is removed and the row deleted.
func (s *Service) Delete(batchID string) error {
	batch, err := models.FindBatchByID(s.db, batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.Status != models.BatchStatusCreated {
		return &StateConflictError{BatchID: batchID, Status: batch.Status, Op: "delete"}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SignedXml{}).
			Where("batch_id = ?", batchID).
			Update("batch_id", nil).Error; err != nil {
			return fmt.Errorf("release events of batch %s: %w", batchID, err)
		}
		if err := tx.Delete(&models.Batch{}, "id = ?", batchID).Error; err != nil {
			return fmt.Errorf("delete batch %s: %w", batchID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if batch.BatchXmlPath != "" {
		if err := os.Remove(batch.BatchXmlPath); err != nil && !os.IsNotExist(err) {
			log.Warnf("lot document %s not removed: %v", batch.BatchXmlPath, err)
		}
	}
	return nil
}

// QueryResult reports one polling round.
type QueryResult struct {
	Batch     *models.Batch
	RawStatus string
}

// QueryStatus polls the gateway for the processing situation of a submitted
// batch and maps it onto the lifecycle. An unrecognized situation leaves the
// status unchanged and surfaces the raw descriptor.
func (s *Service) QueryStatus(ctx context.Context, batchID string) (*QueryResult, error) {
	batch, err := models.FindBatchByID(s.db, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.ProtocolNumber == nil || *batch.ProtocolNumber == "" {
		return nil, &StateConflictError{BatchID: batchID, Status: batch.Status, Op: "query"}
	}

	resp, err := s.gateway.QueryProtocol(ctx, *batch.ProtocolNumber)
	if err != nil {
		return nil, err
	}

	raw := gateway.ExtractStatus(resp.Body)
	mapped, known := mapSituation(raw)
	if known && mapped != batch.Status {
		batch.Status = mapped
		if err := s.db.Save(batch).Error; err != nil {
			return nil, fmt.Errorf("persist status of batch %s: %w", batchID, err)
		}
	}
	if !known {
		log.Warnf("batch %s: unrecognized processing situation %q", batchID, raw)
	}
	return &QueryResult{Batch: batch, RawStatus: raw}, nil
}

func mapSituation(raw string) (models.BatchStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PROCESSADO":
		return models.BatchStatusProcessed, true
	case "PROCESSANDO", "EM PROCESSAMENTO":
		return models.BatchStatusProcessing, true
	case "ERRO":
		return models.BatchStatusError, true
	default:
		return "", false
	}
}
