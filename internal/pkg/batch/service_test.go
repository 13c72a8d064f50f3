package batch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reinfweb/ReinfWeb/app/models"
	"github.com/reinfweb/ReinfWeb/internal/pkg/gateway"
)

type fakeGateway struct {
	submitResp *gateway.Response
	submitErr  error
	queryResp  *gateway.Response
	queryErr   error
	submitted  []string
	queried    []string
}

func (f *fakeGateway) SubmitLot(_ context.Context, lotXML string) (*gateway.Response, error) {
	f.submitted = append(f.submitted, lotXML)
	return f.submitResp, f.submitErr
}

func (f *fakeGateway) QueryProtocol(_ context.Context, protocol string) (*gateway.Response, error) {
	f.queried = append(f.queried, protocol)
	return f.queryResp, f.queryErr
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.EventSpreadsheet{},
		&models.ConvertedSpreadsheet{},
		&models.SignedXml{},
		&models.Batch{},
	))
	return db
}

// seedConversion creates a conversion with n signed event files on disk.
func seedConversion(t *testing.T, db *gorm.DB, n int) *models.ConvertedSpreadsheet {
	t.Helper()
	dir := t.TempDir()

	sheet := models.EventSpreadsheet{
		CompanyID: "acme", CNPJ: "12345678000199", Event: "4020",
		Filename: "jan.xlsx", FileType: "xlsx",
		Status: models.FileStatusSigned, Path: filepath.Join(dir, "jan.xlsx"),
	}
	require.NoError(t, db.Create(&sheet).Error)

	converted := models.ConvertedSpreadsheet{
		SpreadsheetID: sheet.ID, Path: dir, TotalGeneratedXmls: n,
	}
	require.NoError(t, db.Create(&converted).Error)

	for i := 0; i < n; i++ {
		eventID := fmt.Sprintf("112345678000199202401011200%05d", i+1)
		path := filepath.Join(dir, eventID+"_signed.xml")
		content := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Reinf><evtRetPJ id="ID%s"/></Reinf>`, eventID)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, db.Create(&models.SignedXml{
			ConvertedSpreadsheetID: converted.ID, Path: path,
		}).Error)
	}
	return &converted
}

func TestCreateBatchesClaimsAndRenders(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 120)
	svc := NewService(db, &fakeGateway{}, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)
	require.Len(t, created, 3)

	var remaining int64
	require.NoError(t, db.Model(&models.SignedXml{}).
		Where("batch_id IS NULL").Count(&remaining).Error)
	assert.Zero(t, remaining, "every signed event must be claimed")

	sizes := []int64{50, 50, 20}
	for i, b := range created {
		assert.Equal(t, models.BatchStatusCreated, b.Status)
		assert.Nil(t, b.ProtocolNumber)

		var claimed int64
		require.NoError(t, db.Model(&models.SignedXml{}).
			Where("batch_id = ?", b.ID).Count(&claimed).Error)
		assert.Equal(t, sizes[i], claimed)

		data, err := os.ReadFile(b.BatchXmlPath)
		require.NoError(t, err)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(string(data)))
		assert.Len(t, doc.FindElements("//eventos/evento"), int(sizes[i]))
		assert.NotNil(t, doc.FindElement("//ideContribuinte/nrInsc"))
	}

	// nothing left to batch: a second round errors
	_, err = svc.CreateBatches(converted.ID)
	assert.ErrorContains(t, err, "no unbatched signed events")
}

func TestCreateBatchesWrapsEventIDFromFilename(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	svc := NewService(db, &fakeGateway{}, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	data, err := os.ReadFile(created[0].BatchXmlPath)
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(string(data)))

	evento := doc.FindElement("//eventos/evento")
	require.NotNil(t, evento)
	wantID := "ID" + fmt.Sprintf("112345678000199202401011200%05d", 1)
	assert.Equal(t, wantID, evento.SelectAttrValue("id", ""))
}

func TestCreateBatchesFailsOnRivalClaim(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 3)
	svc := NewService(db, &fakeGateway{}, "1", "12345678000199")

	rival := models.Batch{
		ConvertedSpreadsheetID: converted.ID,
		Status:                 models.BatchStatusCreated,
	}
	require.NoError(t, db.Create(&rival).Error)

	// a rival round assigns one of the events after the unbatched read but
	// before the claim
	stolen := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("rival_claim", func(tx *gorm.DB) {
		if stolen || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "tb_batches" {
			return
		}
		stolen = true
		var first models.SignedXml
		session := tx.Session(&gorm.Session{NewDB: true})
		require.NoError(t, session.Where("batch_id IS NULL").Order("path").First(&first).Error)
		require.NoError(t, session.Model(&models.SignedXml{}).
			Where("id = ?", first.ID).Update("batch_id", rival.ID).Error)
	}))
	defer db.Callback().Create().Remove("rival_claim")

	_, err := svc.CreateBatches(converted.ID)
	require.ErrorContains(t, err, "already claimed elsewhere")
	assert.True(t, stolen)

	// the failed round rolls back completely, rival claim included
	var assigned int64
	require.NoError(t, db.Model(&models.SignedXml{}).
		Where("batch_id IS NOT NULL").Count(&assigned).Error)
	assert.Zero(t, assigned)

	var batches int64
	require.NoError(t, db.Model(&models.Batch{}).Count(&batches).Error)
	assert.Equal(t, int64(1), batches, "only the pre-existing rival batch survives")
}

func TestSubmitMovesToSent(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 2)
	gw := &fakeGateway{submitResp: &gateway.Response{
		StatusCode: http.StatusCreated,
		Body:       `{"numeroProtocolo":"2.2024.0001"}`,
	}}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "2.2024.0001", result.Protocol)
	assert.False(t, result.Degraded)

	stored, err := models.FindBatchByID(db, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusSent, stored.Status)
	require.NotNil(t, stored.ProtocolNumber)
	assert.Equal(t, "2.2024.0001", *stored.ProtocolNumber)
	assert.NotNil(t, stored.SentDate)
	require.Len(t, gw.submitted, 1)
	assert.Contains(t, gw.submitted[0], "<envioLoteEventos>")
}

func TestSubmitRejectedMovesToError(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	gw := &fakeGateway{submitResp: &gateway.Response{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       `{"mensagem":"lote invalido"}`,
	}}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, `{"mensagem":"lote invalido"}`, result.Detail)

	stored, err := models.FindBatchByID(db, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusError, stored.Status)

	// error is terminal: no second submission
	_, err = svc.Submit(context.Background(), created[0].ID)
	var conflict *StateConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSubmitDegradedStaysCreated(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	gw := &fakeGateway{submitResp: &gateway.Response{
		StatusCode: http.StatusOK,
		Body:       "accepted",
	}}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	result, err := svc.Submit(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.True(t, result.Degraded)

	stored, err := models.FindBatchByID(db, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCreated, stored.Status, "degraded acceptance must stay retryable")
}

func TestSubmitTransportFailureLeavesStatus(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	gw := &fakeGateway{submitErr: fmt.Errorf("connection refused")}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), created[0].ID)
	require.Error(t, err)

	stored, err := models.FindBatchByID(db, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCreated, stored.Status)
}

func TestDeleteReleasesEvents(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 3)
	svc := NewService(db, &fakeGateway{}, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)
	lotPath := created[0].BatchXmlPath

	require.NoError(t, svc.Delete(created[0].ID))

	var released int64
	require.NoError(t, db.Model(&models.SignedXml{}).
		Where("batch_id IS NULL").Count(&released).Error)
	assert.Equal(t, int64(3), released)

	_, err = models.FindBatchByID(db, created[0].ID)
	assert.Error(t, err)
	_, err = os.Stat(lotPath)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteSentBatchConflicts(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	gw := &fakeGateway{submitResp: &gateway.Response{
		StatusCode: http.StatusOK,
		Body:       `{"protocolo":"2.2024.7"}`,
	}}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), created[0].ID)
	require.NoError(t, err)

	err = svc.Delete(created[0].ID)
	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.BatchStatusSent, conflict.Status)
}

func TestQueryStatusMapping(t *testing.T) {
	cases := []struct {
		situation string
		body      string
		want      models.BatchStatus
	}{
		{"PROCESSADO", `{"situacao":"PROCESSADO"}`, models.BatchStatusProcessed},
		{"PROCESSANDO", `{"situacaoProcessamentoLote":{"descricao":"PROCESSANDO"}}`, models.BatchStatusProcessing},
		{"ERRO", `{"situacaoProcessamentoLote":"ERRO"}`, models.BatchStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.situation, func(t *testing.T) {
			db := testDB(t)
			converted := seedConversion(t, db, 1)
			gw := &fakeGateway{
				submitResp: &gateway.Response{
					StatusCode: http.StatusOK,
					Body:       `{"numeroProtocolo":"2.2024.5"}`,
				},
				queryResp: &gateway.Response{
					StatusCode: http.StatusOK,
					Body:       tc.body,
				},
			}
			svc := NewService(db, gw, "1", "12345678000199")

			created, err := svc.CreateBatches(converted.ID)
			require.NoError(t, err)
			_, err = svc.Submit(context.Background(), created[0].ID)
			require.NoError(t, err)

			result, err := svc.QueryStatus(context.Background(), created[0].ID)
			require.NoError(t, err)
			assert.Equal(t, tc.situation, result.RawStatus)
			assert.Equal(t, tc.want, result.Batch.Status)
			assert.Equal(t, []string{"2.2024.5"}, gw.queried)
		})
	}
}

func TestQueryStatusUnknownSituation(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	gw := &fakeGateway{
		submitResp: &gateway.Response{StatusCode: http.StatusOK, Body: `{"protocolo":"2.2024.9"}`},
		queryResp:  &gateway.Response{StatusCode: http.StatusOK, Body: `{"situacaoProcessamentoLote":"AGUARDANDO"}`},
	}
	svc := NewService(db, gw, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), created[0].ID)
	require.NoError(t, err)

	result, err := svc.QueryStatus(context.Background(), created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "AGUARDANDO", result.RawStatus)
	assert.Equal(t, models.BatchStatusSent, result.Batch.Status)
}

func TestQueryStatusRequiresProtocol(t *testing.T) {
	db := testDB(t)
	converted := seedConversion(t, db, 1)
	svc := NewService(db, &fakeGateway{}, "1", "12345678000199")

	created, err := svc.CreateBatches(converted.ID)
	require.NoError(t, err)

	_, err = svc.QueryStatus(context.Background(), created[0].ID)
	var conflict *StateConflictError
	assert.ErrorAs(t, err, &conflict)
}
