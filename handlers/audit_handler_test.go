package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gov-dx-sandbox/audit-ledger/database"
	"github.com/gov-dx-sandbox/audit-ledger/models"
	"github.com/gov-dx-sandbox/audit-ledger/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type handlerFixture struct {
	mux      *http.ServeMux
	appender *services.Appender
	db       *gorm.DB
}

func setupHandler(t *testing.T) *handlerFixture {
	db := services.SetupSQLiteTestDB(t)
	store := database.NewGormLedgerStore(db)
	appender := services.NewAppender(store)

	mux := http.NewServeMux()
	NewLedgerHandler(services.NewQueryService(store), services.NewVerifier(store)).Register(mux)

	return &handlerFixture{mux: mux, appender: appender, db: db}
}

func (f *handlerFixture) seed(t *testing.T, actorID, action, subjectType, subjectID string) *models.AuditRecord {
	t.Helper()
	record, err := f.appender.Append(context.Background(), &models.AuditEvent{
		EventID: uuid.New(),
		Actor:   models.Actor{ID: &actorID},
		Action:  action,
		Subject: models.Subject{Type: subjectType, ID: subjectID},
		Outcome: models.OutcomeSuccess,
	})
	require.NoError(t, err)
	return record
}

func (f *handlerFixture) get(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestLedgerHandler_GetRecords(t *testing.T) {
	f := setupHandler(t)
	f.seed(t, "actor-a", "CREATE", "INVOICE", "X1")
	f.seed(t, "actor-b", "UPDATE", "INVOICE", "X1")

	t.Run("ReturnsPaginationEnvelope", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records?page=1&limit=10")
		require.Equal(t, http.StatusOK, rec.Code)

		var page services.PagedRecords
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, int64(2), page.Total)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "UPDATE", page.Data[0].Action) // newest first
	})

	t.Run("ActionFilter", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records?action=CREATE")
		require.Equal(t, http.StatusOK, rec.Code)

		var page services.PagedRecords
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, int64(1), page.Total)
	})

	t.Run("InvalidDateParam", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records?from=yesterday")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_GetRecord(t *testing.T) {
	f := setupHandler(t)
	record := f.seed(t, "actor-a", "CREATE", "USER", "u-1")

	t.Run("Found", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records/"+record.ID.String())
		require.Equal(t, http.StatusOK, rec.Code)

		var got models.AuditRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, record.Hash, got.Hash)
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_GetTimeline(t *testing.T) {
	f := setupHandler(t)
	f.seed(t, "actor-a", "CREATE", "INVOICE", "X1")
	f.seed(t, "actor-b", "UPDATE", "INVOICE", "X1")
	f.seed(t, "actor-c", "APPROVE", "INVOICE", "X1")

	t.Run("ChronologicalHistory", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records/timeline?subjectType=INVOICE&subjectId=X1")
		require.Equal(t, http.StatusOK, rec.Code)

		var records []models.AuditRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 3)
		assert.Equal(t, "CREATE", records[0].Action)
		assert.Equal(t, "APPROVE", records[2].Action)
	})

	t.Run("MissingParams", func(t *testing.T) {
		rec := f.get(t, "/api/v1/records/timeline?subjectType=INVOICE")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLedgerHandler_GetStats(t *testing.T) {
	f := setupHandler(t)
	f.seed(t, "actor-a", "CREATE", "INVOICE", "X1")

	rec := f.get(t, "/api/v1/records/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats database.LedgerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ActionBreakdown["CREATE"])
}

func TestLedgerHandler_Verify(t *testing.T) {
	f := setupHandler(t)
	for i := 0; i < 4; i++ {
		f.seed(t, "actor-a", "CREATE", "DOCUMENT", fmt.Sprintf("d-%d", i))
	}

	t.Run("CleanChain", func(t *testing.T) {
		rec := f.get(t, "/api/v1/verify")
		require.Equal(t, http.StatusOK, rec.Code)

		var report services.VerificationReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.True(t, report.OK)
		assert.Equal(t, int64(4), report.Checked)
	})

	t.Run("TamperedChainIsConflict", func(t *testing.T) {
		require.NoError(t, f.db.Exec(
			`UPDATE audit_records SET new_value = '{"forged":true}' WHERE sequence = 2`).Error)

		rec := f.get(t, "/api/v1/verify")
		require.Equal(t, http.StatusConflict, rec.Code)

		var report services.VerificationReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.False(t, report.OK)
		assert.Equal(t, uint64(2), report.DivergenceAt)
	})

	t.Run("InvalidFromSequence", func(t *testing.T) {
		rec := f.get(t, "/api/v1/verify?fromSequence=abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
