package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/common"
	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/db"
	"tripbuilder/crmsync/internal/db/repositories"
	"tripbuilder/crmsync/internal/models/gorm"
	"tripbuilder/crmsync/internal/services"
)

func newTestHandlers(t *testing.T) (*Handlers, *services.SyncLedger) {
	t.Helper()
	gdb, err := db.InitSQLiteORM(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	sx, err := db.SqlxFromGorm(gdb, "sqlite3")
	require.NoError(t, err)

	name := "Peru Trek"
	require.NoError(t, repositories.NewMemberRepo(gdb).Create(context.Background(), &gorm.Member{ID: "m1", Name: "Ana", BookingName: &name}))

	ledger := services.NewSyncLedger(repositories.NewSyncRunRepo(gdb), nil)
	return &Handlers{
		ledger:     ledger,
		report:     repositories.NewLinkReportRepo(sx),
		background: context.Background(),
	}, ledger
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) common.APIResponse {
	t.Helper()
	var resp common.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHandlers_SyncRuns(t *testing.T) {
	h, ledger := newTestHandlers(t)
	runID, err := ledger.Begin(context.Background(), constants.SyncKindImportBooking)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/runs", h.ListSyncRuns())
	r.Get("/runs/{id}", h.GetSyncRun())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?kind=import_booking", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	runs, ok := decode(t, rec).Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, runs, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+runID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(constants.APIStatusError), decode(t, rec).Status)
}

func TestHandlers_SyncReport(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.SyncReport()(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := decode(t, rec).Data.(map[string]interface{})
	require.True(t, ok)
	unlinked, ok := data["unlinked"].([]interface{})
	require.True(t, ok)
	require.Len(t, unlinked, 1)
	assert.Equal(t, "m1", unlinked[0].(map[string]interface{})["id"])
}

func TestHandlers_QueueDisabled(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.QueueStatus()(rec, httptest.NewRequest(http.MethodGet, "/queue", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec).Data.(map[string]interface{})
	assert.Equal(t, false, data["enabled"])
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, queryLimit(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)))
	assert.Equal(t, 7, queryLimit(httptest.NewRequest(http.MethodGet, "/?limit=7", nil)))
	assert.Equal(t, maxListLimit, queryLimit(httptest.NewRequest(http.MethodGet, "/?limit=99999", nil)))
}
