package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aidin1998/swapdesk/internal/repository"
	"github.com/Aidin1998/swapdesk/internal/trade"
)

func newTestServer(t *testing.T) (*gin.Engine, *repository.GormRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo, err := repository.NewGormRepository(logger, db)
	require.NoError(t, err)

	registry := trade.NewRegistry(logger)
	engine := trade.NewEngine(logger, repo, registry, nil, trade.Options{})
	return NewServer(logger, engine, nil).Router(), repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func beginSession(t *testing.T, router *gin.Engine, a, b string) trade.View {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", gin.H{"initiator": a, "partner": b})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view trade.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t)
	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFullExchangeFlowOverHTTP(t *testing.T) {
	router, repo := newTestServer(t)
	ctx := t.Context()
	require.NoError(t, repo.CreateItem(ctx, "alice", "x1"))
	require.NoError(t, repo.Deposit(ctx, "bob", decimal.NewFromInt(50)))

	view := beginSession(t, router, "alice", "bob")
	base := "/api/v1/sessions/" + view.ID.String()

	w := doJSON(t, router, http.MethodPost, base+"/items", gin.H{"participant": "alice", "item_ref": "x1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPut, base+"/currency", gin.H{"participant": "bob", "amount": "20"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, base+"/proposal?participant=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap trade.Proposal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, []string{"x1"}, snap.Items)

	for _, pid := range []string{"alice", "bob"} {
		w = doJSON(t, router, http.MethodPost, base+"/lock", gin.H{"participant": pid})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, base+"/confirm", gin.H{"participant": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, base+"/confirm", gin.H{"participant": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	var final trade.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
	assert.Equal(t, "settled", final.State)

	owned, err := repo.IsOwned(ctx, "bob", "x1")
	require.NoError(t, err)
	assert.True(t, owned)
	balance, err := repo.CurrencyBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(20)))
}

func TestErrorStatusMapping(t *testing.T) {
	router, repo := newTestServer(t)
	ctx := t.Context()
	require.NoError(t, repo.CreateItem(ctx, "alice", "x1"))

	view := beginSession(t, router, "alice", "bob")
	base := "/api/v1/sessions/" + view.ID.String()

	// AlreadyActive -> 409
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", gin.H{"initiator": "alice", "partner": "carol"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// NotOwned -> 422
	w = doJSON(t, router, http.MethodPost, base+"/items", gin.H{"participant": "bob", "item_ref": "x1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// NotStaged -> 422
	w = doJSON(t, router, http.MethodDelete, base+"/items/x9?participant=alice", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// NotParticipant -> 400
	w = doJSON(t, router, http.MethodPost, base+"/lock", gin.H{"participant": "carol"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Locked (double lock) -> 409
	w = doJSON(t, router, http.MethodPost, base+"/lock", gin.H{"participant": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, base+"/lock", gin.H{"participant": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Confirm before both locked -> 409
	w = doJSON(t, router, http.MethodPost, base+"/confirm", gin.H{"participant": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown session -> 404
	w = doJSON(t, router, http.MethodGet, "/api/v1/sessions/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Bad id -> 400
	w = doJSON(t, router, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelAndFindByParticipant(t *testing.T) {
	router, _ := newTestServer(t)
	view := beginSession(t, router, "alice", "bob")
	base := "/api/v1/sessions/" + view.ID.String()

	w := doJSON(t, router, http.MethodGet, "/api/v1/participants/alice/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found trade.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	assert.Equal(t, view.ID, found.ID)

	w = doJSON(t, router, http.MethodPost, base+"/cancel", gin.H{"participant": "bob"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/participants/alice/session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A cancelled pair can start over.
	beginSession(t, router, "alice", "bob")
}

func TestBulkAddOverHTTP(t *testing.T) {
	router, repo := newTestServer(t)
	ctx := t.Context()
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.CreateItem(ctx, "alice", fmt.Sprintf("x%d", i)))
	}

	view := beginSession(t, router, "alice", "bob")
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+view.ID.String()+"/items/bulk",
		gin.H{"participant": "alice", "item_refs": []string{"x1", "x2", "x3", "y1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Added   int                `json:"added"`
		Skipped []trade.SkipReason `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Added)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "y1", resp.Skipped[0].ItemRef)
}

func TestMissingFieldsRejected(t *testing.T) {
	router, _ := newTestServer(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", gin.H{"initiator": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
