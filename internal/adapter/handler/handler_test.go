package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	_ "modernc.org/sqlite"
)

type testServices struct {
	items     *service.ItemService
	movements *service.MovementService
	orders    *service.OrderService
	stock     *service.StockService
}

func newTestServices(t *testing.T) testServices {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	repo := storage.NewSQLiteAdapter(db)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))

	stock := service.NewStockService(repo)
	return testServices{
		items:     service.NewItemService(repo, stock),
		movements: service.NewMovementService(repo),
		orders:    service.NewOrderService(repo, service.WithIdempotency(storage.NewLRUAdapter(0, 0))),
		stock:     stock,
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestServices(t)
	h := NewHTTPHandler(svc.items, svc.movements, svc.orders, svc.stock, nil)
	return NewRouter(h, "stock-ledger-test", tracenoop.NewTracerProvider())
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if path != "/health" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
