package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil, nil, nil))
	r := chi.NewRouter()
	r.Route("/api/inventory", h.MountItemRoutes)
	r.Route("/api/stock-transfers", h.MountTransferRoutes)
	return r
}

func withActor(req *http.Request, actorID int64) *http.Request {
	return req.WithContext(shared.ContextWithActor(req.Context(), actorID))
}

const transferBody = `{"number":"TRF-9","date":"2024-04-03","from_godown_id":1,"to_godown_id":2,"items":[{"item_id":1,"quantity":"2"}]}`

func TestHandlerCreateTransferRequiresActor(t *testing.T) {
	router := newTestRouter(newMemoryRepo(Item{ID: 1}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stock-transfers/", strings.NewReader(transferBody)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerTransferLifecycle(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, CurrentStock: qty("5"), PurchaseRate: 100})
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/stock-transfers/", strings.NewReader(transferBody)), 4)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, TransferPending, created.Status)

	rec = httptest.NewRecorder()
	req = withActor(httptest.NewRequest(http.MethodPost, "/api/stock-transfers/"+created.ID.String()+"/complete", nil), 4)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	req = withActor(httptest.NewRequest(http.MethodPost, "/api/stock-transfers/"+created.ID.String()+"/complete", nil), 4)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stock-transfers/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Len(t, fetched.Movements, 2)
}

func TestHandlerTransferSameGodownIsBadRequest(t *testing.T) {
	router := newTestRouter(newMemoryRepo(Item{ID: 1}))
	body := strings.Replace(transferBody, `"to_godown_id":2`, `"to_godown_id":1`, 1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodPost, "/api/stock-transfers/", strings.NewReader(body)), 4))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerItemMovements(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, SKU: "A", CurrentStock: qty("5")})
	processor := NewProcessor(nil, true)
	require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := processor.Apply(ctx, tx, []Movement{{ItemID: 1, Type: MovementIn, Quantity: qty("1"), Rate: 10, Amount: 10}})
		return err
	}))
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inventory/items/1/movements", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var movements []Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movements))
	require.Len(t, movements, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inventory/items/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
