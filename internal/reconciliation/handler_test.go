package reconciliation

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/money"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

func newTestRouter(store *memoryStore) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/bank-reconciliation", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newTestService(store, nil)).MountRoutes)
	return r
}

func serve(router http.Handler, method, path, body string, actorID int64) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actorID > 0 {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actorID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReconcileFlow(t *testing.T) {
	store := newMemoryStore(bankEntry(1, day(time.April, 2), 50000, 0))
	router := newTestRouter(store)

	rec := serve(router, http.MethodGet, "/api/bank-reconciliation/accounts/13?as_of=2024-04-30", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	var st Statement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, money.Amount(0), st.BankBalance)
	require.Len(t, st.Uncleared, 1)

	rec = serve(router, http.MethodPut, "/api/bank-reconciliation/entries/1", `{"bank_clearing_date":"2024-04-05"}`, 3)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Changed)

	rec = serve(router, http.MethodGet, "/api/bank-reconciliation/accounts/13?as_of=2024-04-30", "", 0)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, money.Amount(50000), st.BankBalance)
	require.Empty(t, st.Uncleared)

	rec = serve(router, http.MethodDelete, "/api/bank-reconciliation/entries/1", "", 3)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, store.entries[1].ClearingDate)
}

func TestHandlerReconcileErrors(t *testing.T) {
	router := newTestRouter(newMemoryStore(bankEntry(1, day(time.April, 2), 50000, 0)))

	rec := serve(router, http.MethodPut, "/api/bank-reconciliation/entries/1", `{"bank_clearing_date":"2024-04-05"}`, 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPut, "/api/bank-reconciliation/entries/1", `{"bank_clearing_date":"05/04/2024"}`, 3)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPut, "/api/bank-reconciliation/entries/1", `{"bank_clearing_date":"2024-03-01"}`, 3)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodPut, "/api/bank-reconciliation/entries/9", `{"bank_clearing_date":"2024-04-05"}`, 3)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/api/bank-reconciliation/accounts/13?as_of=yesterday", "", 0)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/api/bank-reconciliation/accounts/77", "", 0)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
