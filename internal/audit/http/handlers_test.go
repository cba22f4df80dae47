package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/voucher-ledger/internal/audit"
)

type fakeTimeline struct {
	filters audit.TimelineFilters
	rows    []audit.TimelineRow
}

func (f *fakeTimeline) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	f.filters = filters
	return audit.Result{Rows: f.rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}, nil
}

func (f *fakeTimeline) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	f.filters = filters
	return f.rows, nil
}

func newTestRouter(svc *fakeTimeline) http.Handler {
	h := NewHandler(nil, svc)
	h.now = func() time.Time { return time.Date(2024, 4, 30, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &fakeTimeline{rows: []audit.TimelineRow{{ID: 1, Action: "voucher.create", Entity: "voucher", EntityID: "9"}}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/audit/?from=2024-04-01&to=2024-04-15&entity=voucher&entity_id=9&actor_id=7&page=2&page_size=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), svc.filters.From)
	require.Equal(t, time.Date(2024, 4, 15, 23, 59, 59, 999999999, time.UTC), svc.filters.To)
	require.Equal(t, "voucher", svc.filters.Entity)
	require.Equal(t, "9", svc.filters.EntityID)
	require.Equal(t, int64(7), svc.filters.ActorID)
	require.Equal(t, 2, svc.filters.Page)
	require.Equal(t, 10, svc.filters.PageSize)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &fakeTimeline{}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 7*24*time.Hour, svc.filters.To.Sub(svc.filters.From))
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newTestRouter(&fakeTimeline{})
	for _, query := range []string{
		"from=yesterday",
		"from=2024-04-20&to=2024-04-01",
		"from=2023-01-01&to=2024-04-01",
		"page=-1",
		"actor_id=abc",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestExportWritesCSV(t *testing.T) {
	svc := &fakeTimeline{rows: []audit.TimelineRow{{
		ID: 3, At: time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC), ActorID: 7,
		Action: "bank_reconciliation.unreconcile", Entity: "voucher_entry", EntityID: "12",
	}}}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export.csv?entity=voucher_entry", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "3,2024-04-02T08:00:00Z,7,bank_reconciliation.unreconcile,voucher_entry,12"))
	require.Equal(t, "voucher_entry", svc.filters.Entity)
}
