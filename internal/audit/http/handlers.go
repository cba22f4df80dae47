package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/odyssey-erp/voucher-ledger/internal/audit"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const (
	dateLayout       = "2006-01-02"
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService is the read contract the handler depends on.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler creates an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export audit timeline", err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-trail.csv"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// parseFilters defaults to the last seven days and caps the window at ninety.
func (h *Handler) parseFilters(q url.Values) (audit.TimelineFilters, error) {
	now := h.now().UTC()
	to := now
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, shared.Validationf("audit: invalid to date %q", v)
		}
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	from := to.Add(-defaultDateRange)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.TimelineFilters{}, shared.Validationf("audit: invalid from date %q", v)
		}
		from = t
	}
	if from.After(to) {
		return audit.TimelineFilters{}, shared.Validation("audit: from must not be after to")
	}
	if to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, shared.Validation("audit: date range exceeds 90 days")
	}
	filters := audit.TimelineFilters{
		From:     from,
		To:       to,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	var err error
	if filters.ActorID, err = optionalInt64(q, "actor_id"); err != nil {
		return audit.TimelineFilters{}, err
	}
	page, err := optionalInt64(q, "page")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	size, err := optionalInt64(q, "page_size")
	if err != nil {
		return audit.TimelineFilters{}, err
	}
	filters.Page, filters.PageSize = int(page), int(size)
	return filters, nil
}

func optionalInt64(q url.Values, key string) (int64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, shared.Validationf("audit: invalid %s %q", key, v)
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
