package reconciliation

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes bank reconciliation over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}", h.handleStatement)
	r.Put("/entries/{id}", h.handleReconcile)
	r.Delete("/entries/{id}", h.handleUnreconcile)
}

type reconcileRequest struct {
	ClearingDate string `json:"bank_clearing_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var asOf time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		if asOf, err = time.Parse(dateLayout, v); err != nil {
			httpx.RespondError(w, shared.Validationf("reconciliation: invalid as_of date %q", v))
			return
		}
	}
	st, err := h.service.Statement(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, "bank statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(dateLayout, req.ClearingDate)
	res, err := h.service.Reconcile(r.Context(), id, date, actorID)
	if err != nil {
		h.fail(w, "reconcile entry", err)
		return
	}
	if res.Changed {
		h.logger.Info("entry reconciled", slog.Int64("entry_id", id), slog.String("date", req.ClearingDate))
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleUnreconcile(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Unreconcile(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, "unreconcile entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
