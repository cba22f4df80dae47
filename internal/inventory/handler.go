package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountItemRoutes registers item read routes.
func (h *Handler) MountItemRoutes(r chi.Router) {
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/items/{id}/movements", h.handleMovements)
}

// MountTransferRoutes registers stock transfer routes.
func (h *Handler) MountTransferRoutes(r chi.Router) {
	r.Post("/", h.handleCreateTransfer)
	r.Get("/{id}", h.handleGetTransfer)
	r.Post("/{id}/complete", h.handleCompleteTransfer)
}

type transferItemRequest struct {
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	Quantity    decimal.Decimal `json:"quantity"`
	BatchNumber string          `json:"batch_number" validate:"max=64"`
}

type transferRequest struct {
	Number       string                `json:"number" validate:"required,max=64"`
	Date         string                `json:"date" validate:"required,datetime=2006-01-02"`
	FromGodownID int64                 `json:"from_godown_id" validate:"required,gt=0"`
	ToGodownID   int64                 `json:"to_godown_id" validate:"required,gt=0"`
	Status       string                `json:"status" validate:"omitempty,oneof=PENDING COMPLETED"`
	Narration    string                `json:"narration" validate:"max=500"`
	Items        []transferItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.fail(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := MovementFilter{ItemID: id}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if filter.From, err = time.Parse(dateLayout, v); err != nil {
			httpx.RespondError(w, shared.Validationf("inventory: invalid from date %q", v))
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = time.Parse(dateLayout, v); err != nil {
			httpx.RespondError(w, shared.Validationf("inventory: invalid to date %q", v))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			httpx.RespondError(w, shared.Validationf("inventory: invalid limit %q", v))
			return
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	input := TransferInput{
		Number:       req.Number,
		Date:         date,
		FromGodownID: req.FromGodownID,
		ToGodownID:   req.ToGodownID,
		Status:       TransferStatus(req.Status),
		Narration:    req.Narration,
		ActorID:      actorID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, TransferItem{ItemID: item.ItemID, Quantity: item.Quantity, BatchNumber: item.BatchNumber})
	}
	transfer, err := h.service.CreateTransfer(r.Context(), input)
	if err != nil {
		h.fail(w, "create transfer", err)
		return
	}
	h.logger.Info("stock transfer created", slog.String("id", transfer.ID.String()), slog.String("number", transfer.Number), slog.String("status", string(transfer.Status)))
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrInvalidID)
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.fail(w, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleCompleteTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrInvalidID)
		return
	}
	transfer, err := h.service.CompleteTransfer(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, "complete transfer", err)
		return
	}
	h.logger.Info("stock transfer completed", slog.String("id", transfer.ID.String()), slog.Int("movements", len(transfer.Movements)))
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
