package vouchers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/voucher-ledger/internal/accounting"
	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes voucher posting over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handlePost)
	r.Get("/pdc/due", h.handleDuePDCs)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/regularize", h.handleRegularize)
}

type refRequest struct {
	ID   int64  `json:"id" validate:"omitempty,gt=0"`
	Code string `json:"code" validate:"max=64"`
}

func (r *refRequest) toRef() accounting.Ref {
	if r == nil {
		return accounting.Ref{}
	}
	return accounting.Ref{ID: r.ID, Code: r.Code}
}

type allocationRequest struct {
	CostCenterID int64           `json:"cost_center_id" validate:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
}

type itemRequest struct {
	ProductName     string          `json:"product_name" validate:"required,max=200"`
	Description     string          `json:"description" validate:"max=500"`
	HSNSAC          string          `json:"hsn_sac" validate:"max=16"`
	InventoryItemID *int64          `json:"inventory_item_id" validate:"omitempty,gt=0"`
	GodownID        *int64          `json:"godown_id" validate:"omitempty,gt=0"`
	Quantity        decimal.Decimal `json:"qty"`
	Rate            decimal.Decimal `json:"rate"`
	CGSTRate        decimal.Decimal `json:"cgst_rate"`
	SGSTRate        decimal.Decimal `json:"sgst_rate"`
	IGSTRate        decimal.Decimal `json:"igst_rate"`
	BatchNumber     string          `json:"batch_number" validate:"max=64"`
}

type lineRequest struct {
	Account     refRequest          `json:"account"`
	Debit       decimal.Decimal     `json:"debit"`
	Credit      decimal.Decimal     `json:"credit"`
	Allocations []allocationRequest `json:"allocations" validate:"dive"`
}

type postVoucherRequest struct {
	Type         string              `json:"type" validate:"required,oneof=SALES PURCHASE PAYMENT RECEIPT CONTRA JOURNAL CREDIT_NOTE DEBIT_NOTE"`
	Number       string              `json:"number" validate:"max=64"`
	Date         string              `json:"date" validate:"required,datetime=2006-01-02"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency" validate:"omitempty,len=3,alpha"`
	ExchangeRate decimal.Decimal     `json:"exchange_rate"`
	Counterparty *refRequest         `json:"counterparty"`
	CashAccount  *refRequest         `json:"cash_account"`
	Narration    string              `json:"narration" validate:"max=1000"`
	Items        []itemRequest       `json:"items" validate:"dive"`
	Allocations  []allocationRequest `json:"allocations" validate:"dive"`
	Lines        []lineRequest       `json:"lines" validate:"dive"`
	IsPostDated  bool                `json:"is_post_dated"`
	PDCDate      string              `json:"pdc_date" validate:"omitempty,datetime=2006-01-02"`
	IsOptional   bool                `json:"is_optional"`
}

func (req postVoucherRequest) toPostingRequest(actorID int64) PostingRequest {
	date, _ := time.Parse(dateLayout, req.Date)
	out := PostingRequest{
		Type:         VoucherType(req.Type),
		Number:       req.Number,
		Date:         date,
		Amount:       req.Amount,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
		Counterparty: req.Counterparty.toRef(),
		CashAccount:  req.CashAccount.toRef(),
		Narration:    req.Narration,
		IsPostDated:  req.IsPostDated,
		IsOptional:   req.IsOptional,
		ActorID:      actorID,
		Allocations:  toAllocations(req.Allocations),
	}
	if req.PDCDate != "" {
		pdc, _ := time.Parse(dateLayout, req.PDCDate)
		out.PDCDate = &pdc
	}
	for _, item := range req.Items {
		out.Items = append(out.Items, ItemInput{
			ProductName:     item.ProductName,
			Description:     item.Description,
			HSNSAC:          item.HSNSAC,
			InventoryItemID: item.InventoryItemID,
			GodownID:        item.GodownID,
			Quantity:        item.Quantity,
			Rate:            item.Rate,
			CGSTRate:        item.CGSTRate,
			SGSTRate:        item.SGSTRate,
			IGSTRate:        item.IGSTRate,
			BatchNumber:     item.BatchNumber,
		})
	}
	for _, line := range req.Lines {
		out.Lines = append(out.Lines, LineInput{
			Account:     line.Account.toRef(),
			Debit:       line.Debit,
			Credit:      line.Credit,
			Allocations: toAllocations(line.Allocations),
		})
	}
	return out
}

func toAllocations(in []allocationRequest) []AllocationInput {
	if len(in) == 0 {
		return nil
	}
	out := make([]AllocationInput, len(in))
	for i, a := range in {
		out[i] = AllocationInput{CostCenterID: a.CostCenterID, Amount: a.Amount}
	}
	return out
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req postVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	voucher, err := h.service.Post(r.Context(), req.toPostingRequest(actorID), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, "post voucher", err)
		return
	}
	h.logger.Info("voucher posted",
		slog.String("id", voucher.ID.String()),
		slog.String("number", voucher.Number),
		slog.String("type", string(voucher.Type)),
		slog.Int64("total_minor", int64(voucher.TotalDebit)),
	)
	httpx.JSON(w, http.StatusCreated, voucher)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, httpx.ErrInvalidID)
		return
	}
	voucher, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) handleRegularize(w http.ResponseWriter, r *http.Request) {
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
	voucher, err := h.service.Regularize(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, "regularize voucher", err)
		return
	}
	h.logger.Info("pdc regularized", slog.String("id", voucher.ID.String()), slog.String("number", voucher.Number))
	httpx.JSON(w, http.StatusOK, voucher)
}

func (h *Handler) handleDuePDCs(w http.ResponseWriter, r *http.Request) {
	var (
		asOf  time.Time
		limit int
		err   error
	)
	q := r.URL.Query()
	if v := q.Get("as_of"); v != "" {
		if asOf, err = time.Parse(dateLayout, v); err != nil {
			httpx.RespondError(w, shared.Validationf("vouchers: invalid as_of date %q", v))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			httpx.RespondError(w, shared.Validationf("vouchers: invalid limit %q", v))
			return
		}
	}
	vouchers, err := h.service.DuePDCs(r.Context(), asOf, limit)
	if err != nil {
		h.fail(w, "list due pdcs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vouchers)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
