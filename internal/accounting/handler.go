package accounting

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/voucher-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/voucher-ledger/internal/shared"
)

// Handler exposes the account directory over HTTP.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory) *Handler {
	return &Handler{logger: logger, directory: directory, validator: validator.New()}
}

// MountRoutes registers HTTP routes for the account directory.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
}

type createAccountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
	Type string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.directory.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.directory.ByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acct)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acct, err := h.directory.Create(r.Context(), CreateInput{
		Code:    req.Code,
		Name:    req.Name,
		Type:    AccountType(req.Type),
		ActorID: actorID,
	})
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("create account", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("account created", slog.Int64("id", acct.ID), slog.String("code", acct.Code))
	httpx.JSON(w, http.StatusCreated, acct)
}
