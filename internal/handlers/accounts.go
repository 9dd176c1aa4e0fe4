package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/scholar/internal/auth"
	"github.com/BradenHooton/scholar/internal/models"
	pkghttp "github.com/BradenHooton/scholar/pkg/http"
	"github.com/go-chi/chi/v5"
)

var nowFunc = time.Now

// AccountServiceInterface defines the interface for account administration
type AccountServiceInterface interface {
	List(ctx context.Context, limit, offset int) ([]*models.PublicAccount, error)
	Get(ctx context.Context, id string) (*models.PublicAccount, error)
	SetActive(ctx context.Context, actorID, id string, active bool) error
	Unlock(ctx context.Context, actorID, id string) error
	ChangeRole(ctx context.Context, actorID, id string, role models.Role) error
}

// AccountHandler serves the caller's own account and the admin account endpoints
type AccountHandler struct {
	service AccountServiceInterface
	logger  *slog.Logger
}

func NewAccountHandler(service AccountServiceInterface, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, logger: logger}
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin moderator editor api"`
}

// ListAccountsResponse is a page of accounts
type ListAccountsResponse struct {
	Accounts []*models.PublicAccount `json:"accounts"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

// Me handles GET /accounts/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromContext(r)
	if account == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account.Public(nowFunc()))
}

// List handles GET /admin/accounts?limit=&offset=
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20, 1, 100)
	if err != nil {
		pkghttp.WriteBadRequest(w, "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<31-1)
	if err != nil {
		pkghttp.WriteBadRequest(w, "offset must be a non-negative integer")
		return
	}

	accounts, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListAccountsResponse{Accounts: accounts, Limit: limit, Offset: offset})
}

// Get handles GET /admin/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account)
}

// SetActive handles PATCH /admin/accounts/{id}/status
func (h *AccountHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SetActiveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.SetActive(r.Context(), actor.ID, chi.URLParam(r, "id"), *req.IsActive); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unlock handles POST /admin/accounts/{id}/unlock
func (h *AccountHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Unlock(r.Context(), actor.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole handles PATCH /admin/accounts/{id}/role
func (h *AccountHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetAccountFromContext(r)
	if actor == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangeRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ChangeRole(r.Context(), actor.ID, chi.URLParam(r, "id"), models.Role(req.Role)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an optional integer query parameter within [min, max]
func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, strconv.ErrRange
	}
	return v, nil
}
