package credential

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/deployify/internal/apperr"
	"github.com/wisbric/deployify/internal/httpserver"
	"github.com/wisbric/deployify/pkg/provider"
)

// Handler provides HTTP handlers for the credential vault surface.
type Handler struct {
	vault  *Vault
	logger *slog.Logger
}

// NewHandler creates a credential Handler.
func NewHandler(vault *Vault, logger *slog.Logger) *Handler {
	return &Handler{vault: vault, logger: logger}
}

// Routes returns a chi.Router with the credential vault routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/validate", h.handleValidate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.vault.Create(r.Context(), req.Owner, provider.Kind(req.Provider), req.Name, req.Credentials)
	if err != nil {
		h.respondError(w, "creating credential", err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, summary)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	summaries, err := h.vault.List(r.Context(), owner)
	if err != nil {
		h.respondError(w, "listing credentials", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"credentials": summaries,
		"count":       len(summaries),
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.vault.Update(r.Context(), id, r.URL.Query().Get("owner"), UpdateInput{
		Name:        req.Name,
		IsActive:    req.IsActive,
		Credentials: req.Credentials,
	})
	if err != nil {
		h.respondError(w, "updating credential", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, summary)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	if err := h.vault.Delete(r.Context(), id, r.URL.Query().Get("owner")); err != nil {
		h.respondError(w, "deleting credential", err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}

	resp, err := h.vault.Validate(r.Context(), id)
	if err != nil {
		h.respondError(w, "validating credential", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.NotFoundKind:
			httpserver.RespondError(w, http.StatusNotFound, "not_found", appErr.Message)
		case apperr.ConflictErrorKind:
			httpserver.RespondError(w, http.StatusConflict, "conflict", appErr.Message)
		case apperr.InvalidCredentialErrorKind, apperr.ValidationErrorKind:
			httpserver.RespondError(w, http.StatusBadRequest, "validation_error", appErr.Message)
		case apperr.MissingCredentialKind:
			httpserver.RespondError(w, http.StatusNotFound, "missing_credential", appErr.Message)
		default:
			h.logger.Error(action, "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process request")
		}
		return
	}

	h.logger.Error(action, "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process request")
}
