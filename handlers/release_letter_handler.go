package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"
)

// ReleaseLetterService é o que ReleaseLetterHandler usa de services.ReleaseLetterService.
type ReleaseLetterService interface {
	Create(ctx context.Context, req services.CreateReleaseLetterRequest) (models.ReleaseLetter, error)
	Get(ctx context.Context, letterID string) (models.ReleaseLetter, error)
	ListByOperation(ctx context.Context, operationID string) ([]models.ReleaseLetter, error)
	Approve(ctx context.Context, letterID string) (services.ApprovalResult, error)
	Reject(ctx context.Context, letterID, reason string) (models.ReleaseLetter, error)
}

// ReleaseLetterHandler lida com cartas de liberação.
type ReleaseLetterHandler struct {
	letters ReleaseLetterService
	log     *zap.Logger
}

func NewReleaseLetterHandler(letters ReleaseLetterService, log *zap.Logger) *ReleaseLetterHandler {
	return &ReleaseLetterHandler{letters: letters, log: log}
}

// Create cria uma carta PENDING.
// POST /operations/{id}/release-letters
func (h *ReleaseLetterHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetIDs []string              `json:"asset_ids"`
		Source   models.SourceDocument `json:"source"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	letter, err := h.letters.Create(r.Context(), services.CreateReleaseLetterRequest{
		OperationID: chi.URLParam(r, "id"),
		AssetIDs:    body.AssetIDs,
		Source:      body.Source,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, letter)
}

// List lista as cartas da operação.
// GET /operations/{id}/release-letters
func (h *ReleaseLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	letters, err := h.letters.ListByOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, letters)
}

// Get busca uma carta.
// GET /release-letters/{id}
func (h *ReleaseLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	letter, err := h.letters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, letter)
}

// Approve executa a saga de aprovação.
// POST /release-letters/{id}/approve
func (h *ReleaseLetterHandler) Approve(w http.ResponseWriter, r *http.Request) {
	res, err := h.letters.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reject rejeita uma carta pendente.
// POST /release-letters/{id}/reject
func (h *ReleaseLetterHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	letter, err := h.letters.Reject(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, letter)
}
