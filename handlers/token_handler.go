package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/services"
)

// TokenService é o que TokenHandler usa de services.TokenLifecycleService.
type TokenService interface {
	Tokenize(ctx context.Context, assetID string) (services.TokenizeResult, error)
	TokenizeBundle(ctx context.Context, operationID string, assetIDs []string) (services.TokenizeResult, error)
	TransferToWarehouse(ctx context.Context, operationID string, assetIDs []string) (services.BatchResult, error)
	Burn(ctx context.Context, operationID string, assetIDs []string) (services.BatchResult, error)
}

// TokenHandler expõe mint, transferência e queima.
type TokenHandler struct {
	tokens TokenService
	log    *zap.Logger
}

func NewTokenHandler(tokens TokenService, log *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, log: log}
}

type assetIDsRequest struct {
	AssetIDs []string `json:"asset_ids"`
}

// TokenizeAsset emite o token de um ativo pronto.
// POST /assets/{id}/tokenize
func (h *TokenHandler) TokenizeAsset(w http.ResponseWriter, r *http.Request) {
	res, err := h.tokens.Tokenize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// TokenizeBundle emite um token compartilhado por vários ativos.
// POST /operations/{id}/tokenize
func (h *TokenHandler) TokenizeBundle(w http.ResponseWriter, r *http.Request) {
	var body assetIDsRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	res, err := h.tokens.TokenizeBundle(r.Context(), chi.URLParam(r, "id"), body.AssetIDs)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Transfer devolve ao armazém os tokens dos ativos aprovados. Falhas por
// item vêm no corpo; o status é 200 mesmo com itens recusados.
// POST /operations/{id}/transfers
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.tokens.TransferToWarehouse)
}

// Release queima os tokens dos ativos aprovados.
// POST /operations/{id}/releases
func (h *TokenHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, h.tokens.Burn)
}

func (h *TokenHandler) batch(w http.ResponseWriter, r *http.Request,
	run func(ctx context.Context, operationID string, assetIDs []string) (services.BatchResult, error)) {
	var body assetIDsRequest
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if len(body.AssetIDs) == 0 {
		writeError(w, r, h.log, badRequest("asset_ids não pode ser vazio"))
		return
	}
	res, err := run(r.Context(), chi.URLParam(r, "id"), body.AssetIDs)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
