package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"
)

// BundleService é o que AssetHandler usa de services.BundleService.
type BundleService interface {
	GetBundleStatus(ctx context.Context, assetID string) (services.AssetState, error)
	RegisterDocument(ctx context.Context, req services.RegisterDocumentRequest) (services.AssetState, error)
	RecordSignature(ctx context.Context, req services.RecordSignatureRequest) (services.AssetState, error)
}

// AssetHandler lida com bundles, documentos e assinaturas de um ativo.
type AssetHandler struct {
	bundles BundleService
	log     *zap.Logger
}

func NewAssetHandler(bundles BundleService, log *zap.Logger) *AssetHandler {
	return &AssetHandler{bundles: bundles, log: log}
}

func documentKind(r *http.Request) (models.DocumentKind, error) {
	raw := chi.URLParam(r, "kind")
	kind, ok := models.ParseDocumentKind(strings.ToUpper(raw))
	if !ok {
		return "", apperrors.Newf(apperrors.CodeUnknownDocumentKind, "tipo de documento desconhecido: %q", raw)
	}
	return kind, nil
}

// GetBundle devolve o estado derivado do bundle.
// GET /assets/{id}/bundle
func (h *AssetHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	st, err := h.bundles.GetBundleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PutDocument registra o documento carregado.
// PUT /assets/{id}/documents/{kind}
func (h *AssetHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	kind, err := documentKind(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var body struct {
		ContentHash string `json:"content_hash"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	st, err := h.bundles.RegisterDocument(r.Context(), services.RegisterDocumentRequest{
		AssetID:     chi.URLParam(r, "id"),
		Kind:        kind,
		ContentHash: body.ContentHash,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PostSignature registra a assinatura de um papel.
// POST /assets/{id}/documents/{kind}/signatures
func (h *AssetHandler) PostSignature(w http.ResponseWriter, r *http.Request) {
	kind, err := documentKind(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var body struct {
		Role   string `json:"role"`
		Signer string `json:"signer"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	role, ok := models.ParseRole(strings.ToUpper(body.Role))
	if !ok {
		writeError(w, r, h.log, apperrors.Newf(apperrors.CodeUnknownRole, "papel desconhecido: %q", body.Role))
		return
	}
	st, err := h.bundles.RecordSignature(r.Context(), services.RecordSignatureRequest{
		AssetID: chi.URLParam(r, "id"),
		Kind:    kind,
		Role:    role,
		Signer:  body.Signer,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
