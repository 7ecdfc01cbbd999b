package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/services"
)

// OperationService é o que OperationHandler usa de services.OperationService.
type OperationService interface {
	CreateOperation(ctx context.Context, req services.CreateOperationRequest) (models.Operation, error)
	AddAsset(ctx context.Context, req services.AddAssetRequest) (models.Asset, error)
	Aggregate(ctx context.Context, operationID string) (services.OperationAggregate, error)
}

// OperationHandler lida com operações e seus ativos.
type OperationHandler struct {
	ops OperationService
	log *zap.Logger
}

func NewOperationHandler(ops OperationService, log *zap.Logger) *OperationHandler {
	return &OperationHandler{ops: ops, log: log}
}

type createOperationBody struct {
	Name               string              `json:"name"`
	Warehouse          models.Party        `json:"warehouse"`
	Client             models.Party        `json:"client"`
	Bank               models.Party        `json:"bank"`
	GiroValue          decimal.NullDecimal `json:"giro_value"`
	EndorsementValue   decimal.NullDecimal `json:"endorsement_value"`
	GuaranteeRiskRatio string              `json:"guarantee_risk_ratio"`
}

// Create cadastra uma operação.
// POST /operations
func (h *OperationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createOperationBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	op, err := h.ops.CreateOperation(r.Context(), services.CreateOperationRequest(body))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

type addAssetBody struct {
	Description    string          `json:"description"`
	Serial         *string         `json:"serial"`
	Value          decimal.Decimal `json:"value"`
	DeliveryStatus *string         `json:"delivery_status"`
}

// AddAsset registra um ativo depositado na operação.
// POST /operations/{id}/assets
func (h *OperationHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	var body addAssetBody
	if err := readJSON(r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	a, err := h.ops.AddAsset(r.Context(), services.AddAssetRequest{
		OperationID:    chi.URLParam(r, "id"),
		Description:    body.Description,
		Serial:         body.Serial,
		Value:          body.Value,
		DeliveryStatus: body.DeliveryStatus,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Aggregate devolve os indicadores consolidados.
// GET /operations/{id}/aggregate
func (h *OperationHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	agg, err := h.ops.Aggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}
