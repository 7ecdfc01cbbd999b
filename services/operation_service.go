package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/aggregate"
	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
)

// OperationService cadastra operações e ativos e agrega o estado dos
// bundles de cada operação.
type OperationService struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewOperationService(store Store, log *zap.Logger) *OperationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OperationService{store: store, log: log, now: time.Now}
}

// CreateOperationRequest descreve uma nova operação.
type CreateOperationRequest struct {
	Name               string
	Warehouse          models.Party
	Client             models.Party
	Bank               models.Party
	GiroValue          decimal.NullDecimal
	EndorsementValue   decimal.NullDecimal
	GuaranteeRiskRatio string
}

// CreateOperation grava a operação como PENDING.
func (s *OperationService) CreateOperation(ctx context.Context, req CreateOperationRequest) (models.Operation, error) {
	for role, p := range map[models.Role]models.Party{
		models.RoleWarehouse: req.Warehouse,
		models.RoleClient:    req.Client,
		models.RoleBank:      req.Bank,
	} {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Wallet) == "" {
			return models.Operation{}, apperrors.Newf(apperrors.CodeInvalidInput, "parte %s precisa de id e carteira", role)
		}
	}
	if req.GuaranteeRiskRatio != "" {
		if _, err := aggregate.ParseRatio(req.GuaranteeRiskRatio); err != nil {
			return models.Operation{}, apperrors.Wrap(apperrors.CodeInvalidInput, "guarantee_risk_ratio inválido", err)
		}
	}
	if req.GiroValue.Valid && req.GiroValue.Decimal.IsNegative() {
		return models.Operation{}, apperrors.New(apperrors.CodeInvalidInput, "giro_value não pode ser negativo")
	}

	op := models.Operation{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Status:             models.OperationStatusPending,
		Warehouse:          req.Warehouse,
		Client:             req.Client,
		Bank:               req.Bank,
		GiroValue:          req.GiroValue,
		EndorsementValue:   req.EndorsementValue,
		GuaranteeRiskRatio: req.GuaranteeRiskRatio,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.store.SaveOperation(ctx, op); err != nil {
		return models.Operation{}, err
	}
	s.log.Info("operação criada", zap.String("operation_id", op.ID))
	return op, nil
}

// AddAssetRequest descreve um ativo depositado.
type AddAssetRequest struct {
	OperationID    string
	Description    string
	Serial         *string
	Value          decimal.Decimal
	DeliveryStatus *string
}

// AddAsset registra um ativo STORED na operação.
func (s *OperationService) AddAsset(ctx context.Context, req AddAssetRequest) (models.Asset, error) {
	if req.Value.IsNegative() {
		return models.Asset{}, apperrors.New(apperrors.CodeInvalidInput, "value não pode ser negativo")
	}
	if req.DeliveryStatus != nil {
		if _, ok := semaphore.ParseColor(*req.DeliveryStatus); !ok {
			return models.Asset{}, apperrors.Newf(apperrors.CodeInvalidInput, "delivery_status inválido: %q", *req.DeliveryStatus)
		}
	}
	op, err := s.store.GetOperation(ctx, req.OperationID)
	if err != nil {
		return models.Asset{}, err
	}
	a := models.Asset{
		ID:             uuid.NewString(),
		OperationID:    op.ID,
		Description:    req.Description,
		Serial:         req.Serial,
		Value:          req.Value,
		Status:         models.AssetStatusStored,
		DeliveryStatus: req.DeliveryStatus,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.SaveAsset(ctx, a); err != nil {
		return models.Asset{}, err
	}
	s.log.Info("ativo registrado", zap.String("operation_id", op.ID), zap.String("asset_id", a.ID))
	return a, nil
}

// OperationAggregate é a visão consolidada de uma operação.
type OperationAggregate struct {
	Operation models.Operation       `json:"operation"`
	Status    models.OperationStatus `json:"status"`
	Stats     aggregate.Stats        `json:"stats"`
	Guarantee aggregate.Guarantee    `json:"guarantee"`
	Assets    []AssetState           `json:"assets"`
}

// Aggregate recalcula os indicadores da operação. O status persistido só
// avança: um status derivado abaixo do gravado não é escrito.
func (s *OperationService) Aggregate(ctx context.Context, operationID string) (OperationAggregate, error) {
	op, err := s.store.GetOperation(ctx, operationID)
	if err != nil {
		return OperationAggregate{}, err
	}
	assets, err := s.store.ListAssetsByOperation(ctx, op.ID)
	if err != nil {
		return OperationAggregate{}, err
	}

	views := make([]aggregate.AssetView, 0, len(assets))
	states := make([]AssetState, 0, len(assets))
	for _, a := range assets {
		st, err := deriveAsset(ctx, s.store, a)
		if err != nil {
			return OperationAggregate{}, err
		}
		views = append(views, aggregate.AssetView{Asset: a, State: st.State, Semaphore: st.Semaphore})
		states = append(states, st)
	}

	derived := aggregate.OperationStatus(views)
	if derived.Rank() > op.Status.Rank() {
		if err := s.store.UpdateOperationStatus(ctx, op.ID, derived); err != nil {
			return OperationAggregate{}, err
		}
		s.log.Info("status da operação avançou",
			zap.String("operation_id", op.ID), zap.String("from", string(op.Status)), zap.String("to", string(derived)))
		op.Status = derived
	}

	return OperationAggregate{
		Operation: op,
		Status:    op.Status,
		Stats:     aggregate.Summarize(views),
		Guarantee: aggregate.EvaluateGuarantee(assets, op.GiroValue, op.GuaranteeRiskRatio),
		Assets:    states,
	}, nil
}
