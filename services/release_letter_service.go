package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/bundle"
	"github.com/ferreirogomes/custodia/events"
	"github.com/ferreirogomes/custodia/metrics"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
)

// Passos da saga de aprovação, na ordem de execução.
const (
	StepMarkApproved        = "mark_approved"
	StepTransferToWarehouse = "transfer_to_warehouse"
	StepRecomputeSemaphores = "recompute_semaphores"
)

// Transferer é a parte do ciclo de vida de tokens usada pela saga.
type Transferer interface {
	TransferToWarehouse(ctx context.Context, operationID string, assetIDs []string) (BatchResult, error)
}

// ReleaseLetterService conduz as cartas de liberação de PENDING até uma
// decisão e executa a saga de aprovação.
type ReleaseLetterService struct {
	store      Store
	transferer Transferer
	bus        *events.Bus
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

func NewReleaseLetterService(store Store, transferer Transferer, bus *events.Bus, m *metrics.Metrics, log *zap.Logger) *ReleaseLetterService {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &ReleaseLetterService{store: store, transferer: transferer, bus: bus, metrics: m, log: log, now: time.Now}
}

// CreateReleaseLetterRequest descreve uma nova carta.
type CreateReleaseLetterRequest struct {
	OperationID string
	AssetIDs    []string
	Source      models.SourceDocument
}

// Create grava a carta como PENDING. Todos os ativos precisam estar
// tokenizados e ainda não liberados.
func (s *ReleaseLetterService) Create(ctx context.Context, req CreateReleaseLetterRequest) (models.ReleaseLetter, error) {
	if err := validateIDs(req.AssetIDs); err != nil {
		return models.ReleaseLetter{}, err
	}
	switch req.Source.Kind {
	case models.SourceKindUploaded, models.SourceKindGenerated:
	default:
		return models.ReleaseLetter{}, apperrors.Newf(apperrors.CodeInvalidInput, "origem do documento inválida: %q", req.Source.Kind)
	}
	if strings.TrimSpace(req.Source.ContentHash) == "" {
		return models.ReleaseLetter{}, apperrors.New(apperrors.CodeInvalidInput, "source.content_hash é obrigatório")
	}
	op, err := s.store.GetOperation(ctx, req.OperationID)
	if err != nil {
		return models.ReleaseLetter{}, err
	}

	for _, id := range req.AssetIDs {
		asset, state, err := deriveAssetByID(ctx, s.store, id)
		if err != nil {
			return models.ReleaseLetter{}, err
		}
		if asset.OperationID != op.ID {
			return models.ReleaseLetter{}, apperrors.Newf(apperrors.CodeInvalidInput,
				"ativo %s não pertence à operação %s", id, op.ID)
		}
		switch {
		case state.Stage == bundle.StageReleased:
			return models.ReleaseLetter{}, apperrors.ErrAssetAlreadyReleased.With("asset_id", id)
		case state.Stage != bundle.StageTokenized:
			return models.ReleaseLetter{}, apperrors.ErrNotTokenized.With("asset_id", id).With("stage", state.Stage.String())
		}
	}

	letter := models.ReleaseLetter{
		ID:               uuid.NewString(),
		OperationID:      op.ID,
		Status:           models.ReleaseLetterStatusPending,
		Source:           req.Source,
		AssetIDs:         append([]string(nil), req.AssetIDs...),
		ApprovedAssetIDs: []string{},
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateReleaseLetter(ctx, letter); err != nil {
		return models.ReleaseLetter{}, err
	}
	s.log.Info("carta de liberação criada",
		zap.String("letter_id", letter.ID), zap.String("operation_id", op.ID), zap.Strings("asset_ids", letter.AssetIDs))
	return letter, nil
}

// Get busca uma carta.
func (s *ReleaseLetterService) Get(ctx context.Context, letterID string) (models.ReleaseLetter, error) {
	return s.store.GetReleaseLetter(ctx, letterID)
}

// ListByOperation lista as cartas da operação.
func (s *ReleaseLetterService) ListByOperation(ctx context.Context, operationID string) ([]models.ReleaseLetter, error) {
	if _, err := s.store.GetOperation(ctx, operationID); err != nil {
		return nil, err
	}
	return s.store.ListReleaseLettersByOperation(ctx, operationID)
}

// Reject move a carta de PENDING para REJECTED.
func (s *ReleaseLetterService) Reject(ctx context.Context, letterID, reason string) (models.ReleaseLetter, error) {
	if _, err := s.store.GetReleaseLetter(ctx, letterID); err != nil {
		return models.ReleaseLetter{}, err
	}
	moved, err := s.store.RejectReleaseLetter(ctx, letterID, strings.TrimSpace(reason), s.now().UTC())
	if err != nil {
		return models.ReleaseLetter{}, err
	}
	if !moved {
		return models.ReleaseLetter{}, apperrors.ErrLetterNotPending.With("letter_id", letterID)
	}
	s.log.Info("carta de liberação rejeitada", zap.String("letter_id", letterID))
	return s.store.GetReleaseLetter(ctx, letterID)
}

// SemaphoreUpdate é o estado recalculado de um ativo da carta.
type SemaphoreUpdate struct {
	AssetID   string          `json:"asset_id"`
	Stage     bundle.Stage    `json:"stage"`
	Semaphore semaphore.Color `json:"semaphore"`
}

// StepOutcome registra o resultado de um passo da saga.
type StepOutcome struct {
	Step  string       `json:"step"`
	Phase events.Phase `json:"phase"`
	Error string       `json:"error,omitempty"`
}

// ApprovalResult é o retorno da saga de aprovação.
type ApprovalResult struct {
	Letter           models.ReleaseLetter `json:"letter"`
	ApprovedAssetIDs []string             `json:"approved_asset_ids"`
	ExcludedAssetIDs []string             `json:"excluded_asset_ids"`
	TransferResults  BatchResult          `json:"transfer_results"`
	SemaphoreUpdates []SemaphoreUpdate    `json:"semaphore_updates"`
	Steps            []StepOutcome        `json:"steps"`
}

type saga struct {
	s        *ReleaseLetterService
	letterID string
	steps    []StepOutcome
}

func (g *saga) run(step string, fn func() error) error {
	g.emit(step, events.PhaseStarted, nil)
	if err := fn(); err != nil {
		g.emit(step, events.PhaseFailed, err)
		return err
	}
	g.emit(step, events.PhaseSucceeded, nil)
	return nil
}

func (g *saga) emit(step string, phase events.Phase, err error) {
	ev := events.StepEvent{LetterID: g.letterID, Step: step, Phase: phase, At: g.s.now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	g.s.bus.PublishStep(ev)
	g.s.metrics.SagaSteps.WithLabelValues(step, string(phase)).Inc()
	if phase != events.PhaseStarted {
		g.steps = append(g.steps, StepOutcome{Step: step, Phase: phase, Error: ev.Error})
	}
	g.s.log.Debug("passo da saga", zap.String("letter_id", g.letterID), zap.String("step", step), zap.String("phase", string(phase)))
}

// Approve executa a saga. Na primeira chamada a carta passa a APPROVED com
// o subconjunto de ativos ainda tokenizados; ativos em outro estágio ficam
// de fora sem erro. Chamar de novo sobre uma carta APPROVED retoma a partir
// da transferência com o subconjunto gravado.
func (s *ReleaseLetterService) Approve(ctx context.Context, letterID string) (ApprovalResult, error) {
	letter, err := s.store.GetReleaseLetter(ctx, letterID)
	if err != nil {
		return ApprovalResult{}, err
	}
	switch letter.Status {
	case models.ReleaseLetterStatusPending, models.ReleaseLetterStatusApproved:
	default:
		return ApprovalResult{}, apperrors.ErrLetterNotPending.With("letter_id", letterID).With("status", string(letter.Status))
	}

	g := &saga{s: s, letterID: letterID}
	res := ApprovalResult{ExcludedAssetIDs: []string{}, SemaphoreUpdates: []SemaphoreUpdate{}}

	if letter.Status == models.ReleaseLetterStatusPending {
		err := g.run(StepMarkApproved, func() error {
			approved := make([]string, 0, len(letter.AssetIDs))
			for _, id := range letter.AssetIDs {
				_, st, err := deriveAssetByID(ctx, s.store, id)
				if err != nil {
					return err
				}
				if st.Stage == bundle.StageTokenized {
					approved = append(approved, id)
				}
			}
			moved, err := s.store.ApproveReleaseLetter(ctx, letterID, approved, s.now().UTC())
			if err != nil {
				return err
			}
			if !moved {
				return apperrors.ErrLetterNotPending.With("letter_id", letterID)
			}
			return nil
		})
		if err != nil {
			// outra chamada pode ter aprovado a carta entre a leitura e o CAS
			if !apperrors.IsCode(err, apperrors.CodeLetterNotPending) {
				res.Steps = g.steps
				return res, err
			}
		}
		if letter, err = s.store.GetReleaseLetter(ctx, letterID); err != nil {
			return res, err
		}
		if letter.Status != models.ReleaseLetterStatusApproved {
			res.Steps = g.steps
			return res, apperrors.ErrLetterNotPending.With("letter_id", letterID).With("status", string(letter.Status))
		}
	}

	res.Letter = letter
	res.ApprovedAssetIDs = letter.ApprovedAssetIDs
	approved := make(map[string]struct{}, len(letter.ApprovedAssetIDs))
	for _, id := range letter.ApprovedAssetIDs {
		approved[id] = struct{}{}
	}
	for _, id := range letter.AssetIDs {
		if _, ok := approved[id]; !ok {
			res.ExcludedAssetIDs = append(res.ExcludedAssetIDs, id)
		}
	}

	res.TransferResults = BatchResult{Success: []string{}, Failed: []BatchFailure{}}
	err = g.run(StepTransferToWarehouse, func() error {
		if len(letter.ApprovedAssetIDs) == 0 {
			return nil
		}
		out, err := s.transferer.TransferToWarehouse(ctx, letter.OperationID, letter.ApprovedAssetIDs)
		if err != nil {
			return err
		}
		res.TransferResults = out
		if pending := out.RetryableFailures(); len(pending) > 0 {
			return apperrors.Newf(apperrors.CodeCollaboratorUnavailable,
				"transferência ao armazém pendente para %d ativo(s); repita a aprovação", len(pending)).
				With("asset_ids", strings.Join(pending, ","))
		}
		return nil
	})
	if err != nil {
		res.Steps = g.steps
		return res, err
	}

	err = g.run(StepRecomputeSemaphores, func() error {
		for _, id := range letter.AssetIDs {
			_, st, err := deriveAssetByID(ctx, s.store, id)
			if err != nil {
				return err
			}
			res.SemaphoreUpdates = append(res.SemaphoreUpdates, SemaphoreUpdate{AssetID: id, Stage: st.Stage, Semaphore: st.Semaphore})
		}
		return nil
	})
	res.Steps = g.steps
	if err != nil {
		return res, err
	}
	s.log.Info("carta de liberação aprovada",
		zap.String("letter_id", letterID),
		zap.Int("approved", len(res.ApprovedAssetIDs)),
		zap.Int("transfer_failures", len(res.TransferResults.Failed)))
	return res, nil
}
