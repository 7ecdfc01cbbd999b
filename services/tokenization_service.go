package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/metrics"
	"github.com/ferreirogomes/custodia/models"
)

// TokenLifecycleService coordena mint, transferência e queima de tokens,
// garantindo no máximo uma emissão por ativo e uma queima por token.
type TokenLifecycleService struct {
	store   Store
	ledger  Ledger
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewTokenLifecycleService(store Store, ledger Ledger, m *metrics.Metrics, log *zap.Logger) *TokenLifecycleService {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &TokenLifecycleService{store: store, ledger: ledger, metrics: m, log: log, now: time.Now}
}

// TokenizeResult é o retorno de uma tokenização bem-sucedida.
type TokenizeResult struct {
	TokenID    string       `json:"token_id"`
	IssuanceID string       `json:"issuance_id"`
	Token      models.Token `json:"token"`
	Assets     []AssetState `json:"assets"`
}

// Tokenize emite um token para um único ativo pronto.
func (s *TokenLifecycleService) Tokenize(ctx context.Context, assetID string) (TokenizeResult, error) {
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return TokenizeResult{}, err
	}
	return s.TokenizeBundle(ctx, asset.OperationID, []string{assetID})
}

// TokenizeBundle emite um único token compartilhado pelos ativos informados.
// Todos precisam estar prontos e pertencer à operação.
func (s *TokenLifecycleService) TokenizeBundle(ctx context.Context, operationID string, assetIDs []string) (TokenizeResult, error) {
	res, err := s.tokenize(ctx, operationID, assetIDs)
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.GetCode(err))
	}
	s.metrics.Tokenizations.WithLabelValues(outcome).Inc()
	return res, err
}

func (s *TokenLifecycleService) tokenize(ctx context.Context, operationID string, assetIDs []string) (TokenizeResult, error) {
	if err := validateIDs(assetIDs); err != nil {
		return TokenizeResult{}, err
	}
	op, err := s.store.GetOperation(ctx, operationID)
	if err != nil {
		return TokenizeResult{}, err
	}

	assets := make([]models.Asset, 0, len(assetIDs))
	total := decimal.Zero
	for _, id := range assetIDs {
		asset, state, err := deriveAssetByID(ctx, s.store, id)
		if err != nil {
			return TokenizeResult{}, err
		}
		if asset.OperationID != op.ID {
			return TokenizeResult{}, apperrors.Newf(apperrors.CodeInvalidInput,
				"ativo %s não pertence à operação %s", id, op.ID)
		}
		if state.Token != nil {
			return TokenizeResult{}, apperrors.ErrAlreadyTokenized.With("asset_id", id)
		}
		if !state.Readiness.Ready {
			return TokenizeResult{}, apperrors.ErrNotReady.
				With("asset_id", id).
				With("missing_components", strings.Join(state.Readiness.MissingComponents, "; "))
		}
		assets = append(assets, asset)
		total = total.Add(asset.Value)
	}

	amount, err := tokenAmount(total)
	if err != nil {
		return TokenizeResult{}, err
	}
	key := mintKey(assetIDs)
	rec, resumed, err := s.confirmedMint(ctx, assetIDs, key)
	if err != nil {
		return TokenizeResult{}, err
	}
	if resumed {
		s.log.Info("mint já confirmado no ledger; concluindo gravação",
			zap.String("issuance_id", rec.Issuance.IssuanceID), zap.String("idempotency_key", key))
	} else {
		rec, err = s.mint(ctx, op, assetIDs, key, amount)
		if err != nil {
			return TokenizeResult{}, err
		}
	}

	tok := models.Token{
		ID:           uuid.NewString(),
		OperationID:  op.ID,
		IssuanceID:   rec.Issuance.IssuanceID,
		Amount:       int64(rec.Amount),
		HolderWallet: op.Client.Wallet,
		IssuerWallet: rec.Issuance.IssuerWallet,
		Status:       models.TokenStatusMinted,
		TxSignature:  rec.Issuance.TxSignature,
		MintedAt:     s.now().UTC(),
		AssetIDs:     append([]string(nil), assetIDs...),
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		// as reservas ficam com o recibo; repetir a tokenização conclui a gravação
		s.log.Error("mint confirmado mas token não foi gravado",
			zap.String("issuance_id", tok.IssuanceID), zap.String("idempotency_key", key), zap.Error(err))
		return TokenizeResult{}, apperrors.Wrap(apperrors.CodeInternal, "mint confirmado mas token não foi gravado", err)
	}
	s.log.Info("bundle tokenizado",
		zap.String("operation_id", op.ID), zap.String("token_id", tok.ID),
		zap.String("issuance_id", tok.IssuanceID), zap.Int64("amount", tok.Amount))

	states := make([]AssetState, 0, len(assets))
	for _, a := range assets {
		fresh, err := s.store.GetAsset(ctx, a.ID)
		if err != nil {
			return TokenizeResult{}, err
		}
		st, err := deriveAsset(ctx, s.store, fresh)
		if err != nil {
			return TokenizeResult{}, err
		}
		states = append(states, st)
	}
	sort.Strings(tok.AssetIDs)
	return TokenizeResult{TokenID: tok.ID, IssuanceID: tok.IssuanceID, Token: tok, Assets: states}, nil
}

// mintRecord é o recibo de mint guardado nas reservas dos ativos.
type mintRecord struct {
	IdempotencyKey string   `json:"idempotency_key"`
	Amount         uint64   `json:"amount"`
	Issuance       Issuance `json:"issuance"`
}

// mint reserva os ativos, chama o ledger e guarda o recibo nas reservas.
// As reservas só são liberadas se o ledger falhar.
func (s *TokenLifecycleService) mint(ctx context.Context, op models.Operation, assetIDs []string, key string, amount uint64) (mintRecord, error) {
	claimed := make([]string, 0, len(assetIDs))
	releaseClaims := func() {
		for _, c := range claimed {
			if err := s.store.ReleaseLedgerClaim(ctx, c); err != nil {
				s.log.Error("falha ao liberar reserva de mint", zap.String("claim", c), zap.Error(err))
			}
		}
	}
	for _, id := range assetIDs {
		c := "mint:" + id
		ok, err := s.store.ClaimLedgerOperation(ctx, c)
		if err != nil {
			releaseClaims()
			return mintRecord{}, err
		}
		if !ok {
			releaseClaims()
			return mintRecord{}, apperrors.ErrAlreadyTokenized.With("asset_id", id)
		}
		claimed = append(claimed, c)
	}

	issuance, err := s.ledger.Mint(ctx, MintRequest{
		IdempotencyKey: key,
		Amount:         amount,
		Recipient:      op.Client.Wallet,
	})
	if err != nil {
		releaseClaims()
		s.log.Warn("mint falhou", zap.String("operation_id", op.ID), zap.Strings("asset_ids", assetIDs), zap.Error(err))
		return mintRecord{}, err
	}
	rec := mintRecord{IdempotencyKey: key, Amount: amount, Issuance: issuance}
	s.keepReceipt(ctx, claimed, rec)
	return rec, nil
}

// confirmedMint devolve o recibo de um mint já confirmado no ledger para
// exatamente este conjunto de ativos, mas ainda não gravado como token.
func (s *TokenLifecycleService) confirmedMint(ctx context.Context, assetIDs []string, key string) (mintRecord, bool, error) {
	var rec mintRecord
	for _, id := range assetIDs {
		b, found, err := s.store.GetLedgerReceipt(ctx, "mint:"+id)
		if err != nil || !found {
			return mintRecord{}, false, err
		}
		var r mintRecord
		if err := json.Unmarshal(b, &r); err != nil {
			return mintRecord{}, false, fmt.Errorf("recibo de mint corrompido para o ativo %s: %w", id, err)
		}
		if r.IdempotencyKey != key {
			return mintRecord{}, false, nil
		}
		rec = r
	}
	return rec, true, nil
}

// keepReceipt grava o recibo confirmado nas reservas. Sem ele, uma reserva
// órfã bloqueia novas tentativas em vez de repetir a operação no ledger.
func (s *TokenLifecycleService) keepReceipt(ctx context.Context, claims []string, receipt any) {
	b, err := json.Marshal(receipt)
	if err == nil {
		err = s.store.SaveLedgerReceipt(ctx, claims, b)
	}
	if err != nil {
		s.log.Error("falha ao gravar recibo na reserva", zap.Strings("claims", claims), zap.Error(err))
	}
}

// maxTokenAmount é o maior valor que o token grava (BIGINT).
var maxTokenAmount = decimal.NewFromInt(math.MaxInt64)

// tokenAmount arredonda a soma dos valores para unidades inteiras, com mínimo 1.
func tokenAmount(total decimal.Decimal) (uint64, error) {
	n := total.Round(0)
	if n.GreaterThan(maxTokenAmount) {
		return 0, apperrors.Newf(apperrors.CodeInvalidInput, "valor total %s excede o máximo emitível", total)
	}
	if n.LessThan(decimal.NewFromInt(1)) {
		return 1, nil
	}
	return uint64(n.IntPart()), nil
}

func mintKey(assetIDs []string) string {
	ids := append([]string(nil), assetIDs...)
	sort.Strings(ids)
	return "mint:" + strings.Join(ids, ",")
}

func validateIDs(ids []string) error {
	if len(ids) == 0 {
		return apperrors.New(apperrors.CodeInvalidInput, "asset_ids não pode ser vazio")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return apperrors.New(apperrors.CodeInvalidInput, "asset_ids contém um id vazio")
		}
		if _, dup := seen[id]; dup {
			return apperrors.Newf(apperrors.CodeInvalidInput, "ativo %s repetido", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// BatchFailure é um item recusado de um lote.
type BatchFailure struct {
	AssetID   string         `json:"asset_id"`
	Reason    apperrors.Code `json:"reason"`
	Message   string         `json:"message,omitempty"`
	Retryable bool           `json:"retryable"`
}

// BatchResult separa os itens bem-sucedidos dos recusados. Uma falha em um
// item não desfaz os demais.
type BatchResult struct {
	Success []string       `json:"success"`
	Failed  []BatchFailure `json:"failed"`
}

// RetryableFailures devolve os ativos recusados por falhas que uma nova
// tentativa pode resolver.
func (r BatchResult) RetryableFailures() []string {
	var ids []string
	for _, f := range r.Failed {
		if f.Retryable {
			ids = append(ids, f.AssetID)
		}
	}
	return ids
}

type tokenGroup struct {
	token    models.Token
	assetIDs []string
}

type batch struct {
	order    []string
	failures map[string]BatchFailure
	groups   []*tokenGroup
}

func (b *batch) fail(assetID string, err error) {
	if _, done := b.failures[assetID]; done {
		return
	}
	reason := reasonOf(err)
	b.failures[assetID] = BatchFailure{AssetID: assetID, Reason: reason, Message: err.Error(), Retryable: reason.Retryable()}
}

func (b *batch) failGroup(g *tokenGroup, err error) {
	for _, id := range g.assetIDs {
		b.fail(id, err)
	}
}

func (b *batch) result() BatchResult {
	res := BatchResult{Success: []string{}, Failed: []BatchFailure{}}
	for _, id := range b.order {
		if f, ok := b.failures[id]; ok {
			res.Failed = append(res.Failed, f)
			continue
		}
		res.Success = append(res.Success, id)
	}
	return res
}

func reasonOf(err error) apperrors.Code {
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown {
		return apperrors.CodeInternal
	}
	return code
}

// prepare verifica as pré-condições por ativo e agrupa os elegíveis por
// token. burnedCode é o motivo usado para tokens já queimados.
func (s *TokenLifecycleService) prepare(ctx context.Context, op models.Operation, assetIDs []string, burnedCode apperrors.Code) *batch {
	b := &batch{failures: make(map[string]BatchFailure)}
	requested := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if _, dup := requested[id]; dup {
			continue
		}
		requested[id] = struct{}{}
		b.order = append(b.order, id)
	}

	byToken := make(map[string]*tokenGroup)
	for _, id := range b.order {
		asset, err := s.store.GetAsset(ctx, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if asset.OperationID != op.ID {
			b.fail(id, apperrors.Newf(apperrors.CodeInvalidInput, "ativo %s não pertence à operação %s", id, op.ID))
			continue
		}
		approved, err := s.store.IsAssetApprovedForRelease(ctx, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if !approved {
			b.fail(id, apperrors.ErrNotApproved.With("asset_id", id))
			continue
		}
		tok, err := s.store.GetTokenByAsset(ctx, id)
		if err != nil {
			b.fail(id, err)
			continue
		}
		if tok == nil {
			b.fail(id, apperrors.ErrNotTokenized.With("asset_id", id))
			continue
		}
		if tok.Burned() {
			b.fail(id, apperrors.Newf(burnedCode, "token %s do ativo %s já foi queimado", tok.ID, id))
			continue
		}
		g, ok := byToken[tok.ID]
		if !ok {
			g = &tokenGroup{token: *tok}
			byToken[tok.ID] = g
			b.groups = append(b.groups, g)
		}
		g.assetIDs = append(g.assetIDs, id)
	}

	// um token compartilhado só se move com todos os seus ativos
	for _, g := range b.groups {
		for _, sibling := range g.token.AssetIDs {
			if _, ok := requested[sibling]; !ok {
				b.failGroup(g, apperrors.Newf(apperrors.CodeTokenGroupIncomplete,
					"token %s também lastreia o ativo %s, ausente do pedido", g.token.ID, sibling))
				break
			}
			if f, failed := b.failures[sibling]; failed {
				b.failGroup(g, apperrors.Newf(apperrors.CodeTokenGroupIncomplete,
					"token %s também lastreia o ativo %s, recusado por %s", g.token.ID, sibling, f.Reason))
				break
			}
		}
	}
	return b
}

func (b *batch) pending(g *tokenGroup) bool {
	for _, id := range g.assetIDs {
		if _, failed := b.failures[id]; failed {
			return false
		}
	}
	return true
}

func (s *TokenLifecycleService) record(op string, res BatchResult) {
	if n := len(res.Success); n > 0 {
		s.metrics.BatchItems.WithLabelValues(op, "ok").Add(float64(n))
	}
	for _, f := range res.Failed {
		s.metrics.BatchItems.WithLabelValues(op, string(f.Reason)).Inc()
	}
}

// TransferToWarehouse devolve ao armazém os tokens dos ativos aprovados.
// Cada token é tratado de forma independente.
func (s *TokenLifecycleService) TransferToWarehouse(ctx context.Context, operationID string, assetIDs []string) (BatchResult, error) {
	if len(assetIDs) == 0 {
		return BatchResult{}, apperrors.New(apperrors.CodeInvalidInput, "asset_ids não pode ser vazio")
	}
	op, err := s.store.GetOperation(ctx, operationID)
	if err != nil {
		return BatchResult{}, err
	}
	b := s.prepare(ctx, op, assetIDs, apperrors.CodeAssetAlreadyReleased)
	warehouse := op.Warehouse.Wallet

	for _, g := range b.groups {
		if !b.pending(g) {
			continue
		}
		tok := g.token
		if tok.HolderWallet == warehouse {
			continue
		}
		_, err := s.ledger.Transfer(ctx, TransferRequest{
			IdempotencyKey: "transfer:" + tok.ID,
			IssuanceID:     tok.IssuanceID,
			From:           tok.HolderWallet,
			To:             warehouse,
			Amount:         uint64(tok.Amount),
		})
		if err != nil {
			s.log.Warn("transferência ao armazém falhou", zap.String("token_id", tok.ID), zap.Error(err))
			b.failGroup(g, err)
			continue
		}
		if err := s.store.UpdateTokenHolder(ctx, tok.ID, warehouse, models.TokenStatusTransferred); err != nil {
			b.failGroup(g, apperrors.Wrap(apperrors.CodeInternal, "transferência confirmada mas não gravada", err))
			continue
		}
		s.log.Info("token transferido ao armazém", zap.String("token_id", tok.ID), zap.Strings("asset_ids", g.assetIDs))
	}

	res := b.result()
	s.record("transfer", res)
	return res, nil
}

// Burn queima os tokens dos ativos aprovados que estão sob custódia do
// armazém e marca os ativos como liberados.
func (s *TokenLifecycleService) Burn(ctx context.Context, operationID string, assetIDs []string) (BatchResult, error) {
	if len(assetIDs) == 0 {
		return BatchResult{}, apperrors.New(apperrors.CodeInvalidInput, "asset_ids não pode ser vazio")
	}
	op, err := s.store.GetOperation(ctx, operationID)
	if err != nil {
		return BatchResult{}, err
	}
	b := s.prepare(ctx, op, assetIDs, apperrors.CodeAlreadyBurned)
	warehouse := op.Warehouse.Wallet

	for _, g := range b.groups {
		if !b.pending(g) {
			continue
		}
		if err := s.burnToken(ctx, g.token, warehouse); err != nil {
			b.failGroup(g, err)
		}
	}

	res := b.result()
	s.record("burn", res)
	return res, nil
}

func (s *TokenLifecycleService) burnToken(ctx context.Context, tok models.Token, warehouse string) error {
	claim := "burn:" + tok.ID
	// uma queima confirmada deixa de ter detentor on-chain; só falta gravá-la
	if _, found, err := s.store.GetLedgerReceipt(ctx, claim); err != nil {
		return err
	} else if found {
		s.log.Info("queima já confirmada no ledger; concluindo gravação", zap.String("token_id", tok.ID))
		return s.markBurned(ctx, tok)
	}

	holder, err := s.ledger.HolderOf(ctx, tok.IssuanceID)
	if err != nil {
		return err
	}
	if holder != warehouse {
		return apperrors.ErrTokenNotInWarehouseCustody.With("token_id", tok.ID).With("holder", holder)
	}

	ok, err := s.store.ClaimLedgerOperation(ctx, claim)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrAlreadyBurned.With("token_id", tok.ID)
	}

	receipt, err := s.ledger.Burn(ctx, BurnRequest{
		IdempotencyKey: claim,
		IssuanceID:     tok.IssuanceID,
		Holder:         warehouse,
		Amount:         uint64(tok.Amount),
	})
	if err != nil {
		if rerr := s.store.ReleaseLedgerClaim(ctx, claim); rerr != nil {
			s.log.Error("falha ao liberar reserva de queima", zap.String("claim", claim), zap.Error(rerr))
		}
		s.log.Warn("queima falhou", zap.String("token_id", tok.ID), zap.Error(err))
		return err
	}
	s.keepReceipt(ctx, []string{claim}, receipt)
	return s.markBurned(ctx, tok)
}

func (s *TokenLifecycleService) markBurned(ctx context.Context, tok models.Token) error {
	if err := s.store.MarkTokenBurned(ctx, tok.ID, s.now().UTC()); err != nil {
		s.log.Error("queima confirmada mas não gravada", zap.String("token_id", tok.ID), zap.Error(err))
		return apperrors.Wrap(apperrors.CodeInternal, fmt.Sprintf("queima do token %s confirmada mas não gravada", tok.ID), err)
	}
	s.log.Info("token queimado", zap.String("token_id", tok.ID), zap.Strings("asset_ids", tok.AssetIDs))
	return nil
}
