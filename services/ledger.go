package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/idempotency"
	"github.com/ferreirogomes/custodia/metrics"
)

// MintRequest pede a emissão de um novo token para Recipient.
type MintRequest struct {
	IdempotencyKey string
	Amount         uint64
	Recipient      string
}

// Issuance é o recibo de uma emissão.
type Issuance struct {
	IssuanceID   string `json:"issuance_id"`
	IssuerWallet string `json:"issuer_wallet"`
	TxSignature  string `json:"tx_signature"`
}

// TransferRequest move todo o saldo de uma emissão entre carteiras.
type TransferRequest struct {
	IdempotencyKey string
	IssuanceID     string
	From           string
	To             string
	Amount         uint64
}

// BurnRequest queima o saldo de uma emissão mantido por Holder.
type BurnRequest struct {
	IdempotencyKey string
	IssuanceID     string
	Holder         string
	Amount         uint64
}

// Receipt é o recibo de uma transação confirmada.
type Receipt struct {
	TxSignature string `json:"tx_signature"`
}

// Ledger é o colaborador que submete transações on-chain. Erros de Ledger
// são tratados como indisponibilidade e podem ser repetidos com a mesma chave.
type Ledger interface {
	Mint(ctx context.Context, req MintRequest) (Issuance, error)
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
	Burn(ctx context.Context, req BurnRequest) (Receipt, error)
	HolderOf(ctx context.Context, issuanceID string) (string, error)
}

// IdempotentLedger decora um Ledger: repete recibos já gravados para a mesma
// chave, mede as chamadas e converte falhas em CollaboratorUnavailable.
type IdempotentLedger struct {
	next    Ledger
	records idempotency.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewIdempotentLedger(next Ledger, records idempotency.Store, m *metrics.Metrics, log *zap.Logger) *IdempotentLedger {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &IdempotentLedger{next: next, records: records, metrics: m, log: log}
}

func (l *IdempotentLedger) Mint(ctx context.Context, req MintRequest) (Issuance, error) {
	return callOnce(ctx, l, "mint", req.IdempotencyKey, func() (Issuance, error) {
		return l.next.Mint(ctx, req)
	})
}

func (l *IdempotentLedger) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	return callOnce(ctx, l, "transfer", req.IdempotencyKey, func() (Receipt, error) {
		return l.next.Transfer(ctx, req)
	})
}

func (l *IdempotentLedger) Burn(ctx context.Context, req BurnRequest) (Receipt, error) {
	return callOnce(ctx, l, "burn", req.IdempotencyKey, func() (Receipt, error) {
		return l.next.Burn(ctx, req)
	})
}

// HolderOf é uma leitura e não passa pelo registro de idempotência.
func (l *IdempotentLedger) HolderOf(ctx context.Context, issuanceID string) (string, error) {
	start := time.Now()
	holder, err := l.next.HolderOf(ctx, issuanceID)
	l.observe("holder_of", start, err)
	if err != nil {
		return "", unavailable("holder_of", err)
	}
	return holder, nil
}

func callOnce[T any](ctx context.Context, l *IdempotentLedger, op, key string, call func() (T, error)) (T, error) {
	var zero T
	if b, ok, err := idempotency.Replay(ctx, l.records, key); err != nil {
		return zero, unavailable(op, fmt.Errorf("falha ao ler registro de idempotência: %w", err))
	} else if ok {
		var out T
		if err := json.Unmarshal(b, &out); err != nil {
			return zero, fmt.Errorf("registro de idempotência corrompido para %s: %w", key, err)
		}
		l.metrics.LedgerCalls.WithLabelValues(op, "replayed").Inc()
		l.log.Info("recibo do ledger repetido", zap.String("operation", op), zap.String("idempotency_key", key))
		return out, nil
	}

	start := time.Now()
	out, err := call()
	l.observe(op, start, err)
	if err != nil {
		l.log.Warn("chamada ao ledger falhou",
			zap.String("operation", op), zap.String("idempotency_key", key), zap.Error(err))
		return zero, unavailable(op, err)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("falha ao serializar recibo: %w", err)
	}
	if err := idempotency.Save(ctx, l.records, key, b); err != nil {
		// a transação já foi confirmada; o recibo é devolvido mesmo sem registro
		l.log.Error("falha ao gravar registro de idempotência",
			zap.String("idempotency_key", key), zap.Error(err))
	}
	l.log.Info("chamada ao ledger confirmada", zap.String("operation", op), zap.String("idempotency_key", key))
	return out, nil
}

func (l *IdempotentLedger) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	l.metrics.LedgerCalls.WithLabelValues(op, result).Inc()
	l.metrics.LedgerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func unavailable(op string, err error) error {
	if apperrors.GetCode(err) == apperrors.CodeCollaboratorUnavailable {
		return err
	}
	return apperrors.Wrap(apperrors.CodeCollaboratorUnavailable, "ledger "+op+" falhou", err)
}
