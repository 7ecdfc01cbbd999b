// Package blockchain_listener mantém a carteira detentora dos tokens
// alinhada com a chain quando transferências acontecem fora do serviço.
package blockchain_listener

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/models"
)

// TokenStore é a persistência usada pelo listener.
type TokenStore interface {
	ListLiveTokens(ctx context.Context) ([]models.Token, error)
	UpdateTokenHolder(ctx context.Context, tokenID, holder string, status models.TokenStatus) error
}

// HolderLookup consulta o detentor atual de uma emissão.
type HolderLookup interface {
	HolderOf(ctx context.Context, issuanceID string) (string, error)
}

// CustodyListener consulta periodicamente o detentor on-chain de cada token
// vivo e grava divergências.
type CustodyListener struct {
	store    TokenStore
	ledger   HolderLookup
	interval time.Duration
	log      *zap.Logger
}

func NewCustodyListener(store TokenStore, ledger HolderLookup, interval time.Duration, log *zap.Logger) *CustodyListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &CustodyListener{store: store, ledger: ledger, interval: interval, log: log}
}

// ReconcileOnce faz uma passada sobre os tokens vivos e devolve quantos
// tiveram o detentor atualizado. Falhas de consulta de um token não
// interrompem a passada.
func (l *CustodyListener) ReconcileOnce(ctx context.Context) (int, error) {
	tokens, err := l.store.ListLiveTokens(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		holder, err := l.ledger.HolderOf(ctx, tok.IssuanceID)
		if err != nil {
			l.log.Warn("falha ao consultar detentor", zap.String("token_id", tok.ID), zap.Error(err))
			continue
		}
		if holder == "" {
			// sem saldo on-chain; a queima só é registrada pelo fluxo de liberação
			l.log.Warn("token sem saldo on-chain", zap.String("token_id", tok.ID), zap.String("issuance_id", tok.IssuanceID))
			continue
		}
		if holder == tok.HolderWallet {
			continue
		}
		if err := l.store.UpdateTokenHolder(ctx, tok.ID, holder, models.TokenStatusTransferred); err != nil {
			l.log.Error("falha ao gravar detentor", zap.String("token_id", tok.ID), zap.Error(err))
			continue
		}
		l.log.Info("detentor do token atualizado",
			zap.String("token_id", tok.ID), zap.String("from", tok.HolderWallet), zap.String("to", holder))
		updated++
	}
	return updated, nil
}

// Run executa ReconcileOnce a cada intervalo até o contexto ser cancelado.
func (l *CustodyListener) Run(ctx context.Context) error {
	l.log.Info("listener de custódia iniciado", zap.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info("listener de custódia encerrado")
			return nil
		case <-ticker.C:
			if _, err := l.ReconcileOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.log.Error("falha na reconciliação de custódia", zap.Error(err))
			}
		}
	}
}
