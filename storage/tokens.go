package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/custodia/models"
)

// ClaimLedgerOperation toma a reserva compare-and-set para uma operação no
// ledger. Devolve false se outra chamada já detém a reserva.
func (d *DB) ClaimLedgerOperation(ctx context.Context, key string) (bool, error) {
	query := d.Rebind(`INSERT INTO ledger_claims (claim_key, claimed_at) VALUES (?, ?) ON CONFLICT (claim_key) DO NOTHING`)
	res, err := d.ExecContext(ctx, query, key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("falha ao reservar %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("falha ao reservar %s: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseLedgerClaim desfaz uma reserva após falha do ledger.
func (d *DB) ReleaseLedgerClaim(ctx context.Context, key string) error {
	if _, err := d.ExecContext(ctx, d.Rebind(`DELETE FROM ledger_claims WHERE claim_key = ?`), key); err != nil {
		return fmt.Errorf("falha ao liberar reserva %s: %w", key, err)
	}
	return nil
}

// SaveLedgerReceipt anexa o recibo confirmado às reservas informadas. As
// reservas continuam tomadas.
func (d *DB) SaveLedgerReceipt(ctx context.Context, keys []string, receipt []byte) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, key := range keys {
			res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE ledger_claims SET receipt = ? WHERE claim_key = ?`), string(receipt), key)
			if err != nil {
				return fmt.Errorf("falha ao gravar recibo de %s: %w", key, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("falha ao gravar recibo de %s: %w", key, err)
			} else if n == 0 {
				return fmt.Errorf("reserva %s não existe", key)
			}
		}
		return nil
	})
}

// GetLedgerReceipt devolve o recibo gravado na reserva, se houver.
func (d *DB) GetLedgerReceipt(ctx context.Context, key string) ([]byte, bool, error) {
	var receipt sql.NullString
	err := d.GetContext(ctx, &receipt, d.Rebind(`SELECT receipt FROM ledger_claims WHERE claim_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("falha ao ler recibo de %s: %w", key, err)
	}
	if !receipt.Valid {
		return nil, false, nil
	}
	return []byte(receipt.String), true, nil
}

// CreateToken grava o token, vincula seus ativos e marca-os como PLEDGED,
// tudo numa única transação.
func (d *DB) CreateToken(ctx context.Context, tok models.Token) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO tokens (id, operation_id, issuance_id, amount, holder_wallet, issuer_wallet, status, tx_signature, minted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			tok.ID, tok.OperationID, tok.IssuanceID, tok.Amount, tok.HolderWallet, tok.IssuerWallet,
			string(tok.Status), tok.TxSignature, tok.MintedAt.UTC())
		if err != nil {
			return fmt.Errorf("falha ao salvar token: %w", err)
		}
		for _, assetID := range tok.AssetIDs {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO token_assets (asset_id, token_id) VALUES (?, ?)`), assetID, tok.ID); err != nil {
				return fmt.Errorf("falha ao vincular ativo %s ao token: %w", assetID, err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE assets SET status = ? WHERE id = ?`), string(models.AssetStatusPledged), assetID); err != nil {
				return fmt.Errorf("falha ao atualizar ativo %s: %w", assetID, err)
			}
		}
		return nil
	})
}

func (d *DB) tokenAssets(ctx context.Context, tokenID string) ([]string, error) {
	ids := []string{}
	query := d.Rebind(`SELECT asset_id FROM token_assets WHERE token_id = ? ORDER BY asset_id`)
	if err := d.SelectContext(ctx, &ids, query, tokenID); err != nil {
		return nil, fmt.Errorf("falha ao listar ativos do token %s: %w", tokenID, err)
	}
	return ids, nil
}

// GetToken busca um token pelo ID, com os ativos que lastreia.
func (d *DB) GetToken(ctx context.Context, id string) (models.Token, error) {
	var tok models.Token
	if err := d.GetContext(ctx, &tok, d.Rebind(`SELECT * FROM tokens WHERE id = ?`), id); err != nil {
		return models.Token{}, notFound(err, "token", id)
	}
	ids, err := d.tokenAssets(ctx, id)
	if err != nil {
		return models.Token{}, err
	}
	tok.AssetIDs = ids
	return tok, nil
}

// GetTokenByAsset devolve o token do ativo, ou nil se ele nunca foi tokenizado.
func (d *DB) GetTokenByAsset(ctx context.Context, assetID string) (*models.Token, error) {
	var tokenID string
	err := d.GetContext(ctx, &tokenID, d.Rebind(`SELECT token_id FROM token_assets WHERE asset_id = ?`), assetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar token do ativo %s: %w", assetID, err)
	}
	tok, err := d.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// ListLiveTokens lista os tokens ainda não queimados.
func (d *DB) ListLiveTokens(ctx context.Context) ([]models.Token, error) {
	tokens := []models.Token{}
	query := d.Rebind(`SELECT * FROM tokens WHERE status <> ? ORDER BY minted_at, id`)
	if err := d.SelectContext(ctx, &tokens, query, string(models.TokenStatusBurned)); err != nil {
		return nil, fmt.Errorf("falha ao listar tokens ativos: %w", err)
	}
	return tokens, nil
}

// UpdateTokenHolder grava a carteira detentora e o status do token. Tokens
// queimados são imutáveis e não são alterados.
func (d *DB) UpdateTokenHolder(ctx context.Context, tokenID, holder string, status models.TokenStatus) error {
	query := d.Rebind(`UPDATE tokens SET holder_wallet = ?, status = ? WHERE id = ? AND status <> ?`)
	if _, err := d.ExecContext(ctx, query, holder, string(status), tokenID, string(models.TokenStatusBurned)); err != nil {
		return fmt.Errorf("falha ao atualizar detentor do token %s: %w", tokenID, err)
	}
	return nil
}

// MarkTokenBurned registra a queima do token e marca seus ativos como BURNED.
func (d *DB) MarkTokenBurned(ctx context.Context, tokenID string, burnedAt time.Time) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tokens SET status = ?, burned_at = ? WHERE id = ? AND status <> ?`),
			string(models.TokenStatusBurned), burnedAt.UTC(), tokenID, string(models.TokenStatusBurned))
		if err != nil {
			return fmt.Errorf("falha ao queimar token %s: %w", tokenID, err)
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
UPDATE assets SET status = ?
WHERE id IN (SELECT asset_id FROM token_assets WHERE token_id = ?)`),
			string(models.AssetStatusBurned), tokenID)
		if err != nil {
			return fmt.Errorf("falha ao atualizar ativos do token %s: %w", tokenID, err)
		}
		return nil
	})
}
