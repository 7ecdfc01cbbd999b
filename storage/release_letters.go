package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ferreirogomes/custodia/models"
)

type releaseLetterRow struct {
	ID              string     `db:"id"`
	OperationID     string     `db:"operation_id"`
	Status          string     `db:"status"`
	SourceKind      string     `db:"source_kind"`
	SourceHash      string     `db:"source_hash"`
	SourceName      string     `db:"source_name"`
	RejectionReason string     `db:"rejection_reason"`
	CreatedAt       time.Time  `db:"created_at"`
	DecidedAt       *time.Time `db:"decided_at"`
}

type letterAssetRow struct {
	AssetID  string `db:"asset_id"`
	Approved bool   `db:"approved"`
}

// CreateReleaseLetter grava a carta e o subconjunto proposto de ativos.
func (d *DB) CreateReleaseLetter(ctx context.Context, l models.ReleaseLetter) error {
	return d.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO release_letters (id, operation_id, status, source_kind, source_hash, source_name, rejection_reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			l.ID, l.OperationID, string(l.Status), string(l.Source.Kind), l.Source.ContentHash, l.Source.FileName,
			l.RejectionReason, l.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("falha ao salvar carta de liberação: %w", err)
		}
		for i, assetID := range l.AssetIDs {
			_, err := tx.ExecContext(ctx, tx.Rebind(`
INSERT INTO release_letter_assets (letter_id, asset_id, ordinal, approved) VALUES (?, ?, ?, ?)`),
				l.ID, assetID, i, false)
			if err != nil {
				return fmt.Errorf("falha ao vincular ativo %s à carta: %w", assetID, err)
			}
		}
		return nil
	})
}

func (d *DB) loadLetter(ctx context.Context, row releaseLetterRow) (models.ReleaseLetter, error) {
	l := models.ReleaseLetter{
		ID:          row.ID,
		OperationID: row.OperationID,
		Status:      models.ReleaseLetterStatus(row.Status),
		Source: models.SourceDocument{
			Kind:        models.SourceKind(row.SourceKind),
			ContentHash: row.SourceHash,
			FileName:    row.SourceName,
		},
		AssetIDs:         []string{},
		ApprovedAssetIDs: []string{},
		RejectionReason:  row.RejectionReason,
		CreatedAt:        row.CreatedAt,
		DecidedAt:        row.DecidedAt,
	}
	var assets []letterAssetRow
	query := d.Rebind(`SELECT asset_id, approved FROM release_letter_assets WHERE letter_id = ? ORDER BY ordinal`)
	if err := d.SelectContext(ctx, &assets, query, row.ID); err != nil {
		return models.ReleaseLetter{}, fmt.Errorf("falha ao listar ativos da carta %s: %w", row.ID, err)
	}
	for _, a := range assets {
		l.AssetIDs = append(l.AssetIDs, a.AssetID)
		if a.Approved {
			l.ApprovedAssetIDs = append(l.ApprovedAssetIDs, a.AssetID)
		}
	}
	return l, nil
}

// GetReleaseLetter busca uma carta pelo ID.
func (d *DB) GetReleaseLetter(ctx context.Context, id string) (models.ReleaseLetter, error) {
	var row releaseLetterRow
	if err := d.GetContext(ctx, &row, d.Rebind(`SELECT * FROM release_letters WHERE id = ?`), id); err != nil {
		return models.ReleaseLetter{}, notFound(err, "carta de liberação", id)
	}
	return d.loadLetter(ctx, row)
}

// ListReleaseLettersByOperation lista as cartas de uma operação.
func (d *DB) ListReleaseLettersByOperation(ctx context.Context, operationID string) ([]models.ReleaseLetter, error) {
	var rows []releaseLetterRow
	query := d.Rebind(`SELECT * FROM release_letters WHERE operation_id = ? ORDER BY created_at, id`)
	if err := d.SelectContext(ctx, &rows, query, operationID); err != nil {
		return nil, fmt.Errorf("falha ao listar cartas da operação %s: %w", operationID, err)
	}
	out := make([]models.ReleaseLetter, 0, len(rows))
	for _, row := range rows {
		l, err := d.loadLetter(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// ApproveReleaseLetter move a carta de PENDING para APPROVED e grava o
// subconjunto aprovado. Devolve false se a carta não estava pendente.
func (d *DB) ApproveReleaseLetter(ctx context.Context, id string, approvedAssetIDs []string, at time.Time) (bool, error) {
	var moved bool
	err := d.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
UPDATE release_letters SET status = ?, decided_at = ? WHERE id = ? AND status = ?`),
			string(models.ReleaseLetterStatusApproved), at.UTC(), id, string(models.ReleaseLetterStatusPending))
		if err != nil {
			return fmt.Errorf("falha ao aprovar carta %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("falha ao aprovar carta %s: %w", id, err)
		}
		if n == 0 {
			return nil
		}
		moved = true
		for _, assetID := range approvedAssetIDs {
			_, err := tx.ExecContext(ctx, tx.Rebind(`
UPDATE release_letter_assets SET approved = ? WHERE letter_id = ? AND asset_id = ?`), true, id, assetID)
			if err != nil {
				return fmt.Errorf("falha ao aprovar ativo %s da carta %s: %w", assetID, id, err)
			}
		}
		return nil
	})
	return moved, err
}

// RejectReleaseLetter move a carta de PENDING para REJECTED.
func (d *DB) RejectReleaseLetter(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	query := d.Rebind(`
UPDATE release_letters SET status = ?, rejection_reason = ?, decided_at = ? WHERE id = ? AND status = ?`)
	res, err := d.ExecContext(ctx, query,
		string(models.ReleaseLetterStatusRejected), reason, at.UTC(), id, string(models.ReleaseLetterStatusPending))
	if err != nil {
		return false, fmt.Errorf("falha ao rejeitar carta %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("falha ao rejeitar carta %s: %w", id, err)
	}
	return n == 1, nil
}

// IsAssetApprovedForRelease informa se o ativo consta do subconjunto aprovado
// de alguma carta APPROVED.
func (d *DB) IsAssetApprovedForRelease(ctx context.Context, assetID string) (bool, error) {
	var n int
	query := d.Rebind(`
SELECT COUNT(*) FROM release_letter_assets la
JOIN release_letters l ON l.id = la.letter_id
WHERE la.asset_id = ? AND la.approved = ? AND l.status = ?`)
	if err := d.GetContext(ctx, &n, query, assetID, true, string(models.ReleaseLetterStatusApproved)); err != nil {
		return false, fmt.Errorf("falha ao verificar aprovação do ativo %s: %w", assetID, err)
	}
	return n > 0, nil
}
