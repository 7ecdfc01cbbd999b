package storage

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/custodia/models"
)

// SaveAsset insere um novo ativo.
func (d *DB) SaveAsset(ctx context.Context, a models.Asset) error {
	query := d.Rebind(`
INSERT INTO assets (id, operation_id, description, serial, value, status, delivery_status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := d.ExecContext(ctx, query,
		a.ID, a.OperationID, a.Description, a.Serial, a.Value, string(a.Status), a.DeliveryStatus, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("falha ao salvar ativo: %w", err)
	}
	return nil
}

// GetAsset busca um ativo pelo ID.
func (d *DB) GetAsset(ctx context.Context, id string) (models.Asset, error) {
	var a models.Asset
	if err := d.GetContext(ctx, &a, d.Rebind(`SELECT * FROM assets WHERE id = ?`), id); err != nil {
		return models.Asset{}, notFound(err, "ativo", id)
	}
	return a, nil
}

// ListAssetsByOperation lista os ativos de uma operação em ordem de criação.
func (d *DB) ListAssetsByOperation(ctx context.Context, operationID string) ([]models.Asset, error) {
	assets := []models.Asset{}
	query := d.Rebind(`SELECT * FROM assets WHERE operation_id = ? ORDER BY created_at, id`)
	if err := d.SelectContext(ctx, &assets, query, operationID); err != nil {
		return nil, fmt.Errorf("falha ao listar ativos da operação %s: %w", operationID, err)
	}
	return assets, nil
}
