package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/custodia/models"
)

type operationRow struct {
	ID                 string              `db:"id"`
	Name               string              `db:"name"`
	Status             string              `db:"status"`
	WarehouseID        string              `db:"warehouse_id"`
	WarehouseName      string              `db:"warehouse_name"`
	WarehouseWallet    string              `db:"warehouse_wallet"`
	ClientID           string              `db:"client_id"`
	ClientName         string              `db:"client_name"`
	ClientWallet       string              `db:"client_wallet"`
	BankID             string              `db:"bank_id"`
	BankName           string              `db:"bank_name"`
	BankWallet         string              `db:"bank_wallet"`
	GiroValue          decimal.NullDecimal `db:"giro_value"`
	EndorsementValue   decimal.NullDecimal `db:"endorsement_value"`
	GuaranteeRiskRatio string              `db:"guarantee_risk_ratio"`
	CreatedAt          time.Time           `db:"created_at"`
}

func (r operationRow) model() models.Operation {
	return models.Operation{
		ID:                 r.ID,
		Name:               r.Name,
		Status:             models.OperationStatus(r.Status),
		Warehouse:          models.Party{ID: r.WarehouseID, Name: r.WarehouseName, Wallet: r.WarehouseWallet},
		Client:             models.Party{ID: r.ClientID, Name: r.ClientName, Wallet: r.ClientWallet},
		Bank:               models.Party{ID: r.BankID, Name: r.BankName, Wallet: r.BankWallet},
		GiroValue:          r.GiroValue,
		EndorsementValue:   r.EndorsementValue,
		GuaranteeRiskRatio: r.GuaranteeRiskRatio,
		CreatedAt:          r.CreatedAt,
	}
}

// SaveOperation insere ou atualiza uma operação. O status não é tocado na
// atualização; ele só avança por UpdateOperationStatus.
func (d *DB) SaveOperation(ctx context.Context, op models.Operation) error {
	query := d.Rebind(`
INSERT INTO operations (id, name, status,
    warehouse_id, warehouse_name, warehouse_wallet,
    client_id, client_name, client_wallet,
    bank_id, bank_name, bank_wallet,
    giro_value, endorsement_value, guarantee_risk_ratio, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    warehouse_name = excluded.warehouse_name,
    warehouse_wallet = excluded.warehouse_wallet,
    client_name = excluded.client_name,
    client_wallet = excluded.client_wallet,
    bank_name = excluded.bank_name,
    bank_wallet = excluded.bank_wallet,
    giro_value = excluded.giro_value,
    endorsement_value = excluded.endorsement_value,
    guarantee_risk_ratio = excluded.guarantee_risk_ratio`)
	_, err := d.ExecContext(ctx, query,
		op.ID, op.Name, string(op.Status),
		op.Warehouse.ID, op.Warehouse.Name, op.Warehouse.Wallet,
		op.Client.ID, op.Client.Name, op.Client.Wallet,
		op.Bank.ID, op.Bank.Name, op.Bank.Wallet,
		op.GiroValue, op.EndorsementValue, op.GuaranteeRiskRatio, op.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("falha ao salvar operação: %w", err)
	}
	return nil
}

// GetOperation busca uma operação pelo ID.
func (d *DB) GetOperation(ctx context.Context, id string) (models.Operation, error) {
	var row operationRow
	err := d.GetContext(ctx, &row, d.Rebind(`SELECT * FROM operations WHERE id = ?`), id)
	if err != nil {
		return models.Operation{}, notFound(err, "operação", id)
	}
	return row.model(), nil
}

// UpdateOperationStatus grava o status agregado.
func (d *DB) UpdateOperationStatus(ctx context.Context, id string, status models.OperationStatus) error {
	_, err := d.ExecContext(ctx, d.Rebind(`UPDATE operations SET status = ? WHERE id = ?`), string(status), id)
	if err != nil {
		return fmt.Errorf("falha ao atualizar status da operação: %w", err)
	}
	return nil
}
