package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetStatus é o estado físico/custodial de um ativo.
type AssetStatus string

const (
	AssetStatusStored    AssetStatus = "STORED"
	AssetStatusPledged   AssetStatus = "PLEDGED"
	AssetStatusDelivered AssetStatus = "DELIVERED"
	AssetStatusBurned    AssetStatus = "BURNED"
)

// Valid informa se o status pertence ao conjunto conhecido.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStatusStored, AssetStatusPledged, AssetStatusDelivered, AssetStatusBurned:
		return true
	}
	return false
}

// Asset representa um bem físico sob custódia do armazém.
type Asset struct {
	ID          string          `json:"id" db:"id"`
	OperationID string          `json:"operation_id" db:"operation_id"`
	Description string          `json:"description" db:"description"`
	Serial      *string         `json:"serial,omitempty" db:"serial"`
	Value       decimal.Decimal `json:"value" db:"value"`
	Status      AssetStatus     `json:"status" db:"status"`
	// DeliveryStatus, quando preenchido, sobrepõe o semáforo derivado.
	DeliveryStatus *string   `json:"delivery_status,omitempty" db:"delivery_status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
